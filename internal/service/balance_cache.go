package service

import (
	"context"
	"fmt"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"go.uber.org/zap"
)

// BalanceProjection is the read model fed by BalanceChanged events.
// *redisclient.Client satisfies it.
type BalanceProjection interface {
	SetBalance(ctx context.Context, accountID, productID string, quantity, version int64) (bool, error)
	GetBalances(ctx context.Context, accountID string) (map[string]int64, error)
}

// BalanceCache serves balance reads from the projection and keeps it in
// step with the ledger. The ledger stays the source of truth.
type BalanceCache struct {
	repo       store.Repository
	projection BalanceProjection
	logger     *zap.Logger
}

// NewBalanceCache creates a new balance cache
func NewBalanceCache(repo store.Repository, projection BalanceProjection) *BalanceCache {
	return &BalanceCache{
		repo:       repo,
		projection: projection,
		logger:     util.GetLogger(),
	}
}

// Apply projects one BalanceChanged event. Events carrying a ledger version
// at or below the stored one are ignored, so redelivery and out-of-order
// publishing are harmless.
func (bc *BalanceCache) Apply(ctx context.Context, event *models.BalanceChangedEvent) error {
	if bc.projection == nil {
		return nil
	}
	applied, err := bc.projection.SetBalance(ctx, event.AccountID, event.ProductID, event.Quantity, event.Version)
	if err != nil {
		util.ProjectionUpdatesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to project balance: %w", err)
	}
	if !applied {
		util.ProjectionUpdatesTotal.WithLabelValues("stale").Inc()
		return nil
	}
	util.ProjectionUpdatesTotal.WithLabelValues("applied").Inc()
	return nil
}

// AccountBalances returns product -> quantity for an account (fast path via
// the projection, falling back to the ledger)
func (bc *BalanceCache) AccountBalances(ctx context.Context, accountID string) (map[string]int64, error) {
	ctx, span := util.StartSpan(ctx, "BalanceCache.AccountBalances")
	defer span.End()

	if bc.projection != nil {
		cached, err := bc.projection.GetBalances(ctx, accountID)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil {
			bc.logger.Warn("Projection read failed, falling back to ledger",
				zap.String("account_id", accountID),
				zap.Error(err))
		}
	}

	rows, err := bc.repo.ListBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, b := range rows {
		out[b.ProductID] = b.Quantity
	}
	return out, nil
}

// Rebuild copies every ledger balance into the projection. It runs at
// startup so the read model does not depend on the event history.
func (bc *BalanceCache) Rebuild(ctx context.Context) error {
	if bc.projection == nil {
		return nil
	}
	bc.logger.Info("Starting balance projection rebuild")

	accounts, err := bc.repo.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	count := 0
	for _, account := range accounts {
		rows, err := bc.repo.ListBalances(ctx, account.ID)
		if err != nil {
			bc.logger.Error("Failed to read balances",
				zap.String("account_id", account.ID),
				zap.Error(err))
			continue
		}
		for _, b := range rows {
			if _, err := bc.projection.SetBalance(ctx, b.AccountID, b.ProductID, b.Quantity, b.Version); err != nil {
				bc.logger.Error("Failed to project balance",
					zap.String("account_id", b.AccountID),
					zap.String("product_id", b.ProductID),
					zap.Error(err))
				continue
			}
			count++
		}
	}

	bc.logger.Info("Balance projection rebuild completed", zap.Int("count", count))
	return nil
}
