package service

import (
	"context"
	"fmt"
	"time"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LedgerService is the transfer engine. It is the only code path that
// mutates inventory balances.
type LedgerService struct {
	repo   store.Repository
	events *broker.EventPublisher
	logger *zap.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(repo store.Repository, events *broker.EventPublisher) *LedgerService {
	return &LedgerService{
		repo:   repo,
		events: events,
		logger: util.GetLogger(),
	}
}

// TransferCommand moves Quantity of ProductID out of From and into To.
// A nil To consumes the stock; a nil From is a pure credit and is only
// reachable through ReceiveStock and RestockReturn.
type TransferCommand struct {
	From      *string             `json:"from_account"`
	To        *string             `json:"to_account"`
	ProductID string              `json:"product_id" binding:"required"`
	Quantity  int64               `json:"quantity"`
	Kind      models.MovementKind `json:"kind"`
	Reference string              `json:"reference"`
}

// TransferResult holds the balances after a transfer. A side is nil when
// the transfer did not touch it.
type TransferResult struct {
	FromBalance *int64 `json:"from_balance,omitempty"`
	ToBalance   *int64 `json:"to_balance,omitempty"`
}

type balanceChange struct {
	accountID string
	productID string
	delta     int64
	quantity  int64
	version   int64
	kind      models.MovementKind
	reference string
}

func (c TransferCommand) validate() error {
	if c.Quantity <= 0 {
		return models.ErrInvalidQuantity
	}
	if c.ProductID == "" {
		return fmt.Errorf("product is required: %w", models.ErrInvalidInput)
	}
	if c.From == nil && c.To == nil {
		return fmt.Errorf("transfer needs a source or a destination: %w", models.ErrInvalidInput)
	}
	if c.From != nil && c.To != nil && *c.From == *c.To {
		return fmt.Errorf("source and destination are the same account: %w", models.ErrInvalidInput)
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return fmt.Errorf("unknown movement kind %q: %w", c.Kind, models.ErrInvalidInput)
	}
	return nil
}

// applyTransfer runs the debit and credit inside tx. Callers compose it with
// their own writes so a request decision or an order insert commits together
// with the stock it moves.
func applyTransfer(ctx context.Context, tx store.Tx, cmd TransferCommand) (*TransferResult, []balanceChange, error) {
	if err := cmd.validate(); err != nil {
		return nil, nil, err
	}
	if _, err := tx.GetProduct(ctx, cmd.ProductID); err != nil {
		return nil, nil, err
	}

	kind := cmd.Kind
	if kind == "" {
		kind = models.MovementTransfer
		if cmd.To == nil {
			kind = models.MovementSale
		}
	}

	result := &TransferResult{}
	changes := make([]balanceChange, 0, 2)

	if cmd.From != nil {
		if err := requireActiveAccount(ctx, tx, *cmd.From); err != nil {
			return nil, nil, err
		}
		b, err := tx.AdjustBalance(ctx, *cmd.From, cmd.ProductID, -cmd.Quantity)
		if err != nil {
			return nil, nil, err
		}
		result.FromBalance = &b.Quantity
		changes = append(changes, balanceChange{*cmd.From, cmd.ProductID, -cmd.Quantity, b.Quantity, b.Version, kind, cmd.Reference})
	}

	if cmd.To != nil {
		if err := requireActiveAccount(ctx, tx, *cmd.To); err != nil {
			return nil, nil, err
		}
		b, err := tx.AdjustBalance(ctx, *cmd.To, cmd.ProductID, cmd.Quantity)
		if err != nil {
			return nil, nil, err
		}
		result.ToBalance = &b.Quantity
		changes = append(changes, balanceChange{*cmd.To, cmd.ProductID, cmd.Quantity, b.Quantity, b.Version, kind, cmd.Reference})
	}

	movement := &models.StockMovement{
		ID:          uuid.New().String(),
		Kind:        kind,
		FromAccount: cmd.From,
		ToAccount:   cmd.To,
		ProductID:   cmd.ProductID,
		Quantity:    cmd.Quantity,
		Reference:   cmd.Reference,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.AppendMovement(ctx, movement); err != nil {
		return nil, nil, fmt.Errorf("failed to record movement: %w", err)
	}

	return result, changes, nil
}

func requireActiveAccount(ctx context.Context, r store.Reader, id string) error {
	account, err := r.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if !account.Active {
		return fmt.Errorf("account %s: %w", id, models.ErrAccountInactive)
	}
	return nil
}

// Transfer moves stock between two accounts, or out of an account into
// consumption when To is nil.
func (s *LedgerService) Transfer(ctx context.Context, cmd TransferCommand) (*TransferResult, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Transfer",
		attribute.String("product_id", cmd.ProductID),
		attribute.Int64("quantity", cmd.Quantity))

	err := cmd.validate()
	if err == nil && cmd.From == nil {
		err = fmt.Errorf("transfer needs a source account: %w", models.ErrInvalidInput)
	}
	if err == nil && (cmd.Kind == models.MovementReceipt || cmd.Kind == models.MovementRestock) {
		err = fmt.Errorf("%s movements are not direct transfers: %w", cmd.Kind, models.ErrInvalidInput)
	}
	if err != nil {
		util.TransfersFailed.WithLabelValues(failureReason(err)).Inc()
		util.EndSpan(span, err)
		return nil, err
	}

	result, err := s.run(ctx, cmd)
	util.EndSpan(span, err)
	return result, err
}

// ReceiveStock credits production intake to an HQ account
func (s *LedgerService) ReceiveStock(ctx context.Context, hqAccount, productID string, quantity int64, reference string) (*TransferResult, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.ReceiveStock",
		attribute.String("account_id", hqAccount),
		attribute.String("product_id", productID))

	result, err := s.receive(ctx, hqAccount, productID, quantity, reference)
	util.EndSpan(span, err)
	return result, err
}

func (s *LedgerService) receive(ctx context.Context, hqAccount, productID string, quantity int64, reference string) (*TransferResult, error) {
	if quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	account, err := s.repo.GetAccount(ctx, hqAccount)
	if err != nil {
		return nil, err
	}
	if account.Role != models.RoleHQ {
		return nil, fmt.Errorf("stock intake is limited to hq accounts: %w", models.ErrHierarchyViolation)
	}
	if reference == "" {
		reference = "intake-" + uuid.New().String()
	}

	return s.run(ctx, TransferCommand{
		To:        &hqAccount,
		ProductID: productID,
		Quantity:  quantity,
		Kind:      models.MovementReceipt,
		Reference: reference,
	})
}

func (s *LedgerService) run(ctx context.Context, cmd TransferCommand) (*TransferResult, error) {
	if err := cmd.validate(); err != nil {
		util.TransfersFailed.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	start := time.Now()
	var (
		result  *TransferResult
		changes []balanceChange
	)
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		result, changes, err = applyTransfer(ctx, tx, cmd)
		return err
	})
	util.TransferLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.TransfersFailed.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("Transfer failed",
			zap.Stringp("from", cmd.From),
			zap.Stringp("to", cmd.To),
			zap.String("product_id", cmd.ProductID),
			zap.Int64("quantity", cmd.Quantity),
			zap.Error(err))
		return nil, err
	}

	util.TransfersTotal.WithLabelValues(string(changes[0].kind)).Inc()
	publishBalanceChanges(ctx, s.events, s.logger, changes)
	return result, nil
}

// GetBalance returns the quantity an account holds; a missing row is zero
func (s *LedgerService) GetBalance(ctx context.Context, accountID, productID string) (int64, error) {
	return s.repo.GetBalance(ctx, accountID, productID)
}

// ListBalances returns every balance row of an account
func (s *LedgerService) ListBalances(ctx context.Context, accountID string) ([]models.InventoryBalance, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListBalances(ctx, accountID)
}

// ListProductBalances returns every account's holding of one product
func (s *LedgerService) ListProductBalances(ctx context.Context, productID string) ([]models.InventoryBalance, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListProductBalances(ctx, productID)
}

func failureReason(err error) string {
	switch {
	case isErr(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case isErr(err, models.ErrInvalidQuantity):
		return "invalid_quantity"
	case isErr(err, models.ErrNotFound):
		return "not_found"
	case models.IsClientError(err):
		return "invalid_input"
	case models.IsConflict(err):
		return "conflict"
	}
	return "internal"
}
