package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"distribution-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateTransferRequest inserts a pending request
func (r *queries) CreateTransferRequest(ctx context.Context, req *models.TransferRequest) error {
	query := `
		INSERT INTO transfer_requests (
			id, requester_account, fulfiller_account, product_id, quantity,
			unit_price, total_price, status, requested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.ExecContext(ctx, query,
		req.ID, req.RequesterAccount, req.FulfillerAccount, req.ProductID, req.Quantity,
		req.UnitPrice, req.TotalPrice, req.Status, req.RequestedAt)
	return constraintError(err, models.ErrNotFound)
}

// GetTransferRequest retrieves a request by ID
func (r *queries) GetTransferRequest(ctx context.Context, id string) (*models.TransferRequest, error) {
	var req models.TransferRequest
	err := sqlx.GetContext(ctx, r.q, &req, "SELECT * FROM transfer_requests WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// DecideTransferRequest is a compare-and-set on status = pending
func (r *queries) DecideTransferRequest(ctx context.Context, req *models.TransferRequest) error {
	query := `
		UPDATE transfer_requests
		SET status = $2, decided_at = $3, decided_by = $4, rejection_reason = $5
		WHERE id = $1 AND status = 'pending'`

	res, err := r.q.ExecContext(ctx, query,
		req.ID, req.Status, req.DecidedAt, req.DecidedBy, req.RejectionReason)
	if err != nil {
		return fmt.Errorf("failed to decide request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		current, err := r.GetTransferRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		return fmt.Errorf("request %s is %s: %w", req.ID, current.Status, models.ErrAlreadyDecided)
	}
	return nil
}

// ListTransferRequests retrieves requests where the account is requester or fulfiller
func (s *Store) ListTransferRequests(ctx context.Context, filter RequestFilter) ([]models.TransferRequest, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT * FROM transfer_requests
		WHERE ($1 = '' OR requester_account = $1 OR fulfiller_account = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY requested_at DESC
		LIMIT $3`

	var reqs []models.TransferRequest
	err := sqlx.SelectContext(ctx, s.q, &reqs, query, filter.AccountID, filter.Status, limit)
	return reqs, err
}

// CreateRewardTarget inserts a reward target
func (s *Store) CreateRewardTarget(ctx context.Context, t *models.RewardTarget) error {
	query := `
		INSERT INTO reward_targets (id, role, sub_role, month, year, min_quantity, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return sqlx.GetContext(ctx, s.q, &t.CreatedAt, query,
		t.ID, t.Role, t.SubRole, t.Month, t.Year, t.MinQuantity, t.Description, t.IsActive)
}

// ListRewardTargets retrieves the active targets for a role and year
func (s *Store) ListRewardTargets(ctx context.Context, role models.Role, year int) ([]models.RewardTarget, error) {
	var targets []models.RewardTarget
	err := sqlx.SelectContext(ctx, s.q, &targets,
		"SELECT * FROM reward_targets WHERE role = $1 AND year = $2 AND is_active ORDER BY month NULLS LAST",
		role, year)
	return targets, err
}

// SumReceived totals units moved into an account in [from, to)
func (s *Store) SumReceived(ctx context.Context, accountID string, kind models.MovementKind, from, to time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(quantity), 0) FROM stock_movements
		WHERE to_account = $1 AND kind = $2 AND created_at >= $3 AND created_at < $4`

	var total int64
	err := sqlx.GetContext(ctx, s.q, &total, query, accountID, kind, from, to)
	return total, err
}
