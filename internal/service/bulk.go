package service

import (
	"context"
	"fmt"
	"time"

	"distribution-service/internal/models"

	"go.uber.org/zap"
)

// BulkOp names the single-order operation a bulk call applies to each member
type BulkOp string

const (
	BulkBook       BulkOp = "book"
	BulkReturn     BulkOp = "return"
	BulkCollectCOD BulkOp = "collect_cod"
	BulkRevert     BulkOp = "revert"
	BulkRestock    BulkOp = "restock"
)

func (op BulkOp) Valid() bool {
	switch op {
	case BulkBook, BulkReturn, BulkCollectCOD, BulkRevert, BulkRestock:
		return true
	}
	return false
}

// BulkByTracking applies op to the orders behind the tracking numbers
func (s *OrderService) BulkByTracking(ctx context.Context, op BulkOp, trackingNumbers []string, at time.Time) (*models.BatchResult, error) {
	return s.bulk(ctx, op, trackingNumbers, at, func(ctx context.Context, tracking string) (string, error) {
		order, err := s.repo.GetOrderByTracking(ctx, tracking)
		if err != nil {
			return "", err
		}
		return order.ID, nil
	})
}

// BulkByIDs applies op to each selected order
func (s *OrderService) BulkByIDs(ctx context.Context, op BulkOp, ids []string, at time.Time) (*models.BatchResult, error) {
	return s.bulk(ctx, op, ids, at, func(_ context.Context, id string) (string, error) {
		return id, nil
	})
}

// bulk runs members one by one with the single-order rules. Successes are
// kept when later members fail; the result lists both sides.
func (s *OrderService) bulk(ctx context.Context, op BulkOp, keys []string, at time.Time, resolve func(context.Context, string) (string, error)) (*models.BatchResult, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unknown bulk operation %q: %w", op, models.ErrInvalidInput)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no orders selected: %w", models.ErrInvalidInput)
	}

	result := &models.BatchResult{Succeeded: []string{}, Failed: []models.BatchFailure{}}
	for _, key := range keys {
		err := s.applyBulk(ctx, op, key, at, resolve)
		if err != nil {
			result.Failed = append(result.Failed, models.BatchFailure{Key: key, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, key)
	}

	if len(result.Failed) > 0 {
		s.logger.Warn("Bulk operation partially failed",
			zap.String("op", string(op)),
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failed)))
		return result, &models.PartialBatchError{Result: result}
	}
	return result, nil
}

func (s *OrderService) applyBulk(ctx context.Context, op BulkOp, key string, at time.Time, resolve func(context.Context, string) (string, error)) error {
	id, err := resolve(ctx, key)
	if err != nil {
		return err
	}

	switch op {
	case BulkBook:
		_, err = s.BookShipment(ctx, id)
	case BulkReturn:
		_, err = s.MarkReturned(ctx, id, at)
	case BulkCollectCOD:
		_, err = s.CollectCOD(ctx, id, at)
	case BulkRevert:
		_, err = s.RevertToPending(ctx, id)
	case BulkRestock:
		_, err = s.RestockReturn(ctx, id)
	}
	return err
}
