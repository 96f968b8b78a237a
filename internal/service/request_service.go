package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RequestService runs the purchase order / stock request workflow
type RequestService struct {
	repo   store.Repository
	events *broker.EventPublisher
	logger *zap.Logger
}

// NewRequestService creates a new request service
func NewRequestService(repo store.Repository, events *broker.EventPublisher) *RequestService {
	return &RequestService{
		repo:   repo,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateRequestInput represents a request for stock from an upstream account
type CreateRequestInput struct {
	RequesterAccount string `json:"requester_account" binding:"required"`
	FulfillerAccount string `json:"fulfiller_account" binding:"required"`
	ProductID        string `json:"product_id" binding:"required"`
	Quantity         int64  `json:"quantity"`
}

// CreateRequest opens a pending request. The unit price is the requester's
// tier price at the time of the request.
func (s *RequestService) CreateRequest(ctx context.Context, in *CreateRequestInput) (*models.TransferRequest, error) {
	ctx, span := util.StartSpan(ctx, "RequestService.CreateRequest",
		attribute.String("requester", in.RequesterAccount),
		attribute.String("fulfiller", in.FulfillerAccount))

	req, err := s.createRequest(ctx, in)
	util.EndSpan(span, err)
	return req, err
}

func (s *RequestService) createRequest(ctx context.Context, in *CreateRequestInput) (*models.TransferRequest, error) {
	if in.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	if in.RequesterAccount == in.FulfillerAccount {
		return nil, fmt.Errorf("an account cannot supply itself: %w", models.ErrInvalidInput)
	}

	requester, err := s.repo.GetAccount(ctx, in.RequesterAccount)
	if err != nil {
		return nil, err
	}
	fulfiller, err := s.repo.GetAccount(ctx, in.FulfillerAccount)
	if err != nil {
		return nil, err
	}
	if !requester.Active || !fulfiller.Active {
		return nil, models.ErrAccountInactive
	}
	if !requester.Role.CanBeSuppliedBy(fulfiller.Role) {
		return nil, fmt.Errorf("%s cannot request from %s: %w", requester.Role, fulfiller.Role, models.ErrHierarchyViolation)
	}

	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s: %w", product.ID, models.ErrProductInactive)
	}

	unitPrice := product.PriceFor(requester.PriceTier())
	req := &models.TransferRequest{
		ID:               uuid.New().String(),
		RequesterAccount: requester.ID,
		FulfillerAccount: fulfiller.ID,
		ProductID:        product.ID,
		Quantity:         in.Quantity,
		UnitPrice:        unitPrice,
		TotalPrice:       unitPrice.Mul(decimal.NewFromInt(in.Quantity)),
		Status:           models.RequestPending,
		RequestedAt:      time.Now().UTC(),
	}

	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateTransferRequest(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.logger.Info("Transfer request created",
		zap.String("request_id", req.ID),
		zap.String("requester", req.RequesterAccount),
		zap.String("fulfiller", req.FulfillerAccount),
		zap.Int64("quantity", req.Quantity))

	publishRequestEvent(ctx, s.events, s.logger, models.EventTypeRequestCreated, req)
	return req, nil
}

// Approve moves the request to approved and transfers the stock from the
// fulfiller to the requester in the same unit of work. When the fulfiller is
// short the whole unit rolls back and the request stays pending, so it can be
// approved again once stock arrives.
func (s *RequestService) Approve(ctx context.Context, id, decidedBy string) (*models.TransferRequest, error) {
	ctx, span := util.StartSpan(ctx, "RequestService.Approve", attribute.String("request_id", id))

	req, err := s.approve(ctx, id, decidedBy)
	util.EndSpan(span, err)
	return req, err
}

func (s *RequestService) approve(ctx context.Context, id, decidedBy string) (*models.TransferRequest, error) {
	var (
		req     *models.TransferRequest
		changes []balanceChange
	)

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.GetTransferRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return fmt.Errorf("request %s is %s: %w", id, req.Status, models.ErrAlreadyDecided)
		}

		now := time.Now().UTC()
		req.Status = models.RequestApproved
		req.DecidedAt = &now
		req.DecidedBy = optional(decidedBy)

		// The status write is a compare-and-set on pending; a concurrent
		// approval that got there first makes this fail before any stock moves.
		if err := tx.DecideTransferRequest(ctx, req); err != nil {
			return err
		}

		_, changes, err = applyTransfer(ctx, tx, TransferCommand{
			From:      &req.FulfillerAccount,
			To:        &req.RequesterAccount,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Kind:      models.MovementTransfer,
			Reference: req.ID,
		})
		return err
	})
	if err != nil {
		util.TransfersFailed.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("Approval failed", zap.String("request_id", id), zap.Error(err))
		return nil, err
	}

	util.RequestsDecidedTotal.WithLabelValues(string(models.RequestApproved)).Inc()
	util.TransfersTotal.WithLabelValues(string(models.MovementTransfer)).Inc()
	s.logger.Info("Transfer request approved", zap.String("request_id", id), zap.Int64("quantity", req.Quantity))

	publishBalanceChanges(ctx, s.events, s.logger, changes)
	publishRequestEvent(ctx, s.events, s.logger, models.EventTypeRequestApproved, req)
	return req, nil
}

// Reject closes a pending request with a reason. Stock is untouched.
func (s *RequestService) Reject(ctx context.Context, id, decidedBy, reason string) (*models.TransferRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrReasonRequired
	}

	req, err := s.decide(ctx, id, func(req *models.TransferRequest) error {
		now := time.Now().UTC()
		req.Status = models.RequestRejected
		req.DecidedAt = &now
		req.DecidedBy = optional(decidedBy)
		req.RejectionReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.RequestsDecidedTotal.WithLabelValues(string(models.RequestRejected)).Inc()
	s.logger.Info("Transfer request rejected", zap.String("request_id", id), zap.String("reason", reason))
	publishRequestEvent(ctx, s.events, s.logger, models.EventTypeRequestRejected, req)
	return req, nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (s *RequestService) Cancel(ctx context.Context, id, actorAccount string) (*models.TransferRequest, error) {
	req, err := s.decide(ctx, id, func(req *models.TransferRequest) error {
		if req.RequesterAccount != actorAccount {
			return models.ErrNotRequester
		}
		now := time.Now().UTC()
		req.Status = models.RequestCancelled
		req.DecidedAt = &now
		req.DecidedBy = optional(actorAccount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.RequestsDecidedTotal.WithLabelValues(string(models.RequestCancelled)).Inc()
	s.logger.Info("Transfer request cancelled", zap.String("request_id", id))
	publishRequestEvent(ctx, s.events, s.logger, models.EventTypeRequestCancelled, req)
	return req, nil
}

func (s *RequestService) decide(ctx context.Context, id string, apply func(*models.TransferRequest) error) (*models.TransferRequest, error) {
	var req *models.TransferRequest
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.GetTransferRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return fmt.Errorf("request %s is %s: %w", id, req.Status, models.ErrAlreadyDecided)
		}
		if err := apply(req); err != nil {
			return err
		}
		return tx.DecideTransferRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) GetRequest(ctx context.Context, id string) (*models.TransferRequest, error) {
	return s.repo.GetTransferRequest(ctx, id)
}

// ListRequests returns requests where the account is requester or fulfiller
func (s *RequestService) ListRequests(ctx context.Context, filter store.RequestFilter) ([]models.TransferRequest, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", filter.Status, models.ErrInvalidInput)
	}
	return s.repo.ListTransferRequests(ctx, filter)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
