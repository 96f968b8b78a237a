package service

import (
	"context"
	"errors"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"

	"go.uber.org/zap"
)

// Events are published after commit. A publish failure is logged and never
// rolls back or fails the operation that produced it.

func publishBalanceChanges(ctx context.Context, events *broker.EventPublisher, logger *zap.Logger, changes []balanceChange) {
	if events == nil {
		return
	}
	for _, c := range changes {
		event := &models.BalanceChangedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeBalanceChanged),
			AccountID: c.accountID,
			ProductID: c.productID,
			Delta:     c.delta,
			Quantity:  c.quantity,
			Version:   c.version,
			Kind:      c.kind,
			Reference: c.reference,
		}
		if err := events.PublishBalanceChanged(ctx, event); err != nil {
			logger.Error("Failed to publish BalanceChanged event",
				zap.String("account_id", c.accountID),
				zap.String("product_id", c.productID),
				zap.Error(err))
		}
	}
}

func publishRequestEvent(ctx context.Context, events *broker.EventPublisher, logger *zap.Logger, eventType string, req *models.TransferRequest) {
	if events == nil {
		return
	}
	event := &models.RequestEvent{
		BaseEvent:        models.NewBaseEvent(eventType),
		RequestID:        req.ID,
		RequesterAccount: req.RequesterAccount,
		FulfillerAccount: req.FulfillerAccount,
		ProductID:        req.ProductID,
		Quantity:         req.Quantity,
		Status:           req.Status,
	}
	if req.RejectionReason != nil {
		event.Reason = *req.RejectionReason
	}
	if err := events.PublishRequestEvent(ctx, event); err != nil {
		logger.Error("Failed to publish request event",
			zap.String("type", eventType),
			zap.String("request_id", req.ID),
			zap.Error(err))
	}
}

func publishOrderEvent(ctx context.Context, events *broker.EventPublisher, logger *zap.Logger, eventType string, order *models.CustomerOrder) {
	if events == nil {
		return
	}
	event := &models.OrderEvent{
		BaseEvent:      models.NewBaseEvent(eventType),
		OrderID:        order.ID,
		SellerAccount:  order.SellerAccount,
		ProductID:      order.ProductID,
		Quantity:       order.Quantity,
		DeliveryStatus: order.DeliveryStatus,
	}
	if order.TrackingNumber != nil {
		event.TrackingNumber = *order.TrackingNumber
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger.Error("Failed to publish order event",
			zap.String("type", eventType),
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

func publishImportCompleted(ctx context.Context, events *broker.EventPublisher, logger *zap.Logger, seller string, summary *models.ImportSummary) {
	if events == nil {
		return
	}
	event := &models.ImportCompletedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeImportCompleted),
		SellerAccount: seller,
		Summary:       *summary,
	}
	if err := events.PublishImportCompleted(ctx, event); err != nil {
		logger.Error("Failed to publish ImportCompleted event",
			zap.String("seller_account", seller),
			zap.Error(err))
	}
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}
