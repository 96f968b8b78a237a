package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is the transport behind EventPublisher; *Producer satisfies it
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBalanceChanged publishes BalanceChanged keyed by account
func (ep *EventPublisher) PublishBalanceChanged(ctx context.Context, event *models.BalanceChangedEvent) error {
	return ep.producer.PublishEvent(ctx, "account-"+event.AccountID, event)
}

// PublishRequestEvent publishes a TransferRequest transition
func (ep *EventPublisher) PublishRequestEvent(ctx context.Context, event *models.RequestEvent) error {
	return ep.producer.PublishEvent(ctx, "request-"+event.RequestID, event)
}

// PublishOrderEvent publishes a CustomerOrder transition
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishImportCompleted publishes an import summary
func (ep *EventPublisher) PublishImportCompleted(ctx context.Context, event *models.ImportCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "import-"+event.SellerAccount, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBalanceChanged func(context.Context, *models.BalanceChangedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnBalanceChanged registers a handler for BalanceChanged events
func (eh *EventHandler) OnBalanceChanged(handler func(context.Context, *models.BalanceChangedEvent) error) {
	eh.onBalanceChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeBalanceChanged:
		if eh.onBalanceChanged != nil {
			var event models.BalanceChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BalanceChanged event: %w", err)
			}
			return eh.onBalanceChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event", zap.String("type", baseEvent.EventType), zap.String("id", baseEvent.EventID))
	}

	return nil
}
