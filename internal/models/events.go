package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeBalanceChanged    = "BALANCE_CHANGED"
	EventTypeRequestCreated    = "REQUEST_CREATED"
	EventTypeRequestApproved   = "REQUEST_APPROVED"
	EventTypeRequestRejected   = "REQUEST_REJECTED"
	EventTypeRequestCancelled  = "REQUEST_CANCELLED"
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeOrderShipped      = "ORDER_SHIPPED"
	EventTypeOrderReturned     = "ORDER_RETURNED"
	EventTypeOrderCODCollected = "ORDER_COD_COLLECTED"
	EventTypeOrderReverted     = "ORDER_REVERTED"
	EventTypeOrderRestocked    = "ORDER_RESTOCKED"
	EventTypeImportCompleted   = "IMPORT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event header
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// BalanceChangedEvent is published after every committed balance mutation
type BalanceChangedEvent struct {
	BaseEvent
	AccountID string       `json:"account_id"`
	ProductID string       `json:"product_id"`
	Delta     int64        `json:"delta"`
	Quantity  int64        `json:"quantity"`
	Version   int64        `json:"version"`
	Kind      MovementKind `json:"kind"`
	Reference string       `json:"reference"`
}

// RequestEvent is published on every TransferRequest transition
type RequestEvent struct {
	BaseEvent
	RequestID        string        `json:"request_id"`
	RequesterAccount string        `json:"requester_account"`
	FulfillerAccount string        `json:"fulfiller_account"`
	ProductID        string        `json:"product_id"`
	Quantity         int64         `json:"quantity"`
	Status           RequestStatus `json:"status"`
	Reason           string        `json:"reason,omitempty"`
}

// OrderEvent is published on every CustomerOrder transition
type OrderEvent struct {
	BaseEvent
	OrderID        string         `json:"order_id"`
	SellerAccount  string         `json:"seller_account"`
	ProductID      string         `json:"product_id"`
	Quantity       int64          `json:"quantity"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
}

// ImportCompletedEvent is published after each import batch
type ImportCompletedEvent struct {
	BaseEvent
	SellerAccount string        `json:"seller_account"`
	Summary       ImportSummary `json:"summary"`
}
