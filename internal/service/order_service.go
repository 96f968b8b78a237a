package service

import (
	"context"
	"errors"
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

// Courier books and cancels shipments. *courier.Client satisfies it.
type Courier interface {
	CreateShipment(ctx context.Context, order *models.CustomerOrder) (*models.Shipment, error)
	CancelShipment(ctx context.Context, trackingNumber string) error
	GetWaybill(ctx context.Context, trackingNumbers []string) ([]byte, error)
}

// Locker hands out short-lived exclusive locks. *redisclient.Client
// satisfies it; an empty token means someone else holds the lock.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// OrderConfig holds the timeouts of the order lifecycle
type OrderConfig struct {
	ExternalCallTimeout time.Duration
	BookingLockTTL      time.Duration
}

// OrderService handles customer order business logic
type OrderService struct {
	repo    store.Repository
	courier Courier
	locker  Locker
	events  *broker.EventPublisher
	cfg     OrderConfig
	logger  *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	courier Courier,
	locker Locker,
	events *broker.EventPublisher,
	cfg OrderConfig,
) *OrderService {
	if cfg.ExternalCallTimeout <= 0 {
		cfg.ExternalCallTimeout = 15 * time.Second
	}
	if cfg.BookingLockTTL <= 0 {
		cfg.BookingLockTTL = 30 * time.Second
	}
	return &OrderService{
		repo:    repo,
		courier: courier,
		locker:  locker,
		events:  events,
		cfg:     cfg,
		logger:  util.GetLogger(),
	}
}

// CreateOrderRequest represents a manual sale to an external customer
type CreateOrderRequest struct {
	SellerAccount string               `json:"seller_account" binding:"required"`
	CustomerID    string               `json:"customer_id" binding:"required"`
	CustomerName  string               `json:"customer_name"`
	ProductID     string               `json:"product_id" binding:"required"`
	Quantity      int64                `json:"quantity"`
	UnitPrice     *decimal.Decimal     `json:"unit_price,omitempty"`
	PaymentMethod models.PaymentMethod `json:"payment_method" binding:"required"`
	Platform      models.Platform      `json:"platform"`
	AutoShip      bool                 `json:"auto_ship"`
}

func (r *CreateOrderRequest) validate() error {
	if r.Quantity <= 0 {
		return models.ErrInvalidQuantity
	}
	if !r.PaymentMethod.Valid() {
		return fmt.Errorf("unknown payment method %q: %w", r.PaymentMethod, models.ErrInvalidInput)
	}
	if r.Platform != "" && !r.Platform.Valid() {
		return fmt.Errorf("unknown platform %q: %w", r.Platform, models.ErrInvalidInput)
	}
	if r.Platform == models.PlatformPOS {
		return fmt.Errorf("pos orders arrive through the importer: %w", models.ErrInvalidInput)
	}
	if r.UnitPrice != nil && r.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative: %w", models.ErrInvalidInput)
	}
	if strings.TrimSpace(r.CustomerID) == "" {
		return fmt.Errorf("customer is required: %w", models.ErrInvalidInput)
	}
	return nil
}

// CreateOrder records a manual sale. The seller's stock is consumed in the
// same unit of work as the order insert, so a short seller gets neither.
// With AutoShip a courier booking follows; a failed booking leaves the order
// Pending for a later retry.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.CustomerOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.String("seller", req.SellerAccount),
		attribute.String("product_id", req.ProductID))

	order, err := s.createOrder(ctx, req)
	util.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if req.AutoShip && !order.Platform.SelfTracked() && s.courier != nil {
		booked, err := s.BookShipment(ctx, order.ID)
		if err != nil {
			s.logger.Warn("Auto booking failed, order left pending",
				zap.String("order_id", order.ID),
				zap.Error(err))
			return order, nil
		}
		return booked, nil
	}
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, req *CreateOrderRequest) (*models.CustomerOrder, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s: %w", product.ID, models.ErrProductInactive)
	}

	unitPrice := product.PriceCustomer
	if req.UnitPrice != nil {
		unitPrice = *req.UnitPrice
	}
	platform := req.Platform
	if platform == "" {
		platform = models.PlatformDirect
	}

	order := &models.CustomerOrder{
		ID:             uuid.New().String(),
		SellerAccount:  req.SellerAccount,
		CustomerID:     strings.TrimSpace(req.CustomerID),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		ProductID:      product.ID,
		Quantity:       req.Quantity,
		UnitPrice:      unitPrice,
		TotalPrice:     unitPrice.Mul(decimal.NewFromInt(req.Quantity)),
		PaymentMethod:  req.PaymentMethod,
		DeliveryStatus: models.DeliveryPending,
		Platform:       platform,
		DateOrder:      time.Now().UTC(),
	}

	var changes []balanceChange
	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		_, changes, err = applyTransfer(ctx, tx, TransferCommand{
			From:      &order.SellerAccount,
			ProductID: order.ProductID,
			Quantity:  order.Quantity,
			Kind:      models.MovementSale,
			Reference: order.ID,
		})
		if err != nil {
			return err
		}
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		util.TransfersFailed.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("Order creation failed",
			zap.String("seller", req.SellerAccount),
			zap.String("product_id", req.ProductID),
			zap.Int64("quantity", req.Quantity),
			zap.Error(err))
		return nil, err
	}

	util.OrdersCreatedTotal.WithLabelValues(string(order.Platform)).Inc()
	util.TransfersTotal.WithLabelValues(string(models.MovementSale)).Inc()
	s.logger.Info("Order created", zap.String("order_id", order.ID), zap.String("seller", order.SellerAccount))

	publishBalanceChanges(ctx, s.events, s.logger, changes)
	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderCreated, order)
	return order, nil
}

// BookShipment obtains a tracking number from the courier and moves the
// order to Shipped. An order that already has a tracking number is returned
// unchanged, so retrying after a timeout never books twice.
func (s *OrderService) BookShipment(ctx context.Context, id string) (*models.CustomerOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.BookShipment", attribute.String("order_id", id))

	order, err := s.bookShipment(ctx, id)
	util.EndSpan(span, err)
	s.countTransition("book", err)
	return order, err
}

func (s *OrderService) bookShipment(ctx context.Context, id string) (*models.CustomerOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.TrackingNumber != nil {
		return order, nil
	}
	if order.DeliveryStatus != models.DeliveryPending {
		return nil, fmt.Errorf("order %s is %s: %w", id, order.DeliveryStatus, models.ErrInvalidTransition)
	}
	if s.courier == nil {
		return nil, &models.ExternalError{Service: "courier", Op: "create_shipment", Err: errors.New("courier not configured")}
	}

	release, err := s.lock(ctx, "booking:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	// Another holder may have finished the booking while we waited.
	order, err = s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.TrackingNumber != nil {
		return order, nil
	}
	if order.DeliveryStatus != models.DeliveryPending {
		return nil, fmt.Errorf("order %s is %s: %w", id, order.DeliveryStatus, models.ErrInvalidTransition)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalCallTimeout)
	shipment, err := s.courier.CreateShipment(callCtx, order)
	cancel()
	if err != nil {
		return nil, externalErr("create_shipment", err)
	}

	now := time.Now().UTC()
	order.DeliveryStatus = models.DeliveryShipped
	order.TrackingNumber = &shipment.TrackingNumber
	order.CourierOrderID = optional(shipment.CourierOrderID)
	if order.CourierOrderID == nil {
		order.CourierOrderID = &shipment.TrackingNumber
	}
	order.DateProcessed = &now

	if err := s.save(ctx, models.DeliveryPending, order); err != nil {
		// The courier holds a booking we failed to record. A retry books with
		// the same reference, which the courier answers with this shipment.
		s.logger.Error("Booked shipment not recorded",
			zap.String("order_id", id),
			zap.String("tracking_number", shipment.TrackingNumber),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Shipment booked", zap.String("order_id", id), zap.String("tracking_number", shipment.TrackingNumber))
	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderShipped, order)
	return order, nil
}

// MarkShipped records a tracking number issued outside our courier, e.g. by
// a marketplace that fulfils its own orders.
func (s *OrderService) MarkShipped(ctx context.Context, id, trackingNumber string) (*models.CustomerOrder, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, fmt.Errorf("tracking number is required: %w", models.ErrInvalidInput)
	}

	order, err := s.transition(ctx, "ship", id, models.DeliveryPending, func(o *models.CustomerOrder) error {
		now := time.Now().UTC()
		o.DeliveryStatus = models.DeliveryShipped
		o.TrackingNumber = &trackingNumber
		o.CourierOrderID = nil
		o.DateProcessed = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderShipped, order)
	return order, nil
}

// MarkReturned records that a shipped order came back. Stock is not
// restored; see RestockReturn.
func (s *OrderService) MarkReturned(ctx context.Context, id string, at time.Time) (*models.CustomerOrder, error) {
	at = orNow(at)
	order, err := s.transition(ctx, "return", id, models.DeliveryShipped, func(o *models.CustomerOrder) error {
		if o.CODCollectedAt != nil {
			return fmt.Errorf("cash already collected for order %s: %w", o.ID, models.ErrInvalidTransition)
		}
		o.DeliveryStatus = models.DeliveryReturn
		o.DateReturn = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderReturned, order)
	return order, nil
}

// CollectCOD stamps the cash collection of a shipped COD order. The delivery
// status stays Shipped. Collecting twice keeps the first stamp.
func (s *OrderService) CollectCOD(ctx context.Context, id string, at time.Time) (*models.CustomerOrder, error) {
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PaymentMethod != models.PaymentCOD {
		s.countTransition("collect_cod", models.ErrInvalidTransition)
		return nil, fmt.Errorf("order %s is paid by %s: %w", id, current.PaymentMethod, models.ErrInvalidTransition)
	}
	if current.CODCollectedAt != nil && current.DeliveryStatus == models.DeliveryShipped {
		return current, nil
	}

	at = orNow(at)
	order, err := s.transition(ctx, "collect_cod", id, models.DeliveryShipped, func(o *models.CustomerOrder) error {
		if o.CODCollectedAt == nil {
			o.CODCollectedAt = &at
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderCODCollected, order)
	return order, nil
}

// RevertToPending cancels the courier booking and clears the tracking
// fields. The local change commits only after the courier confirms the
// cancellation; orders tracked outside our courier skip the external call.
func (s *OrderService) RevertToPending(ctx context.Context, id string) (*models.CustomerOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RevertToPending", attribute.String("order_id", id))

	order, err := s.revert(ctx, id)
	util.EndSpan(span, err)
	s.countTransition("revert", err)
	return order, err
}

func (s *OrderService) revert(ctx context.Context, id string) (*models.CustomerOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.DeliveryStatus != models.DeliveryShipped {
		return nil, fmt.Errorf("order %s is %s: %w", id, order.DeliveryStatus, models.ErrInvalidTransition)
	}
	if order.Imported {
		return nil, fmt.Errorf("imported order %s was fulfilled at the point of sale: %w", id, models.ErrInvalidTransition)
	}
	if order.CODCollectedAt != nil {
		return nil, fmt.Errorf("cash already collected for order %s: %w", id, models.ErrInvalidTransition)
	}

	if order.CourierBooked() {
		if s.courier == nil {
			return nil, &models.ExternalError{Service: "courier", Op: "cancel_shipment", Err: errors.New("courier not configured")}
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalCallTimeout)
		err := s.courier.CancelShipment(callCtx, *order.TrackingNumber)
		cancel()
		if err != nil {
			s.logger.Warn("Courier cancellation failed, order stays shipped",
				zap.String("order_id", id),
				zap.Stringp("tracking_number", order.TrackingNumber),
				zap.Error(err))
			return nil, externalErr("cancel_shipment", err)
		}
	}

	cancelled := order.TrackingNumber
	order.DeliveryStatus = models.DeliveryPending
	order.TrackingNumber = nil
	order.CourierOrderID = nil
	order.DateProcessed = nil

	if err := s.save(ctx, models.DeliveryShipped, order); err != nil {
		s.logger.Error("Courier booking cancelled but order not reverted",
			zap.String("order_id", id),
			zap.Stringp("tracking_number", cancelled),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Order reverted to pending", zap.String("order_id", id))
	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderReverted, order)
	return order, nil
}

// RestockReturn puts the units of a returned manual order back into the
// seller's stock. It runs at most once per order.
func (s *OrderService) RestockReturn(ctx context.Context, id string) (*models.CustomerOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RestockReturn", attribute.String("order_id", id))

	order, err := s.restock(ctx, id)
	util.EndSpan(span, err)
	s.countTransition("restock", err)
	return order, err
}

func (s *OrderService) restock(ctx context.Context, id string) (*models.CustomerOrder, error) {
	var (
		order   *models.CustomerOrder
		changes []balanceChange
	)

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.Imported {
			return fmt.Errorf("imported order %s never left local stock: %w", id, models.ErrInvalidTransition)
		}
		if order.DeliveryStatus != models.DeliveryReturn {
			return fmt.Errorf("order %s is %s: %w", id, order.DeliveryStatus, models.ErrInvalidTransition)
		}
		if order.RestockedAt != nil {
			return fmt.Errorf("order %s: %w", id, models.ErrAlreadyRestocked)
		}

		now := time.Now().UTC()
		order.RestockedAt = &now
		if err := tx.UpdateOrder(ctx, store.OrderUpdate{ExpectStatus: models.DeliveryReturn, Order: order}); err != nil {
			return err
		}

		_, changes, err = applyTransfer(ctx, tx, TransferCommand{
			To:        &order.SellerAccount,
			ProductID: order.ProductID,
			Quantity:  order.Quantity,
			Kind:      models.MovementRestock,
			Reference: order.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	util.TransfersTotal.WithLabelValues(string(models.MovementRestock)).Inc()
	s.logger.Info("Returned order restocked", zap.String("order_id", id), zap.Int64("quantity", order.Quantity))
	publishBalanceChanges(ctx, s.events, s.logger, changes)
	publishOrderEvent(ctx, s.events, s.logger, models.EventTypeOrderRestocked, order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.CustomerOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *OrderService) GetOrderByTracking(ctx context.Context, trackingNumber string) (*models.CustomerOrder, error) {
	return s.repo.GetOrderByTracking(ctx, trackingNumber)
}

func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.CustomerOrder, error) {
	if filter.DeliveryStatus != "" && !filter.DeliveryStatus.Valid() {
		return nil, fmt.Errorf("unknown delivery status %q: %w", filter.DeliveryStatus, models.ErrInvalidInput)
	}
	return s.repo.ListOrders(ctx, filter)
}

// Waybill fetches the printable labels for the shipped orders among ids
func (s *OrderService) Waybill(ctx context.Context, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no orders selected: %w", models.ErrInvalidInput)
	}

	trackingNumbers := make([]string, 0, len(ids))
	for _, id := range ids {
		order, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if order.DeliveryStatus == models.DeliveryShipped && order.CourierBooked() {
			trackingNumbers = append(trackingNumbers, *order.TrackingNumber)
		}
	}
	if len(trackingNumbers) == 0 {
		return nil, fmt.Errorf("none of the selected orders has a courier booking: %w", models.ErrInvalidInput)
	}
	if s.courier == nil {
		return nil, &models.ExternalError{Service: "courier", Op: "get_waybill", Err: errors.New("courier not configured")}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalCallTimeout)
	defer cancel()

	doc, err := s.courier.GetWaybill(callCtx, trackingNumbers)
	if err != nil {
		return nil, externalErr("get_waybill", err)
	}
	return doc, nil
}

// transition applies mutate to an order currently in expect and saves it
// with the status and version guard.
func (s *OrderService) transition(ctx context.Context, name, id string, expect models.DeliveryStatus, mutate func(*models.CustomerOrder) error) (*models.CustomerOrder, error) {
	order, err := s.doTransition(ctx, id, expect, mutate)
	s.countTransition(name, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Order transition",
		zap.String("order_id", id),
		zap.String("transition", name),
		zap.String("status", string(order.DeliveryStatus)))
	return order, nil
}

func (s *OrderService) doTransition(ctx context.Context, id string, expect models.DeliveryStatus, mutate func(*models.CustomerOrder) error) (*models.CustomerOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.DeliveryStatus != expect {
		return nil, fmt.Errorf("order %s is %s: %w", id, order.DeliveryStatus, models.ErrInvalidTransition)
	}
	if err := mutate(order); err != nil {
		return nil, err
	}
	if err := s.save(ctx, expect, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) save(ctx context.Context, expect models.DeliveryStatus, order *models.CustomerOrder) error {
	return s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateOrder(ctx, store.OrderUpdate{ExpectStatus: expect, Order: order})
	})
}

func (s *OrderService) lock(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	token, err := s.locker.AcquireLock(ctx, key, s.cfg.BookingLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%s is held by another request: %w", key, models.ErrConcurrentModification)
	}

	return func() {
		if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
			s.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *OrderService) countTransition(name string, err error) {
	result := "ok"
	if err != nil {
		result = failureReason(err)
		if isErr(err, models.ErrExternalServiceUnavailable) {
			result = "external"
		}
	}
	util.OrderTransitionsTotal.WithLabelValues(name, result).Inc()
}

// externalErr makes sure a courier failure, including our own deadline,
// surfaces as ErrExternalServiceUnavailable.
func externalErr(op string, err error) error {
	var ext *models.ExternalError
	if errors.As(err, &ext) {
		return err
	}
	return &models.ExternalError{Service: "courier", Op: op, Err: err}
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
