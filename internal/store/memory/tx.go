package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
)

func (s *state) GetAccount(_ context.Context, id string) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (s *state) GetProduct(_ context.Context, id string) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (s *state) GetBalance(_ context.Context, accountID, productID string) (int64, error) {
	return s.balances[balanceKey{accountID, productID}].Quantity, nil
}

func (s *state) AdjustBalance(_ context.Context, accountID, productID string, delta int64) (models.InventoryBalance, error) {
	key := balanceKey{accountID, productID}
	b := s.balances[key]
	if b.Quantity+delta < 0 {
		return models.InventoryBalance{}, &models.InsufficientStockError{
			AccountID: accountID,
			ProductID: productID,
			Available: b.Quantity,
			Requested: -delta,
		}
	}
	b.AccountID, b.ProductID = accountID, productID
	b.Quantity += delta
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	s.balances[key] = b
	return b, nil
}

func (s *state) AppendMovement(_ context.Context, m *models.StockMovement) error {
	s.movements = append(s.movements, *m)
	return nil
}

func (s *state) CreateTransferRequest(_ context.Context, req *models.TransferRequest) error {
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists: %w", req.ID, models.ErrInvalidInput)
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *state) GetTransferRequest(_ context.Context, id string) (*models.TransferRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	return &r, nil
}

func (s *state) DecideTransferRequest(_ context.Context, req *models.TransferRequest) error {
	current, ok := s.requests[req.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", req.ID, models.ErrNotFound)
	}
	if current.Status != models.RequestPending {
		return fmt.Errorf("request %s is %s: %w", req.ID, current.Status, models.ErrAlreadyDecided)
	}
	current.Status = req.Status
	current.DecidedAt = req.DecidedAt
	current.DecidedBy = req.DecidedBy
	current.RejectionReason = req.RejectionReason
	s.requests[req.ID] = current
	return nil
}

func (s *state) CreateOrder(_ context.Context, order *models.CustomerOrder) error {
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists: %w", order.ID, models.ErrInvalidInput)
	}
	if order.TrackingNumber != nil {
		if _, taken := s.tracking[*order.TrackingNumber]; taken {
			return fmt.Errorf("tracking %s already used: %w", *order.TrackingNumber, models.ErrInvalidInput)
		}
		s.tracking[*order.TrackingNumber] = order.ID
	}
	order.Version = 0
	order.UpdatedAt = time.Now().UTC()
	s.orders[order.ID] = *order
	return nil
}

func (s *state) InsertImportedOrder(ctx context.Context, order *models.CustomerOrder) (bool, error) {
	if order.InvoiceNumber == nil || order.LineIndex == nil {
		return false, fmt.Errorf("imported order without invoice key: %w", models.ErrInvalidInput)
	}
	key := invoiceKey{order.SellerAccount, *order.InvoiceNumber, *order.LineIndex}
	if _, exists := s.invoices[key]; exists {
		return false, nil
	}
	if err := s.CreateOrder(ctx, order); err != nil {
		return false, err
	}
	s.invoices[key] = order.ID
	return true, nil
}

func (s *state) GetOrder(_ context.Context, id string) (*models.CustomerOrder, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return &o, nil
}

func (s *state) UpdateOrder(_ context.Context, upd store.OrderUpdate) error {
	o := upd.Order
	current, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", o.ID, models.ErrNotFound)
	}
	if current.DeliveryStatus != upd.ExpectStatus {
		return fmt.Errorf("order %s is %s: %w", o.ID, current.DeliveryStatus, models.ErrInvalidTransition)
	}
	if current.Version != o.Version {
		return fmt.Errorf("order %s: %w", o.ID, models.ErrConcurrentModification)
	}

	if current.TrackingNumber != nil {
		delete(s.tracking, *current.TrackingNumber)
	}
	if o.TrackingNumber != nil {
		if owner, taken := s.tracking[*o.TrackingNumber]; taken && owner != o.ID {
			return fmt.Errorf("tracking %s already used: %w", *o.TrackingNumber, models.ErrInvalidInput)
		}
		s.tracking[*o.TrackingNumber] = o.ID
	}

	current.DeliveryStatus = o.DeliveryStatus
	current.TrackingNumber = o.TrackingNumber
	current.CourierOrderID = o.CourierOrderID
	current.DateProcessed = o.DateProcessed
	current.DateReturn = o.DateReturn
	current.CODCollectedAt = o.CODCollectedAt
	current.RestockedAt = o.RestockedAt
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	s.orders[o.ID] = current

	o.Version = current.Version
	o.UpdatedAt = current.UpdatedAt
	return nil
}

func (s *state) filterBalances(keep func(balanceKey) bool) []models.InventoryBalance {
	out := []models.InventoryBalance{}
	for k, b := range s.balances {
		if keep(k) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
