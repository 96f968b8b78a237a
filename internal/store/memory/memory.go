package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
)

type balanceKey struct {
	account string
	product string
}

type invoiceKey struct {
	seller  string
	invoice string
	line    int
}

type state struct {
	accounts  map[string]models.Account
	products  map[string]models.Product
	balances  map[balanceKey]models.InventoryBalance
	requests  map[string]models.TransferRequest
	orders    map[string]models.CustomerOrder
	invoices  map[invoiceKey]string
	tracking  map[string]string
	movements []models.StockMovement
	targets   []models.RewardTarget
}

func newState() *state {
	return &state{
		accounts: map[string]models.Account{},
		products: map[string]models.Product{},
		balances: map[balanceKey]models.InventoryBalance{},
		requests: map[string]models.TransferRequest{},
		orders:   map[string]models.CustomerOrder{},
		invoices: map[invoiceKey]string{},
		tracking: map[string]string{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.tracking {
		c.tracking[k] = v
	}
	c.movements = append([]models.StockMovement(nil), s.movements...)
	c.targets = append([]models.RewardTarget(nil), s.targets...)
	return c
}

// Store is an in-memory Repository. A single mutex serializes every call;
// RunInTx works on a copy that replaces the live state only on success.
type Store struct {
	mu sync.Mutex
	st *state
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*state)(nil)
)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAccount(ctx, id)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetProduct(ctx, id)
}

func (s *Store) GetBalance(ctx context.Context, accountID, productID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetBalance(ctx, accountID, productID)
}

func (s *Store) GetTransferRequest(ctx context.Context, id string) (*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetTransferRequest(ctx, id)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.CustomerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetOrder(ctx, id)
}

func (s *Store) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.accounts[account.ID]; exists {
		return fmt.Errorf("account %s already exists: %w", account.ID, models.ErrInvalidInput)
	}
	account.CreatedAt = time.Now().UTC()
	s.st.accounts[account.ID] = *account
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Account, 0, len(s.st.accounts))
	for _, a := range s.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	for k, b := range s.st.balances {
		if k.account == id && b.Quantity > 0 {
			return fmt.Errorf("account %s holds %s: %w", id, k.product, models.ErrAccountHasStock)
		}
	}
	for _, r := range s.st.requests {
		if r.RequesterAccount == id || r.FulfillerAccount == id {
			return fmt.Errorf("account %s: %w", id, models.ErrAccountInUse)
		}
	}
	for _, o := range s.st.orders {
		if o.SellerAccount == id {
			return fmt.Errorf("account %s: %w", id, models.ErrAccountInUse)
		}
	}
	for k := range s.st.balances {
		if k.account == id {
			delete(s.st.balances, k)
		}
	}
	delete(s.st.accounts, id)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("sku %s already exists: %w", p.SKU, models.ErrInvalidInput)
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.st.products[p.ID] = *p
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.st.products[p.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound)
	}
	current.PriceHQ = p.PriceHQ
	current.PriceMasterAgent = p.PriceMasterAgent
	current.PriceAgent = p.PriceAgent
	current.PriceCustomer = p.PriceCustomer
	current.Active = p.Active
	current.UpdatedAt = time.Now().UTC()
	s.st.products[p.ID] = current
	*p = current
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) FindProductByNameOrSKU(_ context.Context, name, sku string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byName *models.Product
	for _, p := range s.st.products {
		p := p
		if sku != "" && p.SKU == sku {
			return &p, nil
		}
		if byName == nil && strings.EqualFold(p.Name, name) {
			byName = &p
		}
	}
	if byName == nil {
		return nil, fmt.Errorf("product %q/%q: %w", name, sku, models.ErrNotFound)
	}
	return byName, nil
}

func (s *Store) ListBalances(_ context.Context, accountID string) ([]models.InventoryBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBalances(func(k balanceKey) bool { return k.account == accountID }), nil
}

func (s *Store) ListProductBalances(_ context.Context, productID string) ([]models.InventoryBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterBalances(func(k balanceKey) bool { return k.product == productID }), nil
}

func (s *Store) ListTransferRequests(_ context.Context, filter store.RequestFilter) ([]models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.TransferRequest{}
	for _, r := range s.st.requests {
		if filter.AccountID != "" && r.RequesterAccount != filter.AccountID && r.FulfillerAccount != filter.AccountID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return limit(out, filter.Limit), nil
}

func (s *Store) ListOrders(_ context.Context, filter store.OrderFilter) ([]models.CustomerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.CustomerOrder{}
	for _, o := range s.st.orders {
		if filter.SellerAccount != "" && o.SellerAccount != filter.SellerAccount {
			continue
		}
		if filter.DeliveryStatus != "" && o.DeliveryStatus != filter.DeliveryStatus {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateOrder.After(out[j].DateOrder) })
	return limit(out, filter.Limit), nil
}

func (s *Store) GetOrderByTracking(ctx context.Context, trackingNumber string) (*models.CustomerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.st.tracking[trackingNumber]
	if !ok {
		return nil, fmt.Errorf("tracking %s: %w", trackingNumber, models.ErrNotFound)
	}
	return s.st.GetOrder(ctx, id)
}

func (s *Store) CreateRewardTarget(_ context.Context, t *models.RewardTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.CreatedAt = time.Now().UTC()
	s.st.targets = append(s.st.targets, *t)
	return nil
}

func (s *Store) ListRewardTargets(_ context.Context, role models.Role, year int) ([]models.RewardTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.RewardTarget{}
	for _, t := range s.st.targets {
		if t.Role == role && t.Year == year && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) SumReceived(_ context.Context, accountID string, kind models.MovementKind, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, m := range s.st.movements {
		if m.Kind != kind || m.ToAccount == nil || *m.ToAccount != accountID {
			continue
		}
		if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
			continue
		}
		total += m.Quantity
	}
	return total, nil
}

// Movements returns a copy of the stock journal
func (s *Store) Movements() []models.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StockMovement(nil), s.st.movements...)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
