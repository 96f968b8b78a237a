package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/store/memory"
	"distribution-service/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
	fail   bool
}

func (p *fakePublisher) PublishEvent(_ context.Context, _ string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("broker down")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) balanceEvents() []*models.BalanceChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.BalanceChangedEvent
	for _, e := range p.events {
		if bc, ok := e.(*models.BalanceChangedEvent); ok {
			out = append(out, bc)
		}
	}
	return out
}

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		switch ev := e.(type) {
		case *models.BalanceChangedEvent:
			out = append(out, ev.EventType)
		case *models.RequestEvent:
			out = append(out, ev.EventType)
		case *models.OrderEvent:
			out = append(out, ev.EventType)
		case *models.ImportCompletedEvent:
			out = append(out, ev.EventType)
		}
	}
	return out
}

type fakeCourier struct {
	mu        sync.Mutex
	booked    map[string]string
	cancelled []string
	calls     int
	createErr error
	cancelErr error
	delay     time.Duration
	waybill   []string
}

func newFakeCourier() *fakeCourier {
	return &fakeCourier{booked: map[string]string{}}
}

func (c *fakeCourier) CreateShipment(ctx context.Context, order *models.CustomerOrder) (*models.Shipment, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.createErr != nil {
		return nil, c.createErr
	}
	tracking, ok := c.booked[order.ID]
	if !ok {
		tracking = fmt.Sprintf("TRK-%d", len(c.booked)+1)
		c.booked[order.ID] = tracking
	}
	return &models.Shipment{TrackingNumber: tracking, CourierOrderID: "C-" + tracking}, nil
}

func (c *fakeCourier) CancelShipment(_ context.Context, trackingNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.cancelled = append(c.cancelled, trackingNumber)
	for id, tracking := range c.booked {
		if tracking == trackingNumber {
			delete(c.booked, id)
		}
	}
	return nil
}

func (c *fakeCourier) GetWaybill(_ context.Context, trackingNumbers []string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waybill = append([]string(nil), trackingNumbers...)
	return []byte("%PDF-1.4"), nil
}

func (c *fakeCourier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	count int
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.count++
	token := fmt.Sprintf("token-%d", l.count)
	l.held[key] = token
	return token, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fakePOS struct {
	txs []models.ExternalTransaction
	err error
}

func (p *fakePOS) FetchTransactions(_ context.Context, _ string, _ time.Time) ([]models.ExternalTransaction, error) {
	return p.txs, p.err
}

// testEnv is a full engine over the in-memory store with the chain
// hq -> master -> agent and hq -> branch -> marketer, all holding nothing.
type testEnv struct {
	repo      *memory.Store
	publisher *fakePublisher
	courier   *fakeCourier
	locker    *fakeLocker
	pos       *fakePOS

	catalog  *CatalogService
	ledger   *LedgerService
	requests *RequestService
	orders   *OrderService
	imports  *ImportService
	rewards  *RewardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	util.SetLogger(zap.NewNop())

	env := &testEnv{
		repo:      memory.New(),
		publisher: &fakePublisher{},
		courier:   newFakeCourier(),
		locker:    &fakeLocker{},
		pos:       &fakePOS{},
	}
	events := broker.NewEventPublisher(env.publisher)

	env.catalog = NewCatalogService(env.repo)
	env.ledger = NewLedgerService(env.repo, events)
	env.requests = NewRequestService(env.repo, events)
	env.orders = NewOrderService(env.repo, env.courier, env.locker, events, OrderConfig{
		ExternalCallTimeout: 200 * time.Millisecond,
		BookingLockTTL:      time.Second,
	})
	env.imports = NewImportService(env.repo, env.pos, events, []string{"fee", "Ongkir"})
	env.rewards = NewRewardService(env.repo)

	ctx := context.Background()
	for _, a := range []CreateAccountRequest{
		{ID: "hq", Name: "Head Office", Role: models.RoleHQ},
		{ID: "master", Name: "Master Agent", Role: models.RoleMasterAgent},
		{ID: "agent", Name: "Agent", Role: models.RoleAgent},
		{ID: "branch", Name: "Branch", Role: models.RoleBranch, SubRole: models.TierAgent},
		{ID: "marketer", Name: "Marketer", Role: models.RoleMarketer},
	} {
		a := a
		_, err := env.catalog.CreateAccount(ctx, &a)
		require.NoError(t, err)
	}

	require.NoError(t, env.repo.CreateProduct(ctx, &models.Product{
		ID:               "serum",
		SKU:              "SRM-01",
		Name:             "Glow Serum",
		PriceHQ:          decimal.NewFromInt(50),
		PriceMasterAgent: decimal.NewFromInt(70),
		PriceAgent:       decimal.NewFromInt(85),
		PriceCustomer:    decimal.NewFromInt(100),
		Active:           true,
	}))
	return env
}

// stock gives account qty units of the serum through the engine
func (e *testEnv) stock(t *testing.T, account string, qty int64) {
	t.Helper()
	ctx := context.Background()
	_, err := e.ledger.ReceiveStock(ctx, "hq", "serum", qty, "")
	require.NoError(t, err)
	if account == "hq" {
		return
	}
	from := "hq"
	_, err = e.ledger.Transfer(ctx, TransferCommand{From: &from, To: &account, ProductID: "serum", Quantity: qty})
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, account string) int64 {
	t.Helper()
	qty, err := e.ledger.GetBalance(context.Background(), account, "serum")
	require.NoError(t, err)
	return qty
}

func (e *testEnv) totalStock(t *testing.T) int64 {
	t.Helper()
	rows, err := e.repo.ListProductBalances(context.Background(), "serum")
	require.NoError(t, err)
	var total int64
	for _, b := range rows {
		total += b.Quantity
	}
	return total
}

// failingCreditRepo fails every positive adjustment, simulating a crash
// between the debit and the credit of a transfer
type failingCreditRepo struct {
	store.Repository
}

type failingCreditTx struct {
	store.Tx
}

func (r failingCreditRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.Repository.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingCreditTx{tx})
	})
}

func (t failingCreditTx) AdjustBalance(ctx context.Context, accountID, productID string, delta int64) (models.InventoryBalance, error) {
	if delta > 0 {
		return models.InventoryBalance{}, fmt.Errorf("connection lost")
	}
	return t.Tx.AdjustBalance(ctx, accountID, productID, delta)
}
