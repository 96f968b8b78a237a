package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"distribution-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type projected struct {
	quantity int64
	version  int64
}

type fakeProjection struct {
	mu      sync.Mutex
	rows    map[string]map[string]projected
	readErr error
}

func newFakeProjection() *fakeProjection {
	return &fakeProjection{rows: map[string]map[string]projected{}}
}

func (p *fakeProjection) SetBalance(_ context.Context, accountID, productID string, quantity, version int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rows[accountID] == nil {
		p.rows[accountID] = map[string]projected{}
	}
	if current, ok := p.rows[accountID][productID]; ok && version <= current.version {
		return false, nil
	}
	p.rows[accountID][productID] = projected{quantity, version}
	return true, nil
}

func (p *fakeProjection) GetBalances(_ context.Context, accountID string) (map[string]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return nil, p.readErr
	}
	out := map[string]int64{}
	for product, row := range p.rows[accountID] {
		out[product] = row.quantity
	}
	return out, nil
}

func TestBalanceCacheIgnoresStaleEvents(t *testing.T) {
	env := newTestEnv(t)
	projection := newFakeProjection()
	cache := NewBalanceCache(env.repo, projection)
	ctx := context.Background()

	newer := &models.BalanceChangedEvent{AccountID: "agent", ProductID: "serum", Quantity: 7, Version: 4}
	older := &models.BalanceChangedEvent{AccountID: "agent", ProductID: "serum", Quantity: 3, Version: 3}

	require.NoError(t, cache.Apply(ctx, newer))
	require.NoError(t, cache.Apply(ctx, older))
	require.NoError(t, cache.Apply(ctx, newer))

	balances, err := cache.AccountBalances(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": 7}, balances)
}

func TestBalanceCacheFollowsCommitOrderNotPublishOrder(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "master", 100)
	projection := newFakeProjection()
	cache := NewBalanceCache(env.repo, projection)
	ctx := context.Background()

	from, to := "master", "agent"
	for _, qty := range []int64{40, 30} {
		_, err := env.ledger.Transfer(ctx, TransferCommand{From: &from, To: &to, ProductID: "serum", Quantity: qty})
		require.NoError(t, err)
	}

	var masterEvents []*models.BalanceChangedEvent
	for _, e := range env.publisher.balanceEvents() {
		if e.AccountID == "master" {
			masterEvents = append(masterEvents, e)
		}
	}
	require.Len(t, masterEvents, 3)
	assert.Less(t, masterEvents[1].Version, masterEvents[2].Version)

	// the later commit reaches the projection first
	for i := len(masterEvents) - 1; i >= 0; i-- {
		require.NoError(t, cache.Apply(ctx, masterEvents[i]))
	}

	balances, err := cache.AccountBalances(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": env.balance(t, "master")}, balances)
	assert.Equal(t, int64(30), balances["serum"])
}

func TestBalanceCacheFallsBackToLedger(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "agent", 12)
	projection := newFakeProjection()
	cache := NewBalanceCache(env.repo, projection)
	ctx := context.Background()

	balances, err := cache.AccountBalances(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": 12}, balances, "empty projection reads the ledger")

	projection.readErr = errors.New("redis down")
	balances, err = cache.AccountBalances(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": 12}, balances)

	noProjection := NewBalanceCache(env.repo, nil)
	balances, err = noProjection.AccountBalances(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": 12}, balances)
}

func TestBalanceCacheRebuild(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "master", 40)
	env.stock(t, "agent", 2)
	projection := newFakeProjection()
	cache := NewBalanceCache(env.repo, projection)
	ctx := context.Background()

	require.NoError(t, cache.Rebuild(ctx))

	master, err := projection.GetBalances(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": 40}, master)

	hq, err := projection.GetBalances(ctx, "hq")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"serum": 0}, hq)
}
