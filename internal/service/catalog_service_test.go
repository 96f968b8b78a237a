package service

import (
	"context"
	"testing"

	"distribution-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account, err := env.catalog.CreateAccount(ctx, &CreateAccountRequest{Name: "  Reseller  ", Role: models.RoleAgent})
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "Reseller", account.Name)
	assert.True(t, account.Active)
	assert.Equal(t, models.TierAgent, account.PriceTier())

	_, err = env.catalog.CreateAccount(ctx, &CreateAccountRequest{Name: "X", Role: models.RoleAgent, SubRole: models.TierAgent})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "only branches carry a tier")

	_, err = env.catalog.CreateAccount(ctx, &CreateAccountRequest{Name: "X", Role: "king"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.catalog.CreateAccount(ctx, &CreateAccountRequest{ID: "hq", Name: "Second HQ", Role: models.RoleHQ})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestBranchPaysItsTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	plain, err := env.catalog.CreateAccount(ctx, &CreateAccountRequest{ID: "plain-branch", Name: "Plain", Role: models.RoleBranch})
	require.NoError(t, err)
	assert.Equal(t, models.TierMasterAgent, plain.PriceTier())

	req := createRequest(t, env, "branch", "hq", 2)
	assert.True(t, decimal.NewFromInt(85).Equal(req.UnitPrice))

	req = createRequest(t, env, "plain-branch", "hq", 2)
	assert.True(t, decimal.NewFromInt(70).Equal(req.UnitPrice))
}

func TestDeleteAccountHoldingStock(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "agent", 3)
	ctx := context.Background()

	assert.ErrorIs(t, env.catalog.DeleteAccount(ctx, "agent"), models.ErrAccountHasStock)

	_, err := env.ledger.Transfer(ctx, TransferCommand{From: strp("agent"), ProductID: "serum", Quantity: 3})
	require.NoError(t, err)
	require.NoError(t, env.catalog.DeleteAccount(ctx, "agent"))

	_, err = env.catalog.GetAccount(ctx, "agent")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteAccountWithHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createRequest(t, env, "master", "hq", 5)

	err := env.catalog.DeleteAccount(ctx, "master")
	assert.ErrorIs(t, err, models.ErrAccountInUse)
	assert.True(t, models.IsConflict(err))

	_, err = env.catalog.GetAccount(ctx, "master")
	assert.NoError(t, err)
}

func TestProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product, err := env.catalog.CreateProduct(ctx, &ProductRequest{
		SKU:           "TNR-02",
		Name:          "Toner",
		PriceCustomer: decimal.RequireFromString("49.90"),
	})
	require.NoError(t, err)
	assert.True(t, product.Active)

	_, err = env.catalog.CreateProduct(ctx, &ProductRequest{SKU: "TNR-02", Name: "Toner again"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.catalog.CreateProduct(ctx, &ProductRequest{SKU: "X", Name: "X", PriceHQ: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	inactive := false
	updated, err := env.catalog.UpdateProduct(ctx, product.ID, &ProductRequest{
		SKU:           "IGNORED",
		PriceCustomer: decimal.NewFromInt(55),
		Active:        &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "TNR-02", updated.SKU)
	assert.False(t, updated.Active)
	assert.True(t, decimal.NewFromInt(55).Equal(updated.PriceCustomer))

	_, err = env.catalog.UpdateProduct(ctx, "ghost", &ProductRequest{})
	assert.ErrorIs(t, err, models.ErrNotFound)

	products, err := env.catalog.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}
