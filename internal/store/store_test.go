package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"distribution-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run against TEST_DATABASE_URL and are skipped without it.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database (set TEST_DATABASE_URL)")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccountAndProduct(t *testing.T, s *Store) (string, string) {
	t.Helper()
	ctx := context.Background()

	account := &models.Account{ID: uuid.New().String(), Name: "Branch", Role: models.RoleBranch, Active: true}
	require.NoError(t, s.CreateAccount(ctx, account))

	product := &models.Product{
		ID:            uuid.New().String(),
		SKU:           "SKU-" + uuid.New().String()[:8],
		Name:          "Serum",
		PriceCustomer: decimal.NewFromInt(100),
		Active:        true,
	}
	require.NoError(t, s.CreateProduct(ctx, product))
	return account.ID, product.ID
}

func TestAdjustBalanceNeverGoesNegative(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AdjustBalance(ctx, accountID, productID, 100)
		return err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
				_, err := tx.AdjustBalance(ctx, accountID, productID, -60)
				return err
			})
		}()
	}
	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			assert.ErrorIs(t, err, models.ErrInsufficientStock)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	qty, err := s.GetBalance(ctx, accountID, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), qty)
}

func TestRunInTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AdjustBalance(ctx, accountID, productID, 10); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	qty, err := s.GetBalance(ctx, accountID, productID)
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestInsertImportedOrderIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	invoice := "INV-" + uuid.New().String()[:8]
	line := 0
	newOrder := func() *models.CustomerOrder {
		return &models.CustomerOrder{
			ID:             uuid.New().String(),
			SellerAccount:  accountID,
			CustomerID:     "walk-in",
			ProductID:      productID,
			Quantity:       1,
			UnitPrice:      decimal.NewFromInt(100),
			TotalPrice:     decimal.NewFromInt(100),
			PaymentMethod:  models.PaymentCash,
			DeliveryStatus: models.DeliveryShipped,
			Platform:       models.PlatformPOS,
			DateOrder:      time.Now().UTC(),
			InvoiceNumber:  &invoice,
			LineIndex:      &line,
			Imported:       true,
		}
	}

	var first, second bool
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		first, err = tx.InsertImportedOrder(ctx, newOrder())
		return err
	})
	require.NoError(t, err)
	err = s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		second, err = tx.InsertImportedOrder(ctx, newOrder())
		return err
	})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	orders, err := s.ListOrders(ctx, OrderFilter{SellerAccount: accountID})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestDecideTransferRequestOnlyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	hq := &models.Account{ID: uuid.New().String(), Name: "HQ", Role: models.RoleHQ, Active: true}
	require.NoError(t, s.CreateAccount(ctx, hq))

	req := &models.TransferRequest{
		ID:               uuid.New().String(),
		RequesterAccount: accountID,
		FulfillerAccount: hq.ID,
		ProductID:        productID,
		Quantity:         5,
		Status:           models.RequestPending,
		RequestedAt:      time.Now().UTC(),
	}
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateTransferRequest(ctx, req)
	}))

	decide := func(status models.RequestStatus) error {
		return s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			now := time.Now().UTC()
			req.Status = status
			req.DecidedAt = &now
			return tx.DecideTransferRequest(ctx, req)
		})
	}

	require.NoError(t, decide(models.RequestApproved))
	assert.ErrorIs(t, decide(models.RequestRejected), models.ErrAlreadyDecided)

	stored, err := s.GetTransferRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, stored.Status)
}

func TestDeleteAccountWaitsForConcurrentCredit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	credited := make(chan struct{})
	release := make(chan struct{})
	creditDone := make(chan error, 1)
	go func() {
		creditDone <- s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.AdjustBalance(ctx, accountID, productID, 10); err != nil {
				return err
			}
			close(credited)
			<-release
			return nil
		})
	}()
	<-credited

	deleteDone := make(chan error, 1)
	go func() { deleteDone <- s.DeleteAccount(ctx, accountID) }()

	select {
	case err := <-deleteDone:
		t.Fatalf("delete finished while a credit was in flight: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	close(release)

	require.NoError(t, <-creditDone)
	assert.ErrorIs(t, <-deleteDone, models.ErrAccountHasStock)

	qty, err := s.GetBalance(ctx, accountID, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)
}

func TestDeleteAccountReferencedByRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	hq := &models.Account{ID: uuid.New().String(), Name: "HQ", Role: models.RoleHQ, Active: true}
	require.NoError(t, s.CreateAccount(ctx, hq))
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateTransferRequest(ctx, &models.TransferRequest{
			ID:               uuid.New().String(),
			RequesterAccount: accountID,
			FulfillerAccount: hq.ID,
			ProductID:        productID,
			Quantity:         1,
			Status:           models.RequestPending,
			RequestedAt:      time.Now().UTC(),
		})
	}))

	err := s.DeleteAccount(ctx, accountID)
	assert.ErrorIs(t, err, models.ErrAccountInUse)
	assert.True(t, models.IsConflict(err))

	_, err = s.GetAccount(ctx, accountID)
	assert.NoError(t, err)
}

func TestUpdateOrderRejectsTrackingInUse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	accountID, productID := seedAccountAndProduct(t, s)

	newOrder := func(tracking *string) *models.CustomerOrder {
		status := models.DeliveryPending
		if tracking != nil {
			status = models.DeliveryShipped
		}
		return &models.CustomerOrder{
			ID:             uuid.New().String(),
			SellerAccount:  accountID,
			CustomerID:     "cust-1",
			ProductID:      productID,
			Quantity:       1,
			UnitPrice:      decimal.NewFromInt(100),
			TotalPrice:     decimal.NewFromInt(100),
			PaymentMethod:  models.PaymentOnlineTransfer,
			DeliveryStatus: status,
			TrackingNumber: tracking,
			Platform:       models.PlatformDirect,
			DateOrder:      time.Now().UTC(),
		}
	}

	tracking := "JX-" + uuid.New().String()[:8]
	shipped := newOrder(&tracking)
	pending := newOrder(nil)
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateOrder(ctx, shipped); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, pending)
	}))

	pending.DeliveryStatus = models.DeliveryShipped
	pending.TrackingNumber = &tracking
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateOrder(ctx, OrderUpdate{ExpectStatus: models.DeliveryPending, Order: pending})
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
