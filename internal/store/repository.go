package store

import (
	"context"
	"time"

	"distribution-service/internal/models"
)

// OrderFilter narrows ListOrders
type OrderFilter struct {
	SellerAccount  string
	DeliveryStatus models.DeliveryStatus
	Limit          int
}

// RequestFilter narrows ListTransferRequests
type RequestFilter struct {
	AccountID string
	Status    models.RequestStatus
	Limit     int
}

// OrderUpdate is a guarded write: it applies only while the stored order still
// has ExpectStatus. A mismatch returns models.ErrInvalidTransition.
type OrderUpdate struct {
	ExpectStatus models.DeliveryStatus
	Order        *models.CustomerOrder
}

// Reader holds the queries shared by the repository and its transactions
type Reader interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetBalance(ctx context.Context, accountID, productID string) (int64, error)
	GetTransferRequest(ctx context.Context, id string) (*models.TransferRequest, error)
	GetOrder(ctx context.Context, id string) (*models.CustomerOrder, error)
}

// Tx is the only write path for balances. Every method runs inside the
// caller's unit of work and is discarded if the unit fails.
type Tx interface {
	Reader

	// AdjustBalance atomically applies delta and returns the updated row with
	// its bumped version. A result below zero fails with
	// *models.InsufficientStockError and leaves the row untouched.
	AdjustBalance(ctx context.Context, accountID, productID string, delta int64) (models.InventoryBalance, error)
	AppendMovement(ctx context.Context, m *models.StockMovement) error

	CreateTransferRequest(ctx context.Context, req *models.TransferRequest) error
	// DecideTransferRequest moves a pending request to a terminal status.
	// Anything but pending fails with models.ErrAlreadyDecided.
	DecideTransferRequest(ctx context.Context, req *models.TransferRequest) error

	CreateOrder(ctx context.Context, order *models.CustomerOrder) error
	// InsertImportedOrder inserts unless (seller, invoice, line) exists and
	// reports whether a row was written.
	InsertImportedOrder(ctx context.Context, order *models.CustomerOrder) (bool, error)
	UpdateOrder(ctx context.Context, upd OrderUpdate) error
}

// Repository is the persistence boundary of the engine
type Repository interface {
	Reader

	// RunInTx executes fn as one atomic unit
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateAccount(ctx context.Context, account *models.Account) error
	ListAccounts(ctx context.Context) ([]models.Account, error)
	// DeleteAccount fails with models.ErrAccountHasStock while any balance is non-zero
	DeleteAccount(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	ListProducts(ctx context.Context) ([]models.Product, error)
	FindProductByNameOrSKU(ctx context.Context, name, sku string) (*models.Product, error)

	ListBalances(ctx context.Context, accountID string) ([]models.InventoryBalance, error)
	ListProductBalances(ctx context.Context, productID string) ([]models.InventoryBalance, error)

	ListTransferRequests(ctx context.Context, filter RequestFilter) ([]models.TransferRequest, error)

	ListOrders(ctx context.Context, filter OrderFilter) ([]models.CustomerOrder, error)
	GetOrderByTracking(ctx context.Context, trackingNumber string) (*models.CustomerOrder, error)

	CreateRewardTarget(ctx context.Context, target *models.RewardTarget) error
	ListRewardTargets(ctx context.Context, role models.Role, year int) ([]models.RewardTarget, error)
	// SumReceived totals units moved into accountID by movements of kind in [from, to)
	SumReceived(ctx context.Context, accountID string, kind models.MovementKind, from, to time.Time) (int64, error)
}
