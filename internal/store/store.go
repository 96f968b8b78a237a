package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"distribution-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Store is the PostgreSQL Repository
type Store struct {
	db *sqlx.DB
	*queries
}

// queries runs against either the pool or an open transaction
type queries struct {
	q sqlx.ExtContext
}

var (
	_ Repository = (*Store)(nil)
	_ Tx         = (*queries)(nil)
)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, queries: &queries{q: db}}, nil
}

// Migrate applies the embedded schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn inside a single database transaction
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateAccount inserts a new account
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, name, role, sub_role, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := sqlx.GetContext(ctx, s.q, &account.CreatedAt, query,
		account.ID, account.Name, account.Role, account.SubRole, account.Active)
	return constraintError(err, models.ErrInvalidInput)
}

// GetAccount retrieves an account by ID
func (r *queries) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := sqlx.GetContext(ctx, r.q, &account, "SELECT * FROM accounts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListAccounts retrieves all accounts
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := sqlx.SelectContext(ctx, s.q, &accounts, "SELECT * FROM accounts ORDER BY created_at")
	return accounts, err
}

// DeleteAccount removes an account that no longer holds stock. The account
// row is locked first so a concurrent credit, which needs a key-share lock on
// it to insert a balance row, cannot slip in between the check and the delete.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		q := tx.(*queries)

		var locked string
		err := sqlx.GetContext(ctx, q.q, &locked, "SELECT id FROM accounts WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var held int64
		err = sqlx.GetContext(ctx, q.q, &held, `
			SELECT COALESCE(SUM(quantity), 0) FROM (
				SELECT quantity FROM inventory_balances WHERE account_id = $1 FOR UPDATE
			) held`, id)
		if err != nil {
			return err
		}
		if held > 0 {
			return fmt.Errorf("account %s holds %d units: %w", id, held, models.ErrAccountHasStock)
		}

		if _, err := q.q.ExecContext(ctx,
			"DELETE FROM inventory_balances WHERE account_id = $1 AND quantity = 0", id); err != nil {
			return err
		}
		if _, err := q.q.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id); err != nil {
			return constraintError(fmt.Errorf("account %s: %w", id, err), models.ErrAccountInUse)
		}
		return nil
	})
}

// constraintError turns integrity violations into the domain errors the
// memory store reports for the same input
func constraintError(err, onForeignKey error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return fmt.Errorf("%v: %w", err, models.ErrInvalidInput)
	case "23503":
		return fmt.Errorf("%v: %w", err, onForeignKey)
	}
	return err
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, sku, name, price_hq, price_master_agent, price_agent, price_customer, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query,
		p.ID, p.SKU, p.Name, p.PriceHQ, p.PriceMasterAgent, p.PriceAgent, p.PriceCustomer, p.Active)
	return constraintError(row.Scan(&p.CreatedAt, &p.UpdatedAt), models.ErrInvalidInput)
}

// UpdateProduct updates the price schedule and active flag only
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET price_hq = $2, price_master_agent = $3, price_agent = $4, price_customer = $5,
		    active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, s.q, &p.UpdatedAt, query,
		p.ID, p.PriceHQ, p.PriceMasterAgent, p.PriceAgent, p.PriceCustomer, p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound)
	}
	return err
}

// GetProduct retrieves a product by ID
func (r *queries) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, r.q, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := sqlx.SelectContext(ctx, s.q, &products, "SELECT * FROM products ORDER BY sku")
	return products, err
}

// FindProductByNameOrSKU prefers an exact SKU match over a case-insensitive name match
func (s *Store) FindProductByNameOrSKU(ctx context.Context, name, sku string) (*models.Product, error) {
	query := `
		SELECT * FROM products
		WHERE ($2 <> '' AND sku = $2) OR lower(name) = lower($1)
		ORDER BY (sku = $2) DESC
		LIMIT 1`

	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, query, name, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %q/%q: %w", name, sku, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetBalance returns the quantity held; a missing row is zero
func (r *queries) GetBalance(ctx context.Context, accountID, productID string) (int64, error) {
	var qty int64
	err := sqlx.GetContext(ctx, r.q, &qty,
		"SELECT quantity FROM inventory_balances WHERE account_id = $1 AND product_id = $2",
		accountID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

// AdjustBalance applies delta as a single conditional statement so concurrent
// callers serialize on the row lock instead of racing a read-modify-write.
func (r *queries) AdjustBalance(ctx context.Context, accountID, productID string, delta int64) (models.InventoryBalance, error) {
	var balance models.InventoryBalance

	if delta >= 0 {
		query := `
			INSERT INTO inventory_balances (account_id, product_id, quantity, version, updated_at)
			VALUES ($1, $2, $3, 1, NOW())
			ON CONFLICT (account_id, product_id)
			DO UPDATE SET quantity = inventory_balances.quantity + EXCLUDED.quantity,
			              version = inventory_balances.version + 1,
			              updated_at = NOW()
			RETURNING *`
		if err := sqlx.GetContext(ctx, r.q, &balance, query, accountID, productID, delta); err != nil {
			return balance, constraintError(fmt.Errorf("failed to credit balance: %w", err), models.ErrNotFound)
		}
		return balance, nil
	}

	query := `
		UPDATE inventory_balances
		SET quantity = quantity + $3, version = version + 1, updated_at = NOW()
		WHERE account_id = $1 AND product_id = $2 AND quantity + $3 >= 0
		RETURNING *`
	err := sqlx.GetContext(ctx, r.q, &balance, query, accountID, productID, delta)
	if errors.Is(err, sql.ErrNoRows) {
		available, getErr := r.GetBalance(ctx, accountID, productID)
		if getErr != nil {
			return balance, getErr
		}
		return balance, &models.InsufficientStockError{
			AccountID: accountID,
			ProductID: productID,
			Available: available,
			Requested: -delta,
		}
	}
	if err != nil {
		return balance, fmt.Errorf("failed to debit balance: %w", err)
	}
	return balance, nil
}

// ListBalances retrieves all balances held by an account
func (s *Store) ListBalances(ctx context.Context, accountID string) ([]models.InventoryBalance, error) {
	var balances []models.InventoryBalance
	err := sqlx.SelectContext(ctx, s.q, &balances,
		"SELECT * FROM inventory_balances WHERE account_id = $1 ORDER BY product_id", accountID)
	return balances, err
}

// ListProductBalances retrieves every account's balance of a product
func (s *Store) ListProductBalances(ctx context.Context, productID string) ([]models.InventoryBalance, error) {
	var balances []models.InventoryBalance
	err := sqlx.SelectContext(ctx, s.q, &balances,
		"SELECT * FROM inventory_balances WHERE product_id = $1 ORDER BY account_id", productID)
	return balances, err
}

// AppendMovement journals a stock movement
func (r *queries) AppendMovement(ctx context.Context, m *models.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, kind, from_account, to_account, product_id, quantity, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q.ExecContext(ctx, query,
		m.ID, m.Kind, m.FromAccount, m.ToAccount, m.ProductID, m.Quantity, m.Reference, m.CreatedAt)
	return err
}
