package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distribution-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const insertOrderQuery = `
	INSERT INTO customer_orders (
		id, seller_account, customer_id, customer_name, product_id, quantity, unit_price, total_price,
		payment_method, delivery_status, tracking_number, courier_order_id, platform, date_order,
		date_processed, invoice_number, line_index, imported, version
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 0)`

func orderArgs(o *models.CustomerOrder) []interface{} {
	return []interface{}{
		o.ID, o.SellerAccount, o.CustomerID, o.CustomerName, o.ProductID, o.Quantity, o.UnitPrice, o.TotalPrice,
		o.PaymentMethod, o.DeliveryStatus, o.TrackingNumber, o.CourierOrderID, o.Platform, o.DateOrder,
		o.DateProcessed, o.InvoiceNumber, o.LineIndex, o.Imported,
	}
}

// CreateOrder inserts a new customer order
func (r *queries) CreateOrder(ctx context.Context, order *models.CustomerOrder) error {
	_, err := r.q.ExecContext(ctx, insertOrderQuery, orderArgs(order)...)
	if err != nil {
		return constraintError(fmt.Errorf("failed to insert order: %w", err), models.ErrNotFound)
	}
	return nil
}

// InsertImportedOrder inserts an imported line unless its invoice key already exists
func (r *queries) InsertImportedOrder(ctx context.Context, order *models.CustomerOrder) (bool, error) {
	query := insertOrderQuery + `
	ON CONFLICT (seller_account, invoice_number, line_index) DO NOTHING`

	res, err := r.q.ExecContext(ctx, query, orderArgs(order)...)
	if err != nil {
		return false, constraintError(fmt.Errorf("failed to insert imported order: %w", err), models.ErrNotFound)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetOrder retrieves an order by ID
func (r *queries) GetOrder(ctx context.Context, id string) (*models.CustomerOrder, error) {
	var order models.CustomerOrder
	err := sqlx.GetContext(ctx, r.q, &order, "SELECT * FROM customer_orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByTracking retrieves an order by its tracking number
func (s *Store) GetOrderByTracking(ctx context.Context, trackingNumber string) (*models.CustomerOrder, error) {
	var order models.CustomerOrder
	err := sqlx.GetContext(ctx, s.q, &order,
		"SELECT * FROM customer_orders WHERE tracking_number = $1", trackingNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracking %s: %w", trackingNumber, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves orders, newest first
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.CustomerOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT * FROM customer_orders
		WHERE ($1 = '' OR seller_account = $1)
		  AND ($2 = '' OR delivery_status = $2)
		ORDER BY date_order DESC
		LIMIT $3`

	var orders []models.CustomerOrder
	err := sqlx.SelectContext(ctx, s.q, &orders, query, filter.SellerAccount, filter.DeliveryStatus, limit)
	return orders, err
}

// UpdateOrder writes the mutable lifecycle fields if the stored row still
// matches the expected status and version
func (r *queries) UpdateOrder(ctx context.Context, upd OrderUpdate) error {
	o := upd.Order
	query := `
		UPDATE customer_orders
		SET delivery_status = $4, tracking_number = $5, courier_order_id = $6, date_processed = $7,
		    date_return = $8, cod_collected_at = $9, restocked_at = $10,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND delivery_status = $2 AND version = $3
		RETURNING version, updated_at`

	row := r.q.QueryRowxContext(ctx, query,
		o.ID, upd.ExpectStatus, o.Version,
		o.DeliveryStatus, o.TrackingNumber, o.CourierOrderID, o.DateProcessed,
		o.DateReturn, o.CODCollectedAt, o.RestockedAt)
	err := row.Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := r.GetOrder(ctx, o.ID)
		if getErr != nil {
			return getErr
		}
		if current.DeliveryStatus != upd.ExpectStatus {
			return fmt.Errorf("order %s is %s: %w", o.ID, current.DeliveryStatus, models.ErrInvalidTransition)
		}
		return fmt.Errorf("order %s: %w", o.ID, models.ErrConcurrentModification)
	}
	if err != nil {
		return constraintError(fmt.Errorf("failed to update order: %w", err), models.ErrInvalidInput)
	}
	return nil
}
