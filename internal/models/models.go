package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is any party that can hold inventory
type Account struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Role      Role      `db:"role" json:"role"`
	SubRole   PriceTier `db:"sub_role" json:"sub_role,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PriceTier returns the tier this account pays when buying stock.
// Branches carry their tier in SubRole and default to the master agent tier.
func (a *Account) PriceTier() PriceTier {
	switch a.Role {
	case RoleHQ:
		return TierHQ
	case RoleMasterAgent:
		return TierMasterAgent
	case RoleAgent, RoleMarketer:
		return TierAgent
	case RoleBranch:
		if a.SubRole.Valid() {
			return a.SubRole
		}
		return TierMasterAgent
	}
	return TierCustomer
}

// Product represents a product in the catalog
type Product struct {
	ID               string          `db:"id" json:"id"`
	SKU              string          `db:"sku" json:"sku"`
	Name             string          `db:"name" json:"name"`
	PriceHQ          decimal.Decimal `db:"price_hq" json:"price_hq"`
	PriceMasterAgent decimal.Decimal `db:"price_master_agent" json:"price_master_agent"`
	PriceAgent       decimal.Decimal `db:"price_agent" json:"price_agent"`
	PriceCustomer    decimal.Decimal `db:"price_customer" json:"price_customer"`
	Active           bool            `db:"active" json:"active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// PriceFor returns the unit price for a tier
func (p *Product) PriceFor(tier PriceTier) decimal.Decimal {
	switch tier {
	case TierHQ:
		return p.PriceHQ
	case TierMasterAgent:
		return p.PriceMasterAgent
	case TierAgent:
		return p.PriceAgent
	case TierCustomer:
		return p.PriceCustomer
	}
	return p.PriceCustomer
}

// InventoryBalance is the stock an account holds of one product
type InventoryBalance struct {
	AccountID string    `db:"account_id" json:"account_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	// Version increases with every committed adjustment of the row
	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TransferRequest is a purchase order or stock request between two tiers
type TransferRequest struct {
	ID               string          `db:"id" json:"id"`
	RequesterAccount string          `db:"requester_account" json:"requester_account"`
	FulfillerAccount string          `db:"fulfiller_account" json:"fulfiller_account"`
	ProductID        string          `db:"product_id" json:"product_id"`
	Quantity         int64           `db:"quantity" json:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice       decimal.Decimal `db:"total_price" json:"total_price"`
	Status           RequestStatus   `db:"status" json:"status"`
	RequestedAt      time.Time       `db:"requested_at" json:"requested_at"`
	DecidedAt        *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy        *string         `db:"decided_by" json:"decided_by,omitempty"`
	RejectionReason  *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// CustomerOrder is a sale to an external customer
type CustomerOrder struct {
	ID             string          `db:"id" json:"id"`
	SellerAccount  string          `db:"seller_account" json:"seller_account"`
	CustomerID     string          `db:"customer_id" json:"customer_id"`
	CustomerName   string          `db:"customer_name" json:"customer_name,omitempty"`
	ProductID      string          `db:"product_id" json:"product_id"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	PaymentMethod  PaymentMethod   `db:"payment_method" json:"payment_method"`
	DeliveryStatus DeliveryStatus  `db:"delivery_status" json:"delivery_status"`
	TrackingNumber *string         `db:"tracking_number" json:"tracking_number,omitempty"`
	CourierOrderID *string         `db:"courier_order_id" json:"courier_order_id,omitempty"`
	Platform       Platform        `db:"platform" json:"platform"`
	DateOrder      time.Time       `db:"date_order" json:"date_order"`
	DateProcessed  *time.Time      `db:"date_processed" json:"date_processed,omitempty"`
	DateReturn     *time.Time      `db:"date_return" json:"date_return,omitempty"`
	CODCollectedAt *time.Time      `db:"cod_collected_at" json:"cod_collected_at,omitempty"`
	RestockedAt    *time.Time      `db:"restocked_at" json:"restocked_at,omitempty"`
	InvoiceNumber  *string         `db:"invoice_number" json:"invoice_number,omitempty"`
	LineIndex      *int            `db:"line_index" json:"line_index,omitempty"`
	Imported       bool            `db:"imported" json:"imported"`
	Version        int64           `db:"version" json:"version"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Delivered reports the implicit delivered state: shipped and cash collected
func (o *CustomerOrder) Delivered() bool {
	return o.DeliveryStatus == DeliveryShipped && o.CODCollectedAt != nil
}

// CourierBooked reports whether the tracking number came from the courier adapter
func (o *CustomerOrder) CourierBooked() bool {
	return o.CourierOrderID != nil && *o.CourierOrderID != ""
}

// Shipment is what the courier returns for a booking
type Shipment struct {
	TrackingNumber string `json:"tracking_number"`
	CourierOrderID string `json:"courier_order_id"`
}

// StockMovement is the append-only journal row written next to every balance change
type StockMovement struct {
	ID          string       `db:"id" json:"id"`
	Kind        MovementKind `db:"kind" json:"kind"`
	FromAccount *string      `db:"from_account" json:"from_account,omitempty"`
	ToAccount   *string      `db:"to_account" json:"to_account,omitempty"`
	ProductID   string       `db:"product_id" json:"product_id"`
	Quantity    int64        `db:"quantity" json:"quantity"`
	Reference   string       `db:"reference" json:"reference"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// RewardTarget is a sales goal for a role over a month or a year
type RewardTarget struct {
	ID          string    `db:"id" json:"id"`
	Role        Role      `db:"role" json:"role"`
	SubRole     *string   `db:"sub_role" json:"sub_role,omitempty"`
	Month       *int      `db:"month" json:"month,omitempty"`
	Year        int       `db:"year" json:"year"`
	MinQuantity int64     `db:"min_quantity" json:"min_quantity"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Period returns the [from, to) window the target covers
func (t *RewardTarget) Period() (time.Time, time.Time) {
	if t.Month == nil {
		from := time.Date(t.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0)
	}
	from := time.Date(t.Year, time.Month(*t.Month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// ExternalTransaction is a sale pulled from the point-of-sale system
type ExternalTransaction struct {
	InvoiceNumber string                    `json:"invoice_number"`
	Date          time.Time                 `json:"date"`
	Cancelled     bool                      `json:"cancelled"`
	PaymentMethod string                    `json:"payment_method"`
	CustomerID    string                    `json:"customer_id"`
	CustomerName  string                    `json:"customer_name"`
	Lines         []ExternalTransactionLine `json:"lines"`
}

// ExternalTransactionLine is one line item of an ExternalTransaction
type ExternalTransactionLine struct {
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// ImportSummary counts the outcome of an import batch
type ImportSummary struct {
	Imported         int `json:"imported"`
	SkippedCancelled int `json:"skipped_cancelled"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	SkippedExcluded  int `json:"skipped_excluded"`
	SkippedUnmatched int `json:"skipped_unmatched"`
}
