package service

import (
	"context"
	"fmt"
	"strings"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService manages accounts and products. It never touches balances.
type CatalogService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.Repository) *CatalogService {
	return &CatalogService{repo: repo, logger: util.GetLogger()}
}

// CreateAccountRequest represents a request to open an account
type CreateAccountRequest struct {
	ID      string           `json:"id"`
	Name    string           `json:"name" binding:"required"`
	Role    models.Role      `json:"role" binding:"required"`
	SubRole models.PriceTier `json:"sub_role"`
}

// CreateAccount opens a new active account
func (s *CatalogService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*models.Account, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("account name is required: %w", models.ErrInvalidInput)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", req.Role, models.ErrInvalidInput)
	}
	if req.SubRole != "" && req.Role != models.RoleBranch {
		return nil, fmt.Errorf("only branches carry a pricing tier: %w", models.ErrInvalidInput)
	}

	account := &models.Account{
		ID:      req.ID,
		Name:    strings.TrimSpace(req.Name),
		Role:    req.Role,
		SubRole: req.SubRole,
		Active:  true,
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created", zap.String("account_id", account.ID), zap.String("role", string(account.Role)))
	return account, nil
}

func (s *CatalogService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *CatalogService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.repo.ListAccounts(ctx)
}

// DeleteAccount removes an account that no longer holds stock
func (s *CatalogService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Account deleted", zap.String("account_id", id))
	return nil
}

// ProductRequest carries the mutable fields of a product
type ProductRequest struct {
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	PriceHQ          decimal.Decimal `json:"price_hq"`
	PriceMasterAgent decimal.Decimal `json:"price_master_agent"`
	PriceAgent       decimal.Decimal `json:"price_agent"`
	PriceCustomer    decimal.Decimal `json:"price_customer"`
	Active           *bool           `json:"active"`
}

func (r *ProductRequest) validatePrices() error {
	for _, price := range []decimal.Decimal{r.PriceHQ, r.PriceMasterAgent, r.PriceAgent, r.PriceCustomer} {
		if price.IsNegative() {
			return fmt.Errorf("prices must not be negative: %w", models.ErrInvalidInput)
		}
	}
	return nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if strings.TrimSpace(req.SKU) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("sku and name are required: %w", models.ErrInvalidInput)
	}
	if err := req.validatePrices(); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:               uuid.New().String(),
		SKU:              strings.TrimSpace(req.SKU),
		Name:             strings.TrimSpace(req.Name),
		PriceHQ:          req.PriceHQ,
		PriceMasterAgent: req.PriceMasterAgent,
		PriceAgent:       req.PriceAgent,
		PriceCustomer:    req.PriceCustomer,
		Active:           req.Active == nil || *req.Active,
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// UpdateProduct replaces the price schedule and active flag. SKU and name
// are identity and stay as created.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, req *ProductRequest) (*models.Product, error) {
	if err := req.validatePrices(); err != nil {
		return nil, err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	product.PriceHQ = req.PriceHQ
	product.PriceMasterAgent = req.PriceMasterAgent
	product.PriceAgent = req.PriceAgent
	product.PriceCustomer = req.PriceCustomer
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateRewardTarget registers a sales goal
func (s *CatalogService) CreateRewardTarget(ctx context.Context, target *models.RewardTarget) error {
	if !target.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", target.Role, models.ErrInvalidInput)
	}
	if target.Month != nil && (*target.Month < 1 || *target.Month > 12) {
		return fmt.Errorf("month must be 1..12: %w", models.ErrInvalidInput)
	}
	if target.Year < 2000 || target.MinQuantity <= 0 {
		return fmt.Errorf("year and min_quantity are required: %w", models.ErrInvalidInput)
	}
	if target.ID == "" {
		target.ID = uuid.New().String()
	}
	return s.repo.CreateRewardTarget(ctx, target)
}
