package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// POS fetches the sales an outlet recorded on a day. *pos.Client satisfies it.
type POS interface {
	FetchTransactions(ctx context.Context, outlet string, date time.Time) ([]models.ExternalTransaction, error)
}

// ImportService reconciles point-of-sale transactions into customer orders.
// Imported orders are financial records only: the POS keeps its own stock,
// so nothing here touches inventory balances.
type ImportService struct {
	repo     store.Repository
	pos      POS
	events   *broker.EventPublisher
	excluded []string
	logger   *zap.Logger
}

// NewImportService creates a new import service. excluded holds
// case-insensitive substrings of product names that never become orders.
func NewImportService(repo store.Repository, pos POS, events *broker.EventPublisher, excluded []string) *ImportService {
	rules := make([]string, 0, len(excluded))
	for _, rule := range excluded {
		if rule = strings.ToLower(strings.TrimSpace(rule)); rule != "" {
			rules = append(rules, rule)
		}
	}
	return &ImportService{
		repo:     repo,
		pos:      pos,
		events:   events,
		excluded: rules,
		logger:   util.GetLogger(),
	}
}

// ImportBatch writes every surviving line of txs as a shipped POS order.
// Lines already imported for the seller are skipped, so re-running the same
// window has no further effect.
func (s *ImportService) ImportBatch(ctx context.Context, seller string, txs []models.ExternalTransaction) (*models.ImportSummary, error) {
	ctx, span := util.StartSpan(ctx, "ImportService.ImportBatch",
		attribute.String("seller", seller),
		attribute.Int("transactions", len(txs)))

	summary, err := s.importBatch(ctx, seller, txs)
	util.EndSpan(span, err)
	return summary, err
}

func (s *ImportService) importBatch(ctx context.Context, seller string, txs []models.ExternalTransaction) (*models.ImportSummary, error) {
	account, err := s.repo.GetAccount(ctx, seller)
	if err != nil {
		return nil, err
	}

	summary := &models.ImportSummary{}
	for i := range txs {
		tx := &txs[i]
		if strings.TrimSpace(tx.InvoiceNumber) == "" {
			s.logger.Warn("Skipping transaction without invoice number", zap.String("seller", seller))
			summary.SkippedUnmatched += len(tx.Lines)
			continue
		}
		if tx.Cancelled {
			summary.SkippedCancelled += len(tx.Lines)
			continue
		}

		counts, err := s.importTransaction(ctx, account.ID, tx)
		if err != nil {
			return summary, fmt.Errorf("invoice %s: %w", tx.InvoiceNumber, err)
		}
		summary.Imported += counts.Imported
		summary.SkippedDuplicate += counts.SkippedDuplicate
		summary.SkippedExcluded += counts.SkippedExcluded
		summary.SkippedUnmatched += counts.SkippedUnmatched
	}

	util.ImportLinesTotal.WithLabelValues("imported").Add(float64(summary.Imported))
	util.ImportLinesTotal.WithLabelValues("cancelled").Add(float64(summary.SkippedCancelled))
	util.ImportLinesTotal.WithLabelValues("duplicate").Add(float64(summary.SkippedDuplicate))
	util.ImportLinesTotal.WithLabelValues("excluded").Add(float64(summary.SkippedExcluded))
	util.ImportLinesTotal.WithLabelValues("unmatched").Add(float64(summary.SkippedUnmatched))

	s.logger.Info("Import batch completed",
		zap.String("seller", seller),
		zap.Int("imported", summary.Imported),
		zap.Int("skipped_cancelled", summary.SkippedCancelled),
		zap.Int("skipped_duplicate", summary.SkippedDuplicate),
		zap.Int("skipped_excluded", summary.SkippedExcluded),
		zap.Int("skipped_unmatched", summary.SkippedUnmatched))

	publishImportCompleted(ctx, s.events, s.logger, seller, summary)
	return summary, nil
}

// importTransaction writes the lines of one invoice as a single unit. The
// counts are only merged into the batch once the unit has committed.
func (s *ImportService) importTransaction(ctx context.Context, seller string, ext *models.ExternalTransaction) (models.ImportSummary, error) {
	var counts models.ImportSummary

	orders := make([]*models.CustomerOrder, 0, len(ext.Lines))

	for idx, line := range ext.Lines {
		if s.isExcluded(line.ProductName) {
			counts.SkippedExcluded++
			continue
		}
		if line.Quantity <= 0 {
			s.logger.Warn("Skipping line with no quantity",
				zap.String("invoice", ext.InvoiceNumber),
				zap.Int("line", idx))
			counts.SkippedExcluded++
			continue
		}

		product, err := s.repo.FindProductByNameOrSKU(ctx, line.ProductName, line.SKU)
		if err != nil {
			if isErr(err, models.ErrNotFound) {
				s.logger.Warn("No catalog product for POS line",
					zap.String("invoice", ext.InvoiceNumber),
					zap.String("product_name", line.ProductName),
					zap.String("sku", line.SKU))
				counts.SkippedUnmatched++
				continue
			}
			return counts, err
		}

		orders = append(orders, buildImportedOrder(seller, ext, idx, line, product))
	}

	if len(orders) == 0 {
		return counts, nil
	}

	var imported, duplicate int
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		imported, duplicate = 0, 0
		for _, order := range orders {
			inserted, err := tx.InsertImportedOrder(ctx, order)
			if err != nil {
				return err
			}
			if inserted {
				imported++
			} else {
				duplicate++
			}
		}
		return nil
	})
	if err != nil {
		return counts, err
	}

	counts.Imported = imported
	counts.SkippedDuplicate = duplicate
	return counts, nil
}

func buildImportedOrder(seller string, ext *models.ExternalTransaction, idx int, line models.ExternalTransactionLine, product *models.Product) *models.CustomerOrder {
	unitPrice := line.UnitPrice
	if unitPrice.IsZero() {
		unitPrice = product.PriceCustomer
	}
	date := ext.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	invoice := ext.InvoiceNumber
	lineIndex := idx
	customerID := ext.CustomerID
	if customerID == "" {
		customerID = "walk-in"
	}

	return &models.CustomerOrder{
		ID:             uuid.New().String(),
		SellerAccount:  seller,
		CustomerID:     customerID,
		CustomerName:   ext.CustomerName,
		ProductID:      product.ID,
		Quantity:       line.Quantity,
		UnitPrice:      unitPrice,
		TotalPrice:     unitPrice.Mul(decimal.NewFromInt(line.Quantity)),
		PaymentMethod:  mapPaymentMethod(ext.PaymentMethod),
		DeliveryStatus: models.DeliveryShipped,
		Platform:       models.PlatformPOS,
		DateOrder:      date,
		DateProcessed:  &date,
		InvoiceNumber:  &invoice,
		LineIndex:      &lineIndex,
		Imported:       true,
	}
}

func (s *ImportService) isExcluded(productName string) bool {
	name := strings.ToLower(productName)
	for _, rule := range s.excluded {
		if strings.Contains(name, rule) {
			return true
		}
	}
	return false
}

func mapPaymentMethod(raw string) models.PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cash", "tunai":
		return models.PaymentCash
	case "cod", "cash_on_delivery":
		return models.PaymentCOD
	}
	return models.PaymentOnlineTransfer
}

// SyncFromPOS pulls the seller's sales for date and imports them
func (s *ImportService) SyncFromPOS(ctx context.Context, seller string, date time.Time) (*models.ImportSummary, error) {
	ctx, span := util.StartSpan(ctx, "ImportService.SyncFromPOS", attribute.String("seller", seller))

	summary, err := s.sync(ctx, seller, date)
	util.EndSpan(span, err)
	return summary, err
}

func (s *ImportService) sync(ctx context.Context, seller string, date time.Time) (*models.ImportSummary, error) {
	if s.pos == nil {
		return nil, &models.ExternalError{Service: "pos", Op: "fetch_transactions", Err: fmt.Errorf("pos not configured")}
	}

	// No deadline over the whole fetch: a busy day spans many rate-limited
	// pages and each page request is bounded by the POS client itself.
	txs, err := s.pos.FetchTransactions(ctx, seller, date)
	if err != nil {
		s.logger.Warn("POS fetch failed", zap.String("seller", seller), zap.Time("date", date), zap.Error(err))
		if !isErr(err, models.ErrExternalServiceUnavailable) {
			err = &models.ExternalError{Service: "pos", Op: "fetch_transactions", Err: err}
		}
		return nil, err
	}

	return s.ImportBatch(ctx, seller, txs)
}
