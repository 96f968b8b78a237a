package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "pos"

// Client pulls sales from the point-of-sale API. Calls are paced to the
// provider's per-minute rate limit.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter <-chan time.Time
}

// NewClient creates a POS client
func NewClient(baseURL, apiKey string, ratePerMin int, timeout time.Duration) *Client {
	if ratePerMin < 1 {
		ratePerMin = 10
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: time.Tick(time.Minute / time.Duration(ratePerMin)),
	}
}

type saleLine struct {
	Name      string      `json:"name"`
	SKU       string      `json:"sku"`
	Quantity  json.Number `json:"quantity"`
	UnitPrice json.Number `json:"unit_price"`
}

type sale struct {
	SaleNumber    string     `json:"sale_number"`
	SaleDate      string     `json:"sale_date"`
	SaleStatus    string     `json:"sale_status"`
	PaymentMethod string     `json:"payment_method"`
	CustomerID    string     `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	Items         []saleLine `json:"items"`
}

type salesPage struct {
	Data       []sale `json:"data"`
	NextCursor string `json:"next_cursor"`
}

// FetchTransactions returns every sale the outlet recorded on date
func (c *Client) FetchTransactions(ctx context.Context, outlet string, date time.Time) ([]models.ExternalTransaction, error) {
	var out []models.ExternalTransaction
	cursor := ""

	for {
		params := url.Values{}
		params.Set("outlet", outlet)
		params.Set("date", date.Format("2006-01-02"))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		page, err := c.getPage(ctx, params)
		if err != nil {
			return nil, &models.ExternalError{Service: serviceName, Op: "fetch_transactions", Err: err}
		}

		for _, s := range page.Data {
			out = append(out, toTransaction(s, date))
		}

		if page.NextCursor == "" || len(page.Data) == 0 {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) getPage(ctx context.Context, params url.Values) (*salesPage, error) {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sales?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		observe(start, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		observe(start, err)
		return nil, err
	}

	var page salesPage
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		observe(start, err)
		return nil, fmt.Errorf("decode sales page: %w", err)
	}
	observe(start, nil)
	return &page, nil
}

func toTransaction(s sale, fallback time.Time) models.ExternalTransaction {
	tx := models.ExternalTransaction{
		InvoiceNumber: s.SaleNumber,
		Date:          parseTimeOr(s.SaleDate, fallback),
		Cancelled:     isCancelled(s.SaleStatus),
		PaymentMethod: s.PaymentMethod,
		CustomerID:    s.CustomerID,
		CustomerName:  s.CustomerName,
		Lines:         make([]models.ExternalTransactionLine, 0, len(s.Items)),
	}
	for idx, item := range s.Items {
		tx.Lines = append(tx.Lines, models.ExternalTransactionLine{
			ProductName: item.Name,
			SKU:         item.SKU,
			Quantity:    wholeQuantity(s.SaleNumber, idx, item.Quantity),
			UnitPrice:   decimalFromNumber(item.UnitPrice),
		})
	}
	return tx
}

// wholeQuantity returns zero for fractional quantities so the importer skips
// the line instead of recording a truncated sale
func wholeQuantity(invoice string, idx int, num json.Number) int64 {
	qty := decimalFromNumber(num)
	if !qty.Equal(qty.Truncate(0)) {
		util.GetLogger().Warn("Fractional POS quantity, line will be skipped",
			zap.String("invoice", invoice),
			zap.Int("line", idx),
			zap.String("quantity", num.String()))
		return 0
	}
	return qty.IntPart()
}

func isCancelled(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "void", "voided", "returned", "refunded":
		return true
	}
	return false
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTimeOr(value string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

func observe(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.ExternalCallLatency.WithLabelValues(serviceName, "fetch_transactions", result).Observe(time.Since(start).Seconds())
}
