package pos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distribution-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstPage = `{
  "data": [
    {
      "sale_number": "INV-001",
      "sale_date": "2026-04-01T09:30:00+07:00",
      "sale_status": "completed",
      "payment_method": "cash",
      "items": [
        {"name": "Glow Serum", "sku": "SRM-01", "quantity": 2, "unit_price": "95.50"},
        {"name": "Ongkir", "quantity": 1, "unit_price": 10000}
      ]
    }
  ],
  "next_cursor": "page-2"
}`

const secondPage = `{
  "data": [
    {"sale_number": "INV-002", "sale_date": "bogus", "sale_status": "VOID", "items": []}
  ]
}`

func TestFetchTransactionsPages(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sales", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		assert.Equal(t, "outlet-7", r.URL.Query().Get("outlet"))
		assert.Equal(t, "2026-04-01", r.URL.Query().Get("date"))

		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		if cursor == "" {
			_, _ = w.Write([]byte(firstPage))
			return
		}
		_, _ = w.Write([]byte(secondPage))
	}))
	defer srv.Close()

	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	c := NewClient(srv.URL, "key-1", 60000, time.Second)
	txs, err := c.FetchTransactions(context.Background(), "outlet-7", day)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "page-2"}, cursors)
	require.Len(t, txs, 2)

	first := txs[0]
	assert.Equal(t, "INV-001", first.InvoiceNumber)
	assert.False(t, first.Cancelled)
	assert.True(t, time.Date(2026, 4, 1, 2, 30, 0, 0, time.UTC).Equal(first.Date))
	require.Len(t, first.Lines, 2)
	assert.Equal(t, int64(2), first.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("95.50").Equal(first.Lines[0].UnitPrice))
	assert.Equal(t, "SRM-01", first.Lines[0].SKU)

	second := txs[1]
	assert.True(t, second.Cancelled)
	assert.True(t, day.Equal(second.Date), "unparseable dates fall back to the requested day")
}

func TestFetchTransactionsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 60000, time.Second).FetchTransactions(context.Background(), "o", time.Now())
	require.ErrorIs(t, err, models.ErrExternalServiceUnavailable)
	assert.Contains(t, err.Error(), "429")
}

func TestFetchTransactionsRespectsContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchTransactions(ctx, "o", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFractionalQuantityIsNotTruncated(t *testing.T) {
	s := sale{SaleNumber: "INV-9", Items: []saleLine{
		{Name: "Glow Serum", Quantity: "2.5"},
		{Name: "Glow Serum", Quantity: "3.00"},
	}}
	tx := toTransaction(s, time.Now())
	require.Len(t, tx.Lines, 2)
	assert.Zero(t, tx.Lines[0].Quantity)
	assert.Equal(t, int64(3), tx.Lines[1].Quantity)
}

func TestIsCancelled(t *testing.T) {
	for _, status := range []string{"cancelled", "Canceled", " void ", "REFUNDED"} {
		assert.True(t, isCancelled(status), status)
	}
	for _, status := range []string{"completed", "paid", ""} {
		assert.False(t, isCancelled(status), status)
	}
}
