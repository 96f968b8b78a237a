package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distribution-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codOrder() *models.CustomerOrder {
	return &models.CustomerOrder{
		ID:            "order-1",
		CustomerID:    "cust-1",
		CustomerName:  "Dewi",
		ProductID:     "serum",
		Quantity:      2,
		TotalPrice:    decimal.NewFromInt(200),
		PaymentMethod: models.PaymentCOD,
	}
}

func TestCreateShipment(t *testing.T) {
	var got shipmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shipments", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracking_number":"JX123","courier_order_id":"C-9"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	shipment, err := c.CreateShipment(context.Background(), codOrder())
	require.NoError(t, err)
	assert.Equal(t, "JX123", shipment.TrackingNumber)
	assert.Equal(t, "C-9", shipment.CourierOrderID)

	assert.Equal(t, "order-1", got.Reference)
	assert.Equal(t, "200.00", got.CODAmount)
	assert.Equal(t, "COD", got.PaymentMethod)
}

func TestCreateShipmentPrepaidHasNoCODAmount(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"tracking_number":"JX124"}`))
	}))
	defer srv.Close()

	order := codOrder()
	order.PaymentMethod = models.PaymentOnlineTransfer
	_, err := NewClient(srv.URL, "", time.Second).CreateShipment(context.Background(), order)
	require.NoError(t, err)
	assert.NotContains(t, raw, "cod_amount")
}

func TestCreateShipmentFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		},
		"empty tracking": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"tracking_number":""}`))
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "", time.Second).CreateShipment(context.Background(), codOrder())
			require.ErrorIs(t, err, models.ErrExternalServiceUnavailable)
			var ext *models.ExternalError
			require.ErrorAs(t, err, &ext)
			assert.Equal(t, "courier", ext.Service)
			assert.Equal(t, "create_shipment", ext.Op)
		})
	}
}

func TestCreateShipmentTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 50*time.Millisecond).CreateShipment(context.Background(), codOrder())
	assert.ErrorIs(t, err, models.ErrExternalServiceUnavailable)
}

func TestCancelShipment(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "", time.Second).CancelShipment(context.Background(), "JX123"))
	assert.Equal(t, "/shipments/JX123/cancel", path)
}

func TestCancelShipmentEscapesTracking(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "", time.Second).CancelShipment(context.Background(), "JX 1/2?x"))
	assert.Equal(t, "/shipments/JX%201%2F2%3Fx/cancel", path)
}

func TestGetWaybill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
		var body map[string][]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"JX1", "JX2"}, body["tracking_numbers"])
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	doc, err := NewClient(srv.URL, "", time.Second).GetWaybill(context.Background(), []string{"JX1", "JX2"})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), doc)
}
