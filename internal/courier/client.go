package courier

import (
	"bytes"
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
)

const serviceName = "courier"

// Client talks to the courier booking API over HTTP/JSON
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a courier client; timeout bounds every call
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type shipmentRequest struct {
	Reference     string `json:"reference"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	ProductID     string `json:"product_id"`
	Quantity      int64  `json:"quantity"`
	CODAmount     string `json:"cod_amount,omitempty"`
	PaymentMethod string `json:"payment_method"`
}

// CreateShipment books a shipment. The order ID travels as the reference so
// the courier can dedupe a retried booking whose first response was lost.
func (c *Client) CreateShipment(ctx context.Context, order *models.CustomerOrder) (*models.Shipment, error) {
	body := shipmentRequest{
		Reference:     order.ID,
		CustomerID:    order.CustomerID,
		CustomerName:  order.CustomerName,
		ProductID:     order.ProductID,
		Quantity:      order.Quantity,
		PaymentMethod: string(order.PaymentMethod),
	}
	if order.PaymentMethod == models.PaymentCOD {
		body.CODAmount = order.TotalPrice.StringFixed(2)
	}

	var shipment models.Shipment
	if err := c.do(ctx, "create_shipment", http.MethodPost, "/shipments", body, &shipment); err != nil {
		return nil, err
	}
	if shipment.TrackingNumber == "" {
		return nil, c.fail("create_shipment", fmt.Errorf("empty tracking number"))
	}
	return &shipment, nil
}

// CancelShipment cancels a booking by tracking number
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string) error {
	path := fmt.Sprintf("/shipments/%s/cancel", url.PathEscape(trackingNumber))
	return c.do(ctx, "cancel_shipment", http.MethodPost, path, nil, nil)
}

// GetWaybill returns the printable label document for the tracking numbers
func (c *Client) GetWaybill(ctx context.Context, trackingNumbers []string) ([]byte, error) {
	start := time.Now()
	payload, err := json.Marshal(map[string][]string{"tracking_numbers": trackingNumbers})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/waybills", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("get_waybill", start, err)
		return nil, c.fail("get_waybill", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := statusError(resp)
		c.observe("get_waybill", start, err)
		return nil, c.fail("get_waybill", err)
	}

	doc, err := io.ReadAll(resp.Body)
	c.observe("get_waybill", start, err)
	if err != nil {
		return nil, c.fail("get_waybill", err)
	}
	return doc, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	start := time.Now()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, start, err)
		return c.fail(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := statusError(resp)
		c.observe(op, start, err)
		return c.fail(op, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.observe(op, start, err)
			return c.fail(op, fmt.Errorf("decode response: %w", err))
		}
	}
	c.observe(op, start, nil)
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) fail(op string, err error) error {
	return &models.ExternalError{Service: serviceName, Op: op, Err: err}
}

func (c *Client) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.ExternalCallLatency.WithLabelValues(serviceName, op, result).Observe(time.Since(start).Seconds())
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
