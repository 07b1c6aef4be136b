// Package carrier talks to the external shipping-carrier API. The order flow
// only ever asks it to book a shipment and hand back a tracking number.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/infinitecrafts/storefront/internal/domain/order"
)

var _ order.Carrier = (*Client)(nil)

// Client books shipments over the carrier's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a carrier Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type shipmentRequest struct {
	OrderID string         `json:"order_id"`
	Name    string         `json:"name"`
	Phone   string         `json:"phone"`
	Address string         `json:"address"`
	City    string         `json:"city"`
	State   string         `json:"state"`
	Pincode string         `json:"pincode"`
	Items   []shipmentItem `json:"items"`
}

type shipmentItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type shipmentResponse struct {
	TrackingNumber string `json:"tracking_number"`
}

// CreateShipment books a shipment for the order's address and item manifest.
// Transport and non-2xx failures wrap order.ErrCarrierUnavailable so the
// lifecycle manager can surface them as retryable.
func (c *Client) CreateShipment(ctx context.Context, o *order.Order) (string, error) {
	req := shipmentRequest{
		OrderID: o.OrderID,
		Name:    o.CustomerName,
		Phone:   o.PhoneNumber,
		Address: o.Address,
		City:    o.City,
		State:   o.State,
		Pincode: o.Pincode,
		Items:   make([]shipmentItem, len(o.Items)),
	}
	for i, item := range o.Items {
		req.Items[i] = shipmentItem{Name: item.ProductName, Quantity: item.Quantity}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "marshal shipment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build shipment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", errors.Wrapf(order.ErrCarrierUnavailable, "post shipment: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(order.ErrCarrierUnavailable, "carrier returned %d", resp.StatusCode)
	}

	var out shipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrapf(order.ErrCarrierUnavailable, "decode carrier response: %v", err)
	}
	return out.TrackingNumber, nil
}
