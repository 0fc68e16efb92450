// Package shipping wraps the GHN-style carrier HTTP API: fee quotes,
// shipment registration and cancellation.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/types"
)

const responseBodyReadLimit int64 = 1024

// Client calls the carrier API. It satisfies orders.CarrierGateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	shopID     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the carrier client from configuration.
func NewClient(cfg config.ShippingConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("shipping base url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("shipping token is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		shopID:     cfg.ShopID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// QuoteFee asks the carrier for the delivery fee to the given address.
func (c *Client) QuoteFee(ctx context.Context, address types.Address) (int64, error) {
	if c == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if address.DistrictID == 0 || address.WardCode == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is missing district or ward")
	}

	payload := map[string]any{
		"to_district_id": address.DistrictID,
		"to_ward_code":   address.WardCode,
		"service_type":   2,
	}
	data, err := c.post(ctx, "/v2/shipping-order/fee", payload)
	if err != nil {
		return 0, err
	}

	var feeResp struct {
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(data, &feeResp); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fee response")
	}
	return feeResp.Total, nil
}

// CreateShipment registers the order with the carrier and returns the
// tracking handle.
func (c *Client) CreateShipment(ctx context.Context, order *models.Order) (orders.CarrierShipment, error) {
	if c == nil {
		return orders.CarrierShipment{}, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if order == nil {
		return orders.CarrierShipment{}, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}

	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":     item.ProductName,
			"quantity": item.Qty,
			"price":    item.UnitPriceCents,
		})
	}
	payload := map[string]any{
		"client_order_code": order.ID.String(),
		"to_name":           order.ShippingAddress.RecipientName,
		"to_phone":          order.ShippingAddress.Phone,
		"to_address":        order.ShippingAddress.Line1,
		"to_ward_code":      order.ShippingAddress.WardCode,
		"to_district_id":    order.ShippingAddress.DistrictID,
		"cod_amount":        codAmount(order),
		"items":             items,
		"payment_type_id":   2,
		"service_type_id":   2,
	}
	data, err := c.post(ctx, "/v2/shipping-order/create", payload)
	if err != nil {
		return orders.CarrierShipment{}, err
	}

	var created struct {
		OrderCode string `json:"order_code"`
		TotalFee  int64  `json:"total_fee"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return orders.CarrierShipment{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode create shipment response")
	}
	if created.OrderCode == "" {
		return orders.CarrierShipment{}, pkgerrors.New(pkgerrors.CodeDependency, "carrier returned no tracking code")
	}
	return orders.CarrierShipment{
		TrackingCode: created.OrderCode,
		FeeCents:     created.TotalFee,
	}, nil
}

// CancelShipment asks the carrier to cancel. Errors mean the cancellation
// was NOT accepted and the order must stay untouched.
func (c *Client) CancelShipment(ctx context.Context, trackingCode string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if strings.TrimSpace(trackingCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking code required")
	}
	_, err := c.post(ctx, "/v2/switch-status/cancel", map[string]any{
		"order_codes": []string{trackingCode},
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal carrier request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build carrier request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.token)
	if c.shopID != "" {
		req.Header.Set("ShopId", c.shopID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute carrier request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"carrier request failed")
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode carrier response")
	}
	if envelope.Code != http.StatusOK {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("carrier code %d: %s", envelope.Code, envelope.Message),
			"carrier rejected request")
	}
	return envelope.Data, nil
}

func codAmount(order *models.Order) int64 {
	if order.PaymentMethod.RequiresInitiation() {
		return 0
	}
	return order.TotalCents
}
