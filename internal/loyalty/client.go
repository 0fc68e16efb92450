// Package loyalty talks to the external loyalty-points service. Point
// accrual is driven by dispatched payment events, never by the order
// transaction itself.
package loyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// one point per 10,000 cents spent
const centsPerPoint = 10_000

// Client wraps the loyalty service HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds the loyalty client from configuration.
func NewClient(cfg config.LoyaltyConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("loyalty base url is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// PointsFor converts a paid amount into loyalty points.
func PointsFor(amountCents int64) int64 {
	if amountCents <= 0 {
		return 0
	}
	return amountCents / centsPerPoint
}

// Earn credits points for a paid order. The order ID doubles as the
// idempotency key on the loyalty side.
func (c *Client) Earn(ctx context.Context, userID, orderID uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	return c.post(ctx, "/v1/points/earn", map[string]any{
		"userId":         userID.String(),
		"referenceId":    orderID.String(),
		"points":         points,
		"idempotencyKey": "earn:" + orderID.String(),
	})
}

// Refund claws back points for a cancelled or returned order.
func (c *Client) Refund(ctx context.Context, userID, orderID uuid.UUID) error {
	return c.post(ctx, "/v1/points/refund", map[string]any{
		"userId":         userID.String(),
		"referenceId":    orderID.String(),
		"idempotencyKey": "refund:" + orderID.String(),
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "loyalty client not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal loyalty request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build loyalty request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute loyalty request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"loyalty request failed")
	}
	return nil
}
