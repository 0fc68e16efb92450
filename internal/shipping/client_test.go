package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/types"
)

func TestQuoteFee(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/shipping-order/fee" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Token") != "test-token" {
			t.Errorf("missing carrier token header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    200,
			"message": "Success",
			"data":    map[string]any{"total": 32000},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	fee, err := client.QuoteFee(context.Background(), types.Address{
		DistrictID: 1454,
		WardCode:   "21012",
	})
	if err != nil {
		t.Fatalf("quote fee: %v", err)
	}
	if fee != 32000 {
		t.Fatalf("expected fee 32000, got %d", fee)
	}
}

func TestQuoteFeeRequiresDistrict(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://localhost:0")
	_, err := client.QuoteFee(context.Background(), types.Address{})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateShipment(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["cod_amount"].(float64) != 150000 {
			t.Errorf("cod order must carry the total as cod_amount, got %v", body["cod_amount"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"order_code": "GHN0042", "total_fee": 30000},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	order := &models.Order{
		ID:            uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		TotalCents:    150000,
		ShippingAddress: types.Address{
			RecipientName: "Nguyen Van A",
			Phone:         "0900000000",
			Line1:         "1 Ly Thuong Kiet",
			WardCode:      "21012",
			DistrictID:    1454,
		},
		Items: []models.OrderLineItem{
			{ProductName: "Widget", Qty: 2, UnitPriceCents: 75000},
		},
	}
	result, err := client.CreateShipment(context.Background(), order)
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	expected := orders.CarrierShipment{TrackingCode: "GHN0042", FeeCents: 30000}
	if result != expected {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCancelShipmentRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    400,
			"message": "order already picked up",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.CancelShipment(context.Background(), "GHN0042")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error on rejected cancel, got %v", err)
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.ShippingConfig{
		BaseURL:        baseURL,
		Token:          "test-token",
		ShopID:         "12345",
		RequestTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return client
}
