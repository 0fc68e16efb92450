package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/internal/payments"
	"github.com/minhvo-dev/ordercore-backend/internal/payments/confirm"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
)

var testCfg = config.MoMoConfig{
	PartnerCode: "PARTNER",
	AccessKey:   "access",
	SecretKey:   "secret",
}

type stubConfirmer struct {
	input  confirm.Input
	called bool
	result confirm.Result
	err    error
}

func (s *stubConfirmer) Confirm(ctx context.Context, input confirm.Input) (confirm.Result, error) {
	s.called = true
	s.input = input
	return s.result, s.err
}

func newHandler(t *testing.T, confirmer confirm.Service) *Handler {
	t.Helper()
	h, err := NewHandler(testCfg, confirmer, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return h
}

func signedBody(t *testing.T, orderID uuid.UUID, amount int64, resultCode int) []byte {
	t.Helper()
	body := map[string]any{
		"partnerCode":  testCfg.PartnerCode,
		"orderId":      orderID.String(),
		"requestId":    orderID.String(),
		"amount":       amount,
		"orderInfo":    "Thanh toan don hang",
		"orderType":    "momo_wallet",
		"transId":      int64(987654321),
		"resultCode":   resultCode,
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": int64(1700000000000),
		"extraData":    "",
	}
	body["signature"] = payments.SignMoMoFields(testCfg.SecretKey, [][2]string{
		{"accessKey", testCfg.AccessKey},
		{"amount", strconv.FormatInt(amount, 10)},
		{"extraData", ""},
		{"message", "Successful."},
		{"orderId", orderID.String()},
		{"orderInfo", "Thanh toan don hang"},
		{"orderType", "momo_wallet"},
		{"partnerCode", testCfg.PartnerCode},
		{"payType", "qr"},
		{"requestId", orderID.String()},
		{"responseTime", "1700000000000"},
		{"resultCode", strconv.Itoa(resultCode)},
		{"transId", "987654321"},
	})
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return raw
}

func TestHandleIPNConfirmsPayment(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{result: confirm.Result{Accepted: true}}
	h := newHandler(t, confirmer)
	orderID := uuid.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/momo", bytes.NewReader(signedBody(t, orderID, 99_000, 0)))
	h.HandleIPN(rec, req)

	if rec.Code != 204 {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !confirmer.called {
		t.Fatal("confirmation service not invoked")
	}
	if confirmer.input.OrderID != orderID || !confirmer.input.Success {
		t.Fatalf("unexpected confirmation input %+v", confirmer.input)
	}
	if confirmer.input.ProviderTransactionID != "987654321" {
		t.Fatalf("transaction id not forwarded: %+v", confirmer.input)
	}
	if confirmer.input.AmountCents != 99_000 {
		t.Fatalf("amount not forwarded: %+v", confirmer.input)
	}
}

func TestHandleIPNNonZeroResultCodeIsFailure(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{result: confirm.Result{Accepted: true}}
	h := newHandler(t, confirmer)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/momo", bytes.NewReader(signedBody(t, uuid.New(), 99_000, 1006)))
	h.HandleIPN(rec, req)

	if rec.Code != 204 {
		t.Fatalf("failures still acknowledge with 204, got %d", rec.Code)
	}
	if confirmer.input.Success {
		t.Fatal("non-zero result code must confirm a failure")
	}
	if confirmer.input.ProviderCode != "1006" {
		t.Fatalf("provider code not forwarded: %+v", confirmer.input)
	}
}

func TestHandleIPNRejectsBadSignature(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{}
	h := newHandler(t, confirmer)

	raw := signedBody(t, uuid.New(), 99_000, 0)
	tampered := bytes.Replace(raw, []byte("99000"), []byte("1"), 1)
	rec := httptest.NewRecorder()
	h.HandleIPN(rec, httptest.NewRequest("POST", "/webhooks/momo", bytes.NewReader(tampered)))

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if confirmer.called {
		t.Fatal("bad signature must not reach the confirmation service")
	}
}

func TestHandleIPNConfirmationErrorKeepsProviderRetrying(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{err: context.DeadlineExceeded}
	h := newHandler(t, confirmer)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/momo", bytes.NewReader(signedBody(t, uuid.New(), 99_000, 0)))
	h.HandleIPN(rec, req)

	if rec.Code != 500 {
		t.Fatalf("expected 500 so the provider retries, got %d", rec.Code)
	}
}
