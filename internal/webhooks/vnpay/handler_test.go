package vnpay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/internal/payments"
	"github.com/minhvo-dev/ordercore-backend/internal/payments/confirm"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
)

const testSecret = "hash-secret"

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
	h, err := NewHandler(config.VNPayConfig{HashSecret: testSecret}, confirmer, nil)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return h
}

func signedIPN(orderID uuid.UUID, amount int64, responseCode string) string {
	params := url.Values{}
	params.Set("vnp_TxnRef", orderID.String())
	params.Set("vnp_Amount", strconv.FormatInt(amount, 10))
	params.Set("vnp_ResponseCode", responseCode)
	params.Set("vnp_TransactionNo", "14012345")
	params.Set("vnp_SecureHash", payments.SignVNPayParams(testSecret, params))
	return "/webhooks/vnpay?" + params.Encode()
}

func decodeRsp(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHandleIPNConfirmsPayment(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{result: confirm.Result{Accepted: true}}
	h := newHandler(t, confirmer)
	orderID := uuid.New()

	rec := httptest.NewRecorder()
	h.HandleIPN(rec, httptest.NewRequest("GET", signedIPN(orderID, 150_000, "00"), nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeRsp(t, rec); body["RspCode"] != "00" {
		t.Fatalf("expected RspCode 00, got %+v", body)
	}
	if !confirmer.called {
		t.Fatal("confirmation service not invoked")
	}
	if confirmer.input.OrderID != orderID || !confirmer.input.Success {
		t.Fatalf("unexpected confirmation input %+v", confirmer.input)
	}
	if confirmer.input.ProviderTransactionID != "14012345" {
		t.Fatalf("transaction id not forwarded: %+v", confirmer.input)
	}
}

func TestHandleIPNFailureCodeMapsToFailedConfirmation(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{result: confirm.Result{Accepted: true}}
	h := newHandler(t, confirmer)

	rec := httptest.NewRecorder()
	h.HandleIPN(rec, httptest.NewRequest("GET", signedIPN(uuid.New(), 150_000, "24"), nil))

	if body := decodeRsp(t, rec); body["RspCode"] != "00" {
		t.Fatalf("failed payments still acknowledge with 00, got %+v", body)
	}
	if confirmer.input.Success {
		t.Fatal("response code 24 must confirm a failure")
	}
	if confirmer.input.ProviderCode != "24" {
		t.Fatalf("provider code not forwarded: %+v", confirmer.input)
	}
}

func TestHandleIPNRejectsBadSignature(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{}
	h := newHandler(t, confirmer)

	target := signedIPN(uuid.New(), 150_000, "00")
	tampered := target + "&vnp_Extra=1"
	rec := httptest.NewRecorder()
	h.HandleIPN(rec, httptest.NewRequest("GET", tampered, nil))

	if body := decodeRsp(t, rec); body["RspCode"] != "97" {
		t.Fatalf("expected RspCode 97, got %+v", body)
	}
	if confirmer.called {
		t.Fatal("bad signature must not reach the confirmation service")
	}
}

func TestHandleIPNDuplicateAcknowledgesAlreadyConfirmed(t *testing.T) {
	t.Parallel()

	confirmer := &stubConfirmer{result: confirm.Result{Accepted: true, Duplicate: true}}
	h := newHandler(t, confirmer)

	rec := httptest.NewRecorder()
	h.HandleIPN(rec, httptest.NewRequest("GET", signedIPN(uuid.New(), 150_000, "00"), nil))

	if rec.Code != 200 {
		t.Fatalf("duplicates still answer 200, got %d", rec.Code)
	}
	if body := decodeRsp(t, rec); body["RspCode"] != "02" {
		t.Fatalf("expected RspCode 02, got %+v", body)
	}
}
