package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

const vnpayDateLayout = "20060102150405"

// VNPayStrategy builds the hosted-payment redirect URL. The gateway signs
// requests and callbacks with HMAC-SHA512 over the key-sorted, URL-encoded
// query with the signature parameters removed.
type VNPayStrategy struct {
	cfg config.VNPayConfig
	now func() time.Time
}

// NewVNPayStrategy builds the strategy from configuration.
func NewVNPayStrategy(cfg config.VNPayConfig) (*VNPayStrategy, error) {
	if cfg.TerminalCode == "" || cfg.HashSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vnpay terminal code and hash secret are required")
	}
	return &VNPayStrategy{cfg: cfg, now: time.Now}, nil
}

func (s *VNPayStrategy) Method() enums.PaymentMethod {
	return enums.PaymentMethodVNPay
}

func (s *VNPayStrategy) Initiate(_ context.Context, order *models.Order) (*Initiation, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}

	now := s.now()
	params := url.Values{}
	params.Set("vnp_Version", "2.1.0")
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", s.cfg.TerminalCode)
	params.Set("vnp_Amount", strconv.FormatInt(order.TotalCents, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", order.ID.String())
	params.Set("vnp_OrderInfo", "Thanh toan don hang "+order.ID.String())
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", s.cfg.ReturnURL)
	params.Set("vnp_CreateDate", now.Format(vnpayDateLayout))
	params.Set("vnp_ExpireDate", now.Add(15*time.Minute).Format(vnpayDateLayout))

	params.Set("vnp_SecureHash", SignVNPayParams(s.cfg.HashSecret, params))
	return &Initiation{
		Provider:    string(enums.PaymentMethodVNPay),
		RedirectURL: s.cfg.PaymentURL + "?" + params.Encode(),
	}, nil
}

// SignVNPayParams computes the gateway signature: HMAC-SHA512 hex over the
// URL-encoded query sorted by key, with the signature parameters excluded.
// Callback verification uses the same canonical form.
func SignVNPayParams(secret string, params url.Values) string {
	canonical := url.Values{}
	for key, vals := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		for _, val := range vals {
			canonical.Add(key, val)
		}
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(canonical.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyVNPaySignature checks a callback signature in constant time.
func VerifyVNPaySignature(secret string, params url.Values) bool {
	received := params.Get("vnp_SecureHash")
	if received == "" {
		return false
	}
	expected := SignVNPayParams(secret, params)
	return hmac.Equal([]byte(expected), []byte(received))
}
