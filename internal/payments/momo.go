package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

const momoBodyReadLimit int64 = 1024

// MoMoStrategy creates wallet payments through the gateway's create API.
// Requests and IPN callbacks are signed with HMAC-SHA256 over a canonical
// k=v& string in the field order the gateway documents.
type MoMoStrategy struct {
	cfg        config.MoMoConfig
	httpClient *http.Client
}

// NewMoMoStrategy builds the strategy from configuration.
func NewMoMoStrategy(cfg config.MoMoConfig, httpClient *http.Client) (*MoMoStrategy, error) {
	if cfg.PartnerCode == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "momo partner code, access key and secret key are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &MoMoStrategy{cfg: cfg, httpClient: httpClient}, nil
}

func (s *MoMoStrategy) Method() enums.PaymentMethod {
	return enums.PaymentMethodMoMo
}

func (s *MoMoStrategy) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}

	orderID := order.ID.String()
	amount := strconv.FormatInt(order.TotalCents, 10)
	orderInfo := "Thanh toan don hang " + orderID
	signature := SignMoMoFields(s.cfg.SecretKey, [][2]string{
		{"accessKey", s.cfg.AccessKey},
		{"amount", amount},
		{"extraData", ""},
		{"ipnUrl", s.cfg.IPNURL},
		{"orderId", orderID},
		{"orderInfo", orderInfo},
		{"partnerCode", s.cfg.PartnerCode},
		{"redirectUrl", s.cfg.RedirectURL},
		{"requestId", orderID},
		{"requestType", "captureWallet"},
	})

	body, err := json.Marshal(map[string]any{
		"partnerCode": s.cfg.PartnerCode,
		"accessKey":   s.cfg.AccessKey,
		"requestId":   orderID,
		"amount":      order.TotalCents,
		"orderId":     orderID,
		"orderInfo":   orderInfo,
		"redirectUrl": s.cfg.RedirectURL,
		"ipnUrl":      s.cfg.IPNURL,
		"extraData":   "",
		"requestType": "captureWallet",
		"lang":        "vi",
		"signature":   signature,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal momo request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build momo request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute momo request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, momoBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"momo request failed")
	}

	var created struct {
		ResultCode int    `json:"resultCode"`
		Message    string `json:"message"`
		PayURL     string `json:"payUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode momo response")
	}
	if created.ResultCode != 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("result code %d: %s", created.ResultCode, created.Message),
			"momo rejected payment creation")
	}
	if created.PayURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "momo returned no payment url")
	}
	return &Initiation{
		Provider:    string(enums.PaymentMethodMoMo),
		RedirectURL: created.PayURL,
	}, nil
}

// SignMoMoFields computes HMAC-SHA256 hex over "k=v&k=v" in the exact field
// order given. The gateway documents a fixed order per message type, so the
// caller supplies pairs rather than a map.
func SignMoMoFields(secret string, fields [][2]string) string {
	var sb strings.Builder
	for i, pair := range fields {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(pair[0])
		sb.WriteByte('=')
		sb.WriteString(pair[1])
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyMoMoSignature checks an IPN signature in constant time.
func VerifyMoMoSignature(secret string, fields [][2]string, received string) bool {
	if received == "" {
		return false
	}
	expected := SignMoMoFields(secret, fields)
	return hmac.Equal([]byte(expected), []byte(received))
}
