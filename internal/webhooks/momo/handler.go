// Package momo adapts the wallet's IPN callback: a signed JSON body,
// acknowledged with 204 No Content so the provider stops retrying.
package momo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/internal/payments"
	"github.com/minhvo-dev/ordercore-backend/internal/payments/confirm"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

const maxIPNBodyBytes = 1 << 16

// Handler serves the IPN endpoint.
type Handler struct {
	cfg       config.MoMoConfig
	confirmer confirm.Service
	logg      *logger.Logger
}

// NewHandler builds the IPN handler.
func NewHandler(cfg config.MoMoConfig, confirmer confirm.Service, logg *logger.Logger) (*Handler, error) {
	if cfg.SecretKey == "" || cfg.AccessKey == "" {
		return nil, fmt.Errorf("momo access key and secret key required")
	}
	if confirmer == nil {
		return nil, fmt.Errorf("confirmation service required")
	}
	return &Handler{cfg: cfg, confirmer: confirmer, logg: logg}, nil
}

type ipnBody struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// HandleIPN processes one provider notification.
func (h *Handler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	var body ipnBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIPNBodyBytes)).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	// signature covers the documented fields in their fixed order
	fields := [][2]string{
		{"accessKey", h.cfg.AccessKey},
		{"amount", strconv.FormatInt(body.Amount, 10)},
		{"extraData", body.ExtraData},
		{"message", body.Message},
		{"orderId", body.OrderID},
		{"orderInfo", body.OrderInfo},
		{"orderType", body.OrderType},
		{"partnerCode", body.PartnerCode},
		{"payType", body.PayType},
		{"requestId", body.RequestID},
		{"responseTime", strconv.FormatInt(body.ResponseTime, 10)},
		{"resultCode", strconv.Itoa(body.ResultCode)},
		{"transId", strconv.FormatInt(body.TransID, 10)},
	}
	if !payments.VerifyMoMoSignature(h.cfg.SecretKey, fields, body.Signature) {
		if h.logg != nil {
			h.logg.Warn(r.Context(), "momo ipn rejected: bad signature")
		}
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	orderID, err := uuid.Parse(body.OrderID)
	if err != nil {
		http.Error(w, "unknown order reference", http.StatusBadRequest)
		return
	}

	_, err = h.confirmer.Confirm(r.Context(), confirm.Input{
		OrderID:               orderID,
		Provider:              "momo",
		ProviderTransactionID: strconv.FormatInt(body.TransID, 10),
		AmountCents:           body.Amount,
		Success:               body.ResultCode == 0,
		ProviderCode:          strconv.Itoa(body.ResultCode),
		FailureReason:         failureReason(body),
	})
	if err != nil {
		if h.logg != nil {
			logCtx := h.logg.WithOrderID(r.Context(), orderID.String())
			h.logg.Error(logCtx, "momo ipn confirmation failed", err)
		}
		// a non-2xx keeps the provider retrying, which is safe by idempotency
		http.Error(w, "confirmation failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func failureReason(body ipnBody) string {
	if body.ResultCode == 0 {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return "wallet result code " + strconv.Itoa(body.ResultCode)
}
