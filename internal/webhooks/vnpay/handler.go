// Package vnpay adapts the gateway's IPN callback: a signed query string,
// acknowledged with a JSON response code. Every response is HTTP 200; the
// RspCode tells the provider whether to stop retrying.
package vnpay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/internal/payments"
	"github.com/minhvo-dev/ordercore-backend/internal/payments/confirm"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

const (
	rspConfirmed        = "00"
	rspOrderNotFound    = "01"
	rspAlreadyConfirmed = "02"
	rspInvalidAmount    = "04"
	rspInvalidChecksum  = "97"
	rspUnknownError     = "99"
)

// Handler serves the IPN endpoint.
type Handler struct {
	cfg       config.VNPayConfig
	confirmer confirm.Service
	logg      *logger.Logger
}

// NewHandler builds the IPN handler.
func NewHandler(cfg config.VNPayConfig, confirmer confirm.Service, logg *logger.Logger) (*Handler, error) {
	if cfg.HashSecret == "" {
		return nil, fmt.Errorf("vnpay hash secret required")
	}
	if confirmer == nil {
		return nil, fmt.Errorf("confirmation service required")
	}
	return &Handler{cfg: cfg, confirmer: confirmer, logg: logg}, nil
}

// HandleIPN processes one provider notification.
func (h *Handler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	if !payments.VerifyVNPaySignature(h.cfg.HashSecret, params) {
		if h.logg != nil {
			h.logg.Warn(r.Context(), "vnpay ipn rejected: bad signature")
		}
		respond(w, rspInvalidChecksum, "Invalid Checksum")
		return
	}

	orderID, err := uuid.Parse(params.Get("vnp_TxnRef"))
	if err != nil {
		respond(w, rspOrderNotFound, "Order Not Found")
		return
	}
	amount, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		respond(w, rspInvalidAmount, "Invalid Amount")
		return
	}

	responseCode := params.Get("vnp_ResponseCode")
	result, err := h.confirmer.Confirm(r.Context(), confirm.Input{
		OrderID:               orderID,
		Provider:              "vnpay",
		ProviderTransactionID: params.Get("vnp_TransactionNo"),
		AmountCents:           amount,
		Success:               responseCode == "00",
		ProviderCode:          responseCode,
		FailureReason:         failureReason(responseCode),
	})
	if err != nil {
		if h.logg != nil {
			logCtx := h.logg.WithOrderID(r.Context(), orderID.String())
			h.logg.Error(logCtx, "vnpay ipn confirmation failed", err)
		}
		var code pkgerrors.Code
		if typed := pkgerrors.As(err); typed != nil {
			code = typed.Code()
		}
		switch code {
		case pkgerrors.CodeNotFound:
			respond(w, rspOrderNotFound, "Order Not Found")
		case pkgerrors.CodeValidation:
			respond(w, rspInvalidAmount, "Invalid Amount")
		default:
			respond(w, rspUnknownError, "Unknown Error")
		}
		return
	}

	if result.Duplicate {
		respond(w, rspAlreadyConfirmed, "Order Already Confirmed")
		return
	}
	respond(w, rspConfirmed, "Confirm Success")
}

func failureReason(responseCode string) string {
	if responseCode == "00" {
		return ""
	}
	return "gateway response code " + responseCode
}

func respond(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"RspCode": code,
		"Message": message,
	})
}
