package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/api/middleware"
	"github.com/minhvo-dev/ordercore-backend/api/responses"
	"github.com/minhvo-dev/ordercore-backend/api/validators"
	"github.com/minhvo-dev/ordercore-backend/internal/carts"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

type cartLineRequest struct {
	SkuID uuid.UUID `json:"sku_id" validate:"required"`
	Qty   int       `json:"qty" validate:"required,gt=0"`
}

type cartLineResponse struct {
	SkuID uuid.UUID `json:"sku_id"`
	Qty   int       `json:"qty"`
}

// CartList returns the caller's cart lines.
func CartList(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(lines))
	}
}

// CartSetLine adds a line or replaces its quantity.
func CartSetLine(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetLine(r.Context(), userID, payload.SkuID, payload.Qty); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartLineResponse{SkuID: payload.SkuID, Qty: payload.Qty})
	}
}

// CartRemoveLine drops one line from the cart.
func CartRemoveLine(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		skuID, err := uuid.Parse(chi.URLParam(r, "skuId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sku id"))
			return
		}

		if err := svc.RemoveLine(r.Context(), userID, skuID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

func newCartResponse(lines []models.CartItem) []cartLineResponse {
	out := make([]cartLineResponse, 0, len(lines))
	for _, line := range lines {
		out = append(out, cartLineResponse{SkuID: line.SkuID, Qty: line.Qty})
	}
	return out
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
