package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/api/middleware"
	"github.com/minhvo-dev/ordercore-backend/api/responses"
	"github.com/minhvo-dev/ordercore-backend/api/validators"
	checkoutsvc "github.com/minhvo-dev/ordercore-backend/internal/checkout"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/types"
)

type checkoutRequest struct {
	SkuIDs          []uuid.UUID   `json:"sku_ids" validate:"required,min=1"`
	PaymentMethod   string        `json:"payment_method" validate:"required,oneof=cod vnpay momo"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	PromotionCode   *string       `json:"promotion_code,omitempty"`
}

type checkoutResponse struct {
	Order       orderResponse `json:"order"`
	RedirectURL *string       `json:"redirect_url,omitempty"`
}

// Checkout submits the selected cart lines as one order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		input := checkoutsvc.PlaceOrderInput{
			UserID:          userID,
			SkuIDs:          payload.SkuIDs,
			PaymentMethod:   method,
			ShippingAddress: payload.ShippingAddress,
			PromotionCode:   payload.PromotionCode,
		}
		if tenantRaw := middleware.TenantIDFromContext(r.Context()); tenantRaw != "" {
			if tenantID, err := uuid.Parse(tenantRaw); err == nil {
				input.TenantID = tenantID
			}
		}

		placed, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order:       newOrderResponse(placed.Order),
			RedirectURL: placed.RedirectURL,
		})
	}
}

type orderResponse struct {
	OrderID          uuid.UUID          `json:"order_id"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"payment_status"`
	PaymentMethod    string             `json:"payment_method"`
	SubtotalCents    int64              `json:"subtotal_cents"`
	DiscountCents    int64              `json:"discount_cents"`
	ShippingFeeCents int64              `json:"shipping_fee_cents"`
	TotalCents       int64              `json:"total_cents"`
	ShippingAddress  types.Address      `json:"shipping_address"`
	Items            []lineItemResponse `json:"items"`
	TrackingCode     *string            `json:"tracking_code,omitempty"`
}

type lineItemResponse struct {
	SkuID          uuid.UUID `json:"sku_id"`
	ProductName    string    `json:"product_name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]lineItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemResponse{
			SkuID:          item.SkuID,
			ProductName:    item.ProductName,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	resp := orderResponse{
		OrderID:          order.ID,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		SubtotalCents:    order.SubtotalCents,
		DiscountCents:    order.DiscountCents,
		ShippingFeeCents: order.ShippingFeeCents,
		TotalCents:       order.TotalCents,
		ShippingAddress:  order.ShippingAddress,
		Items:            items,
	}
	if order.Shipment != nil {
		code := order.Shipment.TrackingCode
		resp.TrackingCode = &code
	}
	return resp
}
