package controllers

import (
	"net/http"

	"github.com/minhvo-dev/ordercore-backend/api/responses"
	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

// AdminShipOrder hands a processing order to the carrier.
func AdminShipOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Ship(r.Context(), orders.ShipInput{
			OrderID:     orderID,
			ActorUserID: userID,
			ActorRole:   callerRole(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusShipped)})
	}
}

// AdminDeliverOrder is the manual override for a missed carrier callback.
func AdminDeliverOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkDelivered(r.Context(), orders.DeliveredInput{OrderID: orderID}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusDelivered)})
	}
}
