package orders

import (
	"strings"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

// transitions is the single source of truth for the order lifecycle. Any
// status change not listed here is rejected, including changes out of the
// terminal states.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusReturned},
	enums.OrderStatusDelivered:  {enums.OrderStatusCompleted, enums.OrderStatusReturned},
	enums.OrderStatusCompleted:  {},
	enums.OrderStatusCancelled:  {},
	enums.OrderStatusReturned:   {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

// GuardTransition validates the edge plus the business guards attached to it:
// PROCESSING requires a paid order unless it pays on delivery, and
// CANCELLED requires a reason.
func GuardTransition(order *models.Order, to enums.OrderStatus, reason *string) error {
	if !CanTransition(order.Status, to) {
		return invalidTransition(order.Status, to)
	}
	switch to {
	case enums.OrderStatusProcessing:
		if order.PaymentMethod.RequiresInitiation() && order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order must be paid before processing").
				WithDetails(map[string]any{"paymentStatus": order.PaymentStatus})
		}
	case enums.OrderStatusCancelled:
		if reason == nil || strings.TrimSpace(*reason) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
		}
	}
	return nil
}
