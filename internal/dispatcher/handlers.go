package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/internal/commission"
	"github.com/minhvo-dev/ordercore-backend/internal/loyalty"
	"github.com/minhvo-dev/ordercore-backend/internal/notifications"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox/payloads"
)

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

func decodeData(envelope outbox.PayloadEnvelope, target any) error {
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return NewNonRetryableError(fmt.Errorf("decode event data: %w", err))
	}
	return nil
}

// CommissionHandler feeds paid orders into the commission calculator.
type CommissionHandler struct {
	svc commission.Service
}

// NewCommissionHandler builds the handler.
func NewCommissionHandler(svc commission.Service) *CommissionHandler {
	return &CommissionHandler{svc: svc}
}

func (h *CommissionHandler) Name() string { return "commission" }

func (h *CommissionHandler) Handle(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	var data payloads.PaymentSuccessfulEvent
	if err := decodeData(envelope, &data); err != nil {
		return err
	}
	return h.svc.ComputeForOrder(ctx, data.OrderID)
}

// LoyaltyHandler accrues points on payment and claws them back on
// cancellation or return. The loyalty service is idempotent per order.
type LoyaltyHandler struct {
	client *loyalty.Client
	orders orderReader
}

// NewLoyaltyHandler builds the handler.
func NewLoyaltyHandler(client *loyalty.Client, orders orderReader) *LoyaltyHandler {
	return &LoyaltyHandler{client: client, orders: orders}
}

func (h *LoyaltyHandler) Name() string { return "loyalty" }

func (h *LoyaltyHandler) Handle(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	switch event.EventType {
	case enums.EventPaymentSuccessful:
		var data payloads.PaymentSuccessfulEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		order, err := h.orders.FindByID(ctx, data.OrderID)
		if err != nil {
			return err
		}
		return h.client.Earn(ctx, order.UserID, order.ID, loyalty.PointsFor(data.AmountCents))
	case enums.EventOrderCancelled:
		var data payloads.OrderCancelledEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		return h.client.Refund(ctx, data.UserID, data.OrderID)
	case enums.EventOrderReturned:
		var data payloads.OrderReturnedEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		return h.client.Refund(ctx, data.UserID, data.OrderID)
	default:
		return nil
	}
}

// NotificationHandler writes one in-app notification per lifecycle event.
type NotificationHandler struct {
	svc    *notifications.Service
	orders orderReader
}

// NewNotificationHandler builds the handler.
func NewNotificationHandler(svc *notifications.Service, orders orderReader) *NotificationHandler {
	return &NotificationHandler{svc: svc, orders: orders}
}

func (h *NotificationHandler) Name() string { return "notifications" }

func (h *NotificationHandler) Handle(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	switch event.EventType {
	case enums.EventOrderPlaced:
		var data payloads.OrderPlacedEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		return h.svc.Notify(ctx, data.UserID, enums.NotificationOrderPlaced,
			"Order placed",
			fmt.Sprintf("Your order %s has been placed.", shortID(data.OrderID)))
	case enums.EventPaymentSuccessful:
		var data payloads.PaymentSuccessfulEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		order, err := h.orders.FindByID(ctx, data.OrderID)
		if err != nil {
			return err
		}
		return h.svc.Notify(ctx, order.UserID, enums.NotificationPaymentConfirmed,
			"Payment confirmed",
			fmt.Sprintf("Payment for order %s was confirmed.", shortID(data.OrderID)))
	case enums.EventPaymentFailed:
		var data payloads.PaymentFailedEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		order, err := h.orders.FindByID(ctx, data.OrderID)
		if err != nil {
			return err
		}
		return h.svc.Notify(ctx, order.UserID, enums.NotificationPaymentFailed,
			"Payment failed",
			fmt.Sprintf("Payment for order %s failed: %s", shortID(data.OrderID), data.Reason))
	case enums.EventOrderCancelled:
		var data payloads.OrderCancelledEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		return h.svc.Notify(ctx, data.UserID, enums.NotificationOrderCancelled,
			"Order cancelled",
			fmt.Sprintf("Order %s was cancelled: %s", shortID(data.OrderID), data.Reason))
	case enums.EventOrderShipped:
		var data payloads.OrderShippedEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		order, err := h.orders.FindByID(ctx, data.OrderID)
		if err != nil {
			return err
		}
		return h.svc.Notify(ctx, order.UserID, enums.NotificationOrderShipped,
			"Order shipped",
			fmt.Sprintf("Order %s is on the way, tracking code %s.", shortID(data.OrderID), data.TrackingCode))
	case enums.EventOrderDelivered:
		var data payloads.OrderDeliveredEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		order, err := h.orders.FindByID(ctx, data.OrderID)
		if err != nil {
			return err
		}
		return h.svc.Notify(ctx, order.UserID, enums.NotificationOrderDelivered,
			"Order delivered",
			fmt.Sprintf("Order %s has been delivered.", shortID(data.OrderID)))
	case enums.EventOrderReturned:
		var data payloads.OrderReturnedEvent
		if err := decodeData(envelope, &data); err != nil {
			return err
		}
		return h.svc.Notify(ctx, data.UserID, enums.NotificationOrderReturned,
			"Order returned",
			fmt.Sprintf("Return for order %s was recorded.", shortID(data.OrderID)))
	default:
		return nil
	}
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}
