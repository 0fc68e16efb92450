// Package payloads defines the Data shapes carried inside outbox envelopes.
// Consumers unmarshal the envelope's data field into one of these structs
// based on the event type. Fields are additive only; breaking changes bump
// the envelope version.
package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPlacedItem is a per-line summary embedded in OrderPlacedEvent.
type OrderPlacedItem struct {
	SkuID          uuid.UUID `json:"skuId"`
	SkuCode        string    `json:"skuCode"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
}

// OrderPlacedEvent is emitted when checkout commits a new order.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID         `json:"orderId"`
	TenantID      uuid.UUID         `json:"tenantId"`
	UserID        uuid.UUID         `json:"userId"`
	PaymentMethod string            `json:"paymentMethod"`
	TotalCents    int64             `json:"totalCents"`
	Items         []OrderPlacedItem `json:"items"`
	PlacedAt      time.Time         `json:"placedAt"`
}

// PaymentSuccessfulEvent is emitted when a payment confirmation commits.
type PaymentSuccessfulEvent struct {
	OrderID               uuid.UUID `json:"orderId"`
	PaymentID             uuid.UUID `json:"paymentId"`
	Provider              string    `json:"provider"`
	ProviderTransactionID string    `json:"providerTransactionId"`
	AmountCents           int64     `json:"amountCents"`
	ConfirmedAt           time.Time `json:"confirmedAt"`
}

// PaymentFailedEvent is emitted when a provider reports a failed payment.
type PaymentFailedEvent struct {
	OrderID      uuid.UUID `json:"orderId"`
	PaymentID    uuid.UUID `json:"paymentId"`
	Provider     string    `json:"provider"`
	ProviderCode string    `json:"providerCode,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	FailedAt     time.Time `json:"failedAt"`
}

// OrderCancelledEvent is emitted when an order reaches CANCELLED.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	UserID        uuid.UUID `json:"userId"`
	Reason        string    `json:"reason"`
	StockReleased bool      `json:"stockReleased"`
	CancelledAt   time.Time `json:"cancelledAt"`
}

// OrderShippedEvent is emitted when the order hands off to the carrier.
type OrderShippedEvent struct {
	OrderID      uuid.UUID `json:"orderId"`
	ShipmentID   uuid.UUID `json:"shipmentId"`
	TrackingCode string    `json:"trackingCode"`
	Carrier      string    `json:"carrier"`
	ShippedAt    time.Time `json:"shippedAt"`
}

// OrderDeliveredEvent is emitted when the carrier confirms delivery.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	ShipmentID  uuid.UUID `json:"shipmentId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// OrderReturnedEvent is emitted when a shipped or delivered order is returned.
type OrderReturnedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	UserID     uuid.UUID `json:"userId"`
	Reason     string    `json:"reason,omitempty"`
	ReturnedAt time.Time `json:"returnedAt"`
}
