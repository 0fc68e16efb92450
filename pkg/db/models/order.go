package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/types"
)

// Order is the aggregate root of the order pipeline. Status and payment
// status only move through the transitions internal/orders defines; rows are
// never hard-deleted. StockFinalizedAt records whether the reservation has
// been converted into a permanent deduction; release-on-cancel branches on
// it rather than inferring the state.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID           uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status             enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	SubtotalCents      int64               `gorm:"column:subtotal_cents;not null"`
	DiscountCents      int64               `gorm:"column:discount_cents;not null;default:0"`
	ShippingFeeCents   int64               `gorm:"column:shipping_fee_cents;not null;default:0"`
	TotalCents         int64               `gorm:"column:total_cents;not null"`
	ShippingAddress    types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PromotionID        *uuid.UUID          `gorm:"column:promotion_id;type:uuid"`
	ReferrerUserID     *uuid.UUID          `gorm:"column:referrer_user_id;type:uuid"`
	CancellationReason *string             `gorm:"column:cancellation_reason"`
	StockFinalizedAt   *time.Time          `gorm:"column:stock_finalized_at"`
	Items              []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment            *Payment            `gorm:"foreignKey:OrderID"`
	Shipment           *Shipment           `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
