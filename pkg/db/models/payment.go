package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// Payment tracks a payment attempt for an order. At most one row per order
// reaches a terminal PAID state; ProviderTransactionID is the idempotency key
// for gateway-originated confirmations.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID              uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null"`
	Method                enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id;uniqueIndex:ux_payments_provider_txn"`
	FailureReason         *string             `gorm:"column:failure_reason"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
