package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenantSettings carries the per-tenant knobs the order pipeline reads:
// platform fee percentage and shipping fee policy.
type TenantSettings struct {
	TenantID                   uuid.UUID       `gorm:"column:tenant_id;type:uuid;primaryKey"`
	PlanFeePercent             decimal.Decimal `gorm:"column:plan_fee_percent;type:numeric(5,2);not null"`
	FreeShippingThresholdCents int64           `gorm:"column:free_shipping_threshold_cents;not null;default:0"`
	DefaultShippingFeeCents    int64           `gorm:"column:default_shipping_fee_cents;not null;default:0"`
	UpdatedAt                  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
