package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Promotion is the coupon read/usage model the orchestrator consumes. The
// usage counter increments inside the order transaction so a code cannot be
// applied past its limit by concurrent checkouts.
type Promotion struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID         uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index"`
	Code             string         `gorm:"column:code;not null;uniqueIndex"`
	PercentBps       int            `gorm:"column:percent_bps;not null"`
	MaxDiscountCents int64          `gorm:"column:max_discount_cents;not null;default:0"`
	MinSubtotalCents int64          `gorm:"column:min_subtotal_cents;not null;default:0"`
	SkuCodes         pq.StringArray `gorm:"column:sku_codes;type:text[]"`
	UsageLimit       int            `gorm:"column:usage_limit;not null;default:0"`
	UsedCount        int            `gorm:"column:used_count;not null;default:0"`
	Active           bool           `gorm:"column:active;not null;default:true"`
	ExpiresAt        *time.Time     `gorm:"column:expires_at"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
