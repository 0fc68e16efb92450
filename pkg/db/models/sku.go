package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// Sku is the read model the order pipeline needs from the catalog: current
// price, sale status and the per-line affiliate commission rate. Catalog CRUD
// lives elsewhere; this service only reads these rows.
type Sku struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID          uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	Code              string          `gorm:"column:code;not null;uniqueIndex"`
	ProductName       string          `gorm:"column:product_name;not null"`
	ImageURL          *string         `gorm:"column:image_url"`
	PriceCents        int64           `gorm:"column:price_cents;not null"`
	Status            enums.SkuStatus `gorm:"column:status;type:sku_status;not null;default:'active'"`
	CommissionRateBps int             `gorm:"column:commission_rate_bps;not null;default:0"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
