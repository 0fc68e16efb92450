package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem snapshots product name, image and price at purchase time so
// order history stays stable when the catalog changes. Immutable after the
// order is created; Qty is the unit of stock reservation and release.
type OrderLineItem struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	SkuID             uuid.UUID `gorm:"column:sku_id;type:uuid;not null"`
	ProductName       string    `gorm:"column:product_name;not null"`
	ImageURL          *string   `gorm:"column:image_url"`
	UnitPriceCents    int64     `gorm:"column:unit_price_cents;not null"`
	Qty               int       `gorm:"column:qty;not null"`
	CommissionRateBps int       `gorm:"column:commission_rate_bps;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
