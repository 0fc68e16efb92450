package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one SKU line in a user's cart. Checkout consumes the selected
// subset and removes the purchased lines in the same transaction.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID `gorm:"column:tenant_id;type:uuid;not null"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_cart_items_user_sku"`
	SkuID     uuid.UUID `gorm:"column:sku_id;type:uuid;not null;uniqueIndex:ux_cart_items_user_sku"`
	Qty       int       `gorm:"column:qty;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
