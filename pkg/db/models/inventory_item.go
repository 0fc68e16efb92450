package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem holds the per-SKU stock counters. Invariant after every
// ledger operation: 0 <= reserved <= stock. Mutated only through the stock
// ledger, never directly.
type InventoryItem struct {
	SkuID     uuid.UUID `gorm:"column:sku_id;type:uuid;primaryKey"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	Reserved  int       `gorm:"column:reserved;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available is the portion of stock not held by pending reservations.
func (i InventoryItem) Available() int {
	return i.Stock - i.Reserved
}
