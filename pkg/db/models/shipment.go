package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// Shipment tracks the carrier-side handle for an order. Cancelling an order
// that already has one requires the carrier cancellation to succeed first.
type Shipment struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	TrackingCode string               `gorm:"column:tracking_code;not null;uniqueIndex"`
	Status       enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null;default:'created'"`
	FeeCents     int64                `gorm:"column:fee_cents;not null;default:0"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
