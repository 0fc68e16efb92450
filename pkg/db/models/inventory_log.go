package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// InventoryLog is the append-only audit trail of stock mutations. One row per
// mutation; rows are never updated or deleted outside retention pruning. The
// (sku_id, operation_id) unique index is the replay guard: re-applying the
// same logical operation is a no-op.
type InventoryLog struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SkuID            uuid.UUID                   `gorm:"column:sku_id;type:uuid;not null;uniqueIndex:ux_inventory_logs_sku_operation"`
	OperationID      string                      `gorm:"column:operation_id;not null;uniqueIndex:ux_inventory_logs_sku_operation"`
	ChangeAmount     int                         `gorm:"column:change_amount;not null"`
	PreviousStock    int                         `gorm:"column:previous_stock;not null"`
	NewStock         int                         `gorm:"column:new_stock;not null"`
	PreviousReserved int                         `gorm:"column:previous_reserved;not null"`
	NewReserved      int                         `gorm:"column:new_reserved;not null"`
	Reason           enums.InventoryChangeReason `gorm:"column:reason;type:inventory_change_reason;not null"`
	ActorID          *uuid.UUID                  `gorm:"column:actor_id;type:uuid"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
