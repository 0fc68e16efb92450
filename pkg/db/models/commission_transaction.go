package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// CommissionTransaction is one ledger row the commission calculator produces
// for a paid order: the platform fee plus up to two affiliate tiers. The
// (order_id, kind, beneficiary) unique index backstops the calculator's
// existing-record idempotency check.
type CommissionTransaction struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_commission_order_kind_user"`
	TenantID          uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index"`
	Kind              enums.CommissionKind `gorm:"column:kind;type:commission_kind;not null;uniqueIndex:ux_commission_order_kind_user"`
	BeneficiaryUserID *uuid.UUID           `gorm:"column:beneficiary_user_id;type:uuid;uniqueIndex:ux_commission_order_kind_user"`
	AmountCents       int64                `gorm:"column:amount_cents;not null"`
	RateBps           int                  `gorm:"column:rate_bps;not null;default:0"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
}
