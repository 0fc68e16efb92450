package models

import (
	"time"

	"github.com/google/uuid"
)

// AffiliateProfile links a user to the referrer above them and accumulates
// commission credits. Balance moves only inside the commission transaction.
type AffiliateProfile struct {
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	ReferrerUserID *uuid.UUID `gorm:"column:referrer_user_id;type:uuid"`
	BalanceCents   int64      `gorm:"column:balance_cents;not null;default:0"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
