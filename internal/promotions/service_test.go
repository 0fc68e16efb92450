package promotions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

func TestApplyComputesCappedDiscount(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedPromotion(t, db, models.Promotion{
		ID:               uuid.New(),
		TenantID:         uuid.New(),
		Code:             "SAVE10",
		PercentBps:       1000,
		MaxDiscountCents: 50_000,
		Active:           true,
		UsageLimit:       5,
	})
	svc := mustService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		promo, discount, err := svc.Apply(context.Background(), tx, "SAVE10", 1_000_000, nil)
		if err != nil {
			return err
		}
		// 10% of 1,000,000 exceeds the cap
		if discount != 50_000 {
			t.Fatalf("expected capped discount 50000, got %d", discount)
		}
		if promo.UsedCount != 1 {
			t.Fatalf("expected usage increment, got %d", promo.UsedCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	var stored models.Promotion
	if err := db.First(&stored, "code = ?", "SAVE10").Error; err != nil {
		t.Fatalf("reload promotion: %v", err)
	}
	if stored.UsedCount != 1 {
		t.Fatalf("usage counter not persisted: %d", stored.UsedCount)
	}
}

func TestApplyRejectsExhaustedCode(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedPromotion(t, db, models.Promotion{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		Code:       "ONCE",
		PercentBps: 500,
		Active:     true,
		UsageLimit: 1,
		UsedCount:  1,
	})
	svc := mustService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, _, err := svc.Apply(context.Background(), tx, "ONCE", 100_000, nil)
		return err
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for exhausted code, got %v", err)
	}
}

func TestApplyRejectsExpiredAndBelowMinimum(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	past := time.Now().Add(-time.Hour)
	seedPromotion(t, db, models.Promotion{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		Code:       "OLD",
		PercentBps: 500,
		Active:     true,
		ExpiresAt:  &past,
	})
	seedPromotion(t, db, models.Promotion{
		ID:               uuid.New(),
		TenantID:         uuid.New(),
		Code:             "BIGSPEND",
		PercentBps:       500,
		MinSubtotalCents: 500_000,
		Active:           true,
	})
	svc := mustService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, _, err := svc.Apply(context.Background(), tx, "OLD", 100_000, nil)
		return err
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for expired code, got %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, _, err := svc.Apply(context.Background(), tx, "BIGSPEND", 100_000, nil)
		return err
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error below minimum, got %v", err)
	}
}

func mustService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService()
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func seedPromotion(t *testing.T, db *gorm.DB, promo models.Promotion) {
	t.Helper()
	if err := db.Create(&promo).Error; err != nil {
		t.Fatalf("seed promotion: %v", err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:promotions_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// promotions carry a Postgres text[] column and a uuid default; create
	// the sqlite shape by hand
	ddl := `CREATE TABLE promotions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		percent_bps INTEGER NOT NULL,
		max_discount_cents INTEGER NOT NULL DEFAULT 0,
		min_subtotal_cents INTEGER NOT NULL DEFAULT 0,
		sku_codes TEXT,
		usage_limit INTEGER NOT NULL DEFAULT 0,
		used_count INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create promotions: %v", err)
	}
	return db
}
