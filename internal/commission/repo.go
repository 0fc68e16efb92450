// Package commission computes the platform fee and the affiliate tiers for a
// paid order. It runs as an outbox consumer, once per payment_successful
// event; the (order_id, kind, beneficiary) unique index makes redelivery safe.
package commission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
)

// Repository persists commission rows and affiliate balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ExistsForOrder(ctx context.Context, orderID uuid.UUID, kind enums.CommissionKind, beneficiary *uuid.UUID) (bool, error)
	Insert(ctx context.Context, txn *models.CommissionTransaction) error
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionTransaction, error)
	FindProfile(ctx context.Context, userID uuid.UUID) (*models.AffiliateProfile, error)
	FindReferrer(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
	CreditBalance(ctx context.Context, userID uuid.UUID, amountCents int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a commission repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ExistsForOrder(ctx context.Context, orderID uuid.UUID, kind enums.CommissionKind, beneficiary *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.CommissionTransaction{}).
		Where("order_id = ? AND kind = ?", orderID, kind)
	if beneficiary == nil {
		query = query.Where("beneficiary_user_id IS NULL")
	} else {
		query = query.Where("beneficiary_user_id = ?", *beneficiary)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Insert(ctx context.Context, txn *models.CommissionTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionTransaction, error) {
	var rows []models.CommissionTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindProfile(ctx context.Context, userID uuid.UUID) (*models.AffiliateProfile, error) {
	var profile models.AffiliateProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindReferrer resolves the referrer above a user. Users without an affiliate
// profile simply have no referrer.
func (r *repository) FindReferrer(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	profile, err := r.FindProfile(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile.ReferrerUserID, nil
}

func (r *repository) CreditBalance(ctx context.Context, userID uuid.UUID, amountCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.AffiliateProfile{}).
		Where("user_id = ?", userID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents)).Error
}
