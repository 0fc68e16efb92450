package carts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
)

// Repository persists cart lines. Checkout consumes the selected subset
// inside the order transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, item *models.CartItem) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	FindSelected(ctx context.Context, userID uuid.UUID, skuIDs []uuid.UUID) ([]models.CartItem, error)
	RemoveLines(ctx context.Context, userID uuid.UUID, skuIDs []uuid.UUID) error
	Remove(ctx context.Context, userID, skuID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a carts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert adds the line or replaces the quantity of an existing one.
func (r *repository) Upsert(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "sku_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty", "updated_at"}),
		}).
		Create(item).Error
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) FindSelected(ctx context.Context, userID uuid.UUID, skuIDs []uuid.UUID) ([]models.CartItem, error) {
	if len(skuIDs) == 0 {
		return nil, nil
	}
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND sku_id IN ?", userID, skuIDs).
		Find(&items).Error
	return items, err
}

func (r *repository) RemoveLines(ctx context.Context, userID uuid.UUID, skuIDs []uuid.UUID) error {
	if len(skuIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND sku_id IN ?", userID, skuIDs).
		Delete(&models.CartItem{}).Error
}

func (r *repository) Remove(ctx context.Context, userID, skuID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND sku_id = ?", userID, skuID).
		Delete(&models.CartItem{}).Error
}
