// Package catalog provides the read-side SKU access the order pipeline
// needs. Catalog management itself lives in another service.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
)

// Repository reads SKU rows and tenant settings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sku, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Sku, error)
	FindTenantSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sku, error) {
	var sku models.Sku
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sku).Error
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Sku, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var skus []models.Sku
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&skus).Error
	return skus, err
}

func (r *repository) FindTenantSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error) {
	var settings models.TenantSettings
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}
