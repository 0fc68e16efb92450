package carts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

type skuReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sku, error)
}

// Service exposes the buyer-facing cart operations.
type Service interface {
	SetLine(ctx context.Context, userID, skuID uuid.UUID, qty int) error
	List(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	RemoveLine(ctx context.Context, userID, skuID uuid.UUID) error
}

type service struct {
	repo Repository
	skus skuReader
}

// NewService builds the cart service.
func NewService(repo Repository, skus skuReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	if skus == nil {
		return nil, fmt.Errorf("sku reader required")
	}
	return &service{repo: repo, skus: skus}, nil
}

func (s *service) SetLine(ctx context.Context, userID, skuID uuid.UUID, qty int) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if skuID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	sku, err := s.skus.FindByID(ctx, skuID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "sku not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sku")
	}
	if sku.Status != enums.SkuStatusActive {
		return pkgerrors.New(pkgerrors.CodeConflict, "sku is not for sale")
	}

	item := models.CartItem{
		ID:       uuid.New(),
		TenantID: sku.TenantID,
		UserID:   userID,
		SkuID:    skuID,
		Qty:      qty,
	}
	if err := s.repo.Upsert(ctx, &item); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
	}
	return nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	items, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	return items, nil
}

func (s *service) RemoveLine(ctx context.Context, userID, skuID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.repo.Remove(ctx, userID, skuID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
	}
	return nil
}
