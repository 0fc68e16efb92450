// Package promotions validates coupon codes and computes order discounts.
// The usage counter increments inside the order transaction while the row is
// locked, so a code cannot be applied past its limit by concurrent checkouts.
package promotions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
)

const percentBpsDenominator = 10_000

// Applied is the outcome of consuming a promotion for an order.
type Applied struct {
	PromotionID   *string
	Promotion     *models.Promotion
	DiscountCents int64
}

// Service validates and consumes promotion codes.
type Service interface {
	// Apply locks the promotion row, validates it against the order and
	// increments the usage counter. Runs inside the checkout transaction.
	Apply(ctx context.Context, tx *gorm.DB, code string, subtotalCents int64, skuCodes []string) (*models.Promotion, int64, error)
}

type service struct{}

// NewService builds the promotion service.
func NewService() (Service, error) {
	return &service{}, nil
}

func (s *service) Apply(ctx context.Context, tx *gorm.DB, code string, subtotalCents int64, skuCodes []string) (*models.Promotion, int64, error) {
	if tx == nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "promotion code required")
	}

	var promo models.Promotion
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&promo).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "promotion code not found")
		}
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}

	if err := validate(&promo, subtotalCents, skuCodes); err != nil {
		return nil, 0, err
	}

	discount := discountFor(&promo, subtotalCents)

	err = tx.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ?", promo.ID).
		Update("used_count", gorm.Expr("used_count + 1")).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment promotion usage")
	}
	promo.UsedCount++

	return &promo, discount, nil
}

func validate(promo *models.Promotion, subtotalCents int64, skuCodes []string) error {
	if !promo.Active {
		return pkgerrors.New(pkgerrors.CodeConflict, "promotion is not active")
	}
	if promo.ExpiresAt != nil && promo.ExpiresAt.Before(time.Now()) {
		return pkgerrors.New(pkgerrors.CodeConflict, "promotion has expired")
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return pkgerrors.New(pkgerrors.CodeConflict, "promotion usage limit reached")
	}
	if subtotalCents < promo.MinSubtotalCents {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order subtotal below promotion minimum of %d", promo.MinSubtotalCents))
	}
	if len(promo.SkuCodes) > 0 && !containsAny(promo.SkuCodes, skuCodes) {
		return pkgerrors.New(pkgerrors.CodeValidation, "promotion does not apply to any item in the order")
	}
	return nil
}

func discountFor(promo *models.Promotion, subtotalCents int64) int64 {
	discount := subtotalCents * int64(promo.PercentBps) / percentBpsDenominator
	if promo.MaxDiscountCents > 0 && discount > promo.MaxDiscountCents {
		discount = promo.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return discount
}

func containsAny(allowed []string, candidates []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, code := range allowed {
		set[code] = struct{}{}
	}
	for _, candidate := range candidates {
		if _, ok := set[candidate]; ok {
			return true
		}
	}
	return false
}
