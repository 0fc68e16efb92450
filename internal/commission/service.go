package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tenantSettingsReader interface {
	FindTenantSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error)
}

// Service computes commission rows for paid orders.
type Service interface {
	ComputeForOrder(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	repo       Repository
	ordersRepo orders.Repository
	settings   tenantSettingsReader
	tx         txRunner
	secondTier decimal.Decimal
	logg       *logger.Logger
}

// NewService builds the commission calculator.
func NewService(repo Repository, ordersRepo orders.Repository, settings tenantSettingsReader, tx txRunner, cfg config.CommissionConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if settings == nil {
		return nil, fmt.Errorf("tenant settings reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	secondTier, err := decimal.NewFromString(cfg.SecondTierPercent)
	if err != nil {
		return nil, fmt.Errorf("parse second tier percent: %w", err)
	}
	return &service{
		repo:       repo,
		ordersRepo: ordersRepo,
		settings:   settings,
		tx:         tx,
		secondTier: secondTier,
		logg:       logg,
	}, nil
}

// ComputeForOrder writes the platform fee and up to two affiliate tiers for a
// paid order, crediting beneficiary balances in the same transaction. Calling
// it again for the same order is a no-op.
func (s *service) ComputeForOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.ordersRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "commission requires a paid order").
			WithDetails(map[string]any{"orderId": orderID, "paymentStatus": order.PaymentStatus})
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		platformFee, feeRateBps, err := s.platformFee(ctx, order)
		if err != nil {
			return err
		}
		if err := s.record(ctx, repo, &models.CommissionTransaction{
			ID:          uuid.New(),
			OrderID:     order.ID,
			TenantID:    order.TenantID,
			Kind:        enums.CommissionKindPlatformFee,
			AmountCents: platformFee,
			RateBps:     feeRateBps,
		}, false); err != nil {
			return err
		}

		if order.ReferrerUserID == nil {
			return nil
		}

		directAmount := directCommission(order.Items)
		if directAmount <= 0 {
			return nil
		}
		if err := s.record(ctx, repo, &models.CommissionTransaction{
			ID:                uuid.New(),
			OrderID:           order.ID,
			TenantID:          order.TenantID,
			Kind:              enums.CommissionKindDirect,
			BeneficiaryUserID: order.ReferrerUserID,
			AmountCents:       directAmount,
		}, true); err != nil {
			return err
		}

		grandReferrer, err := repo.FindReferrer(ctx, *order.ReferrerUserID)
		if err != nil {
			return err
		}
		if grandReferrer == nil {
			return nil
		}
		secondAmount := s.secondTier.
			Mul(decimal.NewFromInt(directAmount)).
			Div(decimal.NewFromInt(100)).
			IntPart()
		if secondAmount <= 0 {
			return nil
		}
		return s.record(ctx, repo, &models.CommissionTransaction{
			ID:                uuid.New(),
			OrderID:           order.ID,
			TenantID:          order.TenantID,
			Kind:              enums.CommissionKindSecondTier,
			BeneficiaryUserID: grandReferrer,
			AmountCents:       secondAmount,
			RateBps:           int(s.secondTier.Mul(decimal.NewFromInt(100)).IntPart()),
		}, true)
	})
}

// record inserts one ledger row unless it already exists, crediting the
// beneficiary balance alongside the insert.
func (s *service) record(ctx context.Context, repo Repository, txn *models.CommissionTransaction, credit bool) error {
	exists, err := repo.ExistsForOrder(ctx, txn.OrderID, txn.Kind, txn.BeneficiaryUserID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := repo.Insert(ctx, txn); err != nil {
		// a concurrent redelivery won the race, same outcome
		if db.IsUniqueViolation(err, "ux_commission_order_kind_user") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert commission transaction")
	}
	if credit && txn.BeneficiaryUserID != nil {
		if err := repo.CreditBalance(ctx, *txn.BeneficiaryUserID, txn.AmountCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit affiliate balance")
		}
	}
	return nil
}

func (s *service) platformFee(ctx context.Context, order *models.Order) (int64, int, error) {
	settings, err := s.settings.FindTenantSettings(ctx, order.TenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant settings")
	}
	fee := settings.PlanFeePercent.
		Mul(decimal.NewFromInt(order.TotalCents)).
		Div(decimal.NewFromInt(100)).
		IntPart()
	rateBps := int(settings.PlanFeePercent.Mul(decimal.NewFromInt(100)).IntPart())
	return fee, rateBps, nil
}

func directCommission(items []models.OrderLineItem) int64 {
	var total int64
	for _, item := range items {
		if item.CommissionRateBps <= 0 {
			continue
		}
		lineTotal := item.UnitPriceCents * int64(item.Qty)
		total += lineTotal * int64(item.CommissionRateBps) / 10_000
	}
	return total
}
