// Package checkout orchestrates order placement: pricing snapshot, promotion
// consumption, shipping fee, all-or-nothing stock reservation and the
// ORDER_PLACED event, all inside one transaction. Payment initiation happens
// after the commit so a gateway outage can never hold row locks.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/internal/carts"
	"github.com/minhvo-dev/ordercore-backend/internal/catalog"
	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/internal/payments"
	"github.com/minhvo-dev/ordercore-backend/internal/stockledger"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox/payloads"
	"github.com/minhvo-dev/ordercore-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type promotionApplier interface {
	Apply(ctx context.Context, tx *gorm.DB, code string, subtotalCents int64, skuCodes []string) (*models.Promotion, int64, error)
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, actorID *uuid.UUID) error
}

type feeQuoter interface {
	QuoteFee(ctx context.Context, address types.Address) (int64, error)
}

type referrerLookup interface {
	FindReferrer(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
}

type paymentInitiator interface {
	Initiate(ctx context.Context, order *models.Order) (*payments.Initiation, error)
}

type reservationEngine struct{}

func (reservationEngine) Reserve(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, actorID *uuid.UUID) error {
	return stockledger.Reserve(ctx, tx, operationID, requests, actorID)
}

// PlaceOrderInput captures everything the buyer submits at checkout.
type PlaceOrderInput struct {
	UserID          uuid.UUID
	TenantID        uuid.UUID
	SkuIDs          []uuid.UUID
	PaymentMethod   enums.PaymentMethod
	ShippingAddress types.Address
	PromotionCode   *string
}

// PlacedOrder is the checkout result. RedirectURL is set for gateway
// payments and nil for cash on delivery.
type PlacedOrder struct {
	Order       *models.Order
	RedirectURL *string
}

// Service executes checkout orchestration.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlacedOrder, error)
}

type service struct {
	tx          txRunner
	cartRepo    carts.Repository
	catalogRepo catalog.Repository
	ordersRepo  orders.Repository
	promotions  promotionApplier
	reservation stockReserver
	outbox      outboxPublisher
	carrier     feeQuoter
	referrers   referrerLookup
	payments    paymentInitiator
	cfg         config.OrdersConfig
	shippingCfg config.ShippingConfig
	logg        *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo carts.Repository,
	catalogRepo catalog.Repository,
	ordersRepo orders.Repository,
	promoSvc promotionApplier,
	reservation stockReserver,
	publisher outboxPublisher,
	carrier feeQuoter,
	referrers referrerLookup,
	paymentSvc paymentInitiator,
	cfg config.OrdersConfig,
	shippingCfg config.ShippingConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if promoSvc == nil {
		return nil, fmt.Errorf("promotion service required")
	}
	if reservation == nil {
		reservation = reservationEngine{}
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if carrier == nil {
		return nil, fmt.Errorf("carrier fee quoter required")
	}
	if paymentSvc == nil {
		return nil, fmt.Errorf("payment initiator required")
	}
	return &service{
		tx:          tx,
		cartRepo:    cartRepo,
		catalogRepo: catalogRepo,
		ordersRepo:  ordersRepo,
		promotions:  promoSvc,
		reservation: reservation,
		outbox:      publisher,
		carrier:     carrier,
		referrers:   referrers,
		payments:    paymentSvc,
		cfg:         cfg,
		shippingCfg: shippingCfg,
		logg:        logg,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlacedOrder, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.SkuIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one cart line must be selected")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if input.ShippingAddress.RecipientName == "" || input.ShippingAddress.Line1 == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete")
	}

	// the carrier quote happens before the transaction; a carrier outage
	// degrades to the configured default fee instead of blocking checkout
	quotedFee, err := s.carrier.QuoteFee(ctx, input.ShippingAddress)
	if err != nil {
		quotedFee = s.shippingCfg.DefaultFeeCents
		if s.logg != nil {
			s.logg.Warn(ctx, "shipping fee quote failed, using default fee: "+err.Error())
		}
	}

	var referrerID *uuid.UUID
	if s.referrers != nil {
		referrerID, err = s.referrers.FindReferrer(ctx, input.UserID)
		if err != nil {
			// affiliate attribution is best effort, the order still places
			referrerID = nil
		}
	}

	if s.cfg.PlacementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PlacementTimeout)
		defer cancel()
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		catalogRepo := s.catalogRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		lines, err := cartRepo.FindSelected(ctx, input.UserID, input.SkuIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart lines")
		}
		if len(lines) != len(dedupe(input.SkuIDs)) {
			return pkgerrors.New(pkgerrors.CodeValidation, "selected items are missing from the cart")
		}

		skus, err := loadSkus(ctx, catalogRepo, lines)
		if err != nil {
			return err
		}
		tenantID, err := singleTenant(skus)
		if err != nil {
			return err
		}
		if input.TenantID != uuid.Nil && input.TenantID != tenantID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "items belong to another tenant")
		}

		items, subtotal, err := buildLineItems(lines, skus)
		if err != nil {
			return err
		}

		var discount int64
		var promotionID *uuid.UUID
		if input.PromotionCode != nil && *input.PromotionCode != "" {
			promo, promoDiscount, err := s.promotions.Apply(ctx, tx, *input.PromotionCode, subtotal, skuCodes(skus))
			if err != nil {
				return err
			}
			discount = promoDiscount
			promotionID = &promo.ID
		}

		shippingFee := quotedFee
		settings, err := catalogRepo.FindTenantSettings(ctx, tenantID)
		if err == nil && settings.FreeShippingThresholdCents > 0 && subtotal >= settings.FreeShippingThresholdCents {
			shippingFee = 0
		}

		total := subtotal - discount + shippingFee
		if total < 0 {
			total = 0
		}

		order = &models.Order{
			ID:               uuid.New(),
			TenantID:         tenantID,
			UserID:           input.UserID,
			Status:           enums.OrderStatusPending,
			PaymentStatus:    enums.PaymentStatusPending,
			PaymentMethod:    input.PaymentMethod,
			SubtotalCents:    subtotal,
			DiscountCents:    discount,
			ShippingFeeCents: shippingFee,
			TotalCents:       total,
			ShippingAddress:  input.ShippingAddress,
			PromotionID:      promotionID,
			ReferrerUserID:   referrerID,
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		order.Items = items

		if err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}

		requests := make([]stockledger.Request, 0, len(items))
		for _, item := range items {
			requests = append(requests, stockledger.Request{SkuID: item.SkuID, Qty: item.Qty})
		}
		if err := s.reservation.Reserve(ctx, tx, "reserve:"+order.ID.String(), requests, &input.UserID); err != nil {
			return err
		}

		payment := models.Payment{
			ID:          uuid.New(),
			OrderID:     order.ID,
			TenantID:    tenantID,
			Method:      input.PaymentMethod,
			Status:      enums.PaymentStatusPending,
			AmountCents: total,
		}
		if err := ordersRepo.CreatePayment(ctx, &payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
		}
		order.Payment = &payment

		// cash on delivery needs no gateway round trip, the order starts
		// processing immediately
		if !input.PaymentMethod.RequiresInitiation() {
			if err := orders.GuardTransition(order, enums.OrderStatusProcessing, nil); err != nil {
				return err
			}
			if err := ordersRepo.UpdateFields(ctx, order.ID, map[string]any{"status": enums.OrderStatusProcessing}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start cod processing")
			}
			order.Status = enums.OrderStatusProcessing
		}

		if err := cartRepo.RemoveLines(ctx, input.UserID, input.SkuIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart lines")
		}

		placedItems := make([]payloads.OrderPlacedItem, 0, len(items))
		for _, item := range items {
			placedItems = append(placedItems, payloads.OrderPlacedItem{
				SkuID:          item.SkuID,
				SkuCode:        skus[item.SkuID].Code,
				Quantity:       item.Qty,
				UnitPriceCents: item.UnitPriceCents,
			})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID, TenantID: &tenantID, Role: string(enums.RoleCustomer)},
			Data: payloads.OrderPlacedEvent{
				OrderID:       order.ID,
				TenantID:      tenantID,
				UserID:        input.UserID,
				PaymentMethod: string(input.PaymentMethod),
				TotalCents:    total,
				Items:         placedItems,
				PlacedAt:      time.Now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	result := &PlacedOrder{Order: order}
	if input.PaymentMethod.RequiresInitiation() {
		// a failed initiation leaves the order PENDING; the buyer can retry
		// payment until the pending TTL sweep cancels the order
		initiation, err := s.payments.Initiate(ctx, order)
		if err != nil {
			if s.logg != nil {
				errCtx := s.logg.WithOrderID(ctx, order.ID.String())
				s.logg.Warn(errCtx, "payment initiation failed: "+err.Error())
			}
			return result, nil
		}
		if initiation != nil {
			result.RedirectURL = &initiation.RedirectURL
		}
	}
	return result, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func loadSkus(ctx context.Context, repo catalog.Repository, lines []models.CartItem) (map[uuid.UUID]models.Sku, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.SkuID)
	}
	skus, err := repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load skus")
	}
	byID := make(map[uuid.UUID]models.Sku, len(skus))
	for _, sku := range skus {
		byID[sku.ID] = sku
	}
	for _, line := range lines {
		sku, ok := byID[line.SkuID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sku no longer exists").
				WithDetails(map[string]any{"skuId": line.SkuID})
		}
		if sku.Status != enums.SkuStatusActive {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "sku is no longer for sale").
				WithDetails(map[string]any{"skuId": line.SkuID, "code": sku.Code})
		}
	}
	return byID, nil
}

func singleTenant(skus map[uuid.UUID]models.Sku) (uuid.UUID, error) {
	var tenantID uuid.UUID
	for _, sku := range skus {
		if tenantID == uuid.Nil {
			tenantID = sku.TenantID
			continue
		}
		if sku.TenantID != tenantID {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "an order cannot span multiple tenants")
		}
	}
	return tenantID, nil
}

func buildLineItems(lines []models.CartItem, skus map[uuid.UUID]models.Sku) ([]models.OrderLineItem, int64, error) {
	items := make([]models.OrderLineItem, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "cart line has invalid quantity")
		}
		sku := skus[line.SkuID]
		items = append(items, models.OrderLineItem{
			ID:                uuid.New(),
			SkuID:             sku.ID,
			ProductName:       sku.ProductName,
			ImageURL:          sku.ImageURL,
			UnitPriceCents:    sku.PriceCents,
			Qty:               line.Qty,
			CommissionRateBps: sku.CommissionRateBps,
		})
		subtotal += sku.PriceCents * int64(line.Qty)
	}
	return items, subtotal, nil
}

func skuCodes(skus map[uuid.UUID]models.Sku) []string {
	codes := make([]string, 0, len(skus))
	for _, sku := range skus {
		codes = append(codes, sku.Code)
	}
	return codes
}
