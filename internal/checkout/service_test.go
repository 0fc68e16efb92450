package checkout

import (
	"context"
	"errors"
	"testing"
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
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/types"
)

type stubCartRepo struct {
	lines   []models.CartItem
	removed []uuid.UUID
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) carts.Repository { return s }

func (s *stubCartRepo) Upsert(ctx context.Context, item *models.CartItem) error { return nil }

func (s *stubCartRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	return s.lines, nil
}

func (s *stubCartRepo) FindSelected(ctx context.Context, userID uuid.UUID, skuIDs []uuid.UUID) ([]models.CartItem, error) {
	selected := make(map[uuid.UUID]bool, len(skuIDs))
	for _, id := range skuIDs {
		selected[id] = true
	}
	var out []models.CartItem
	for _, line := range s.lines {
		if selected[line.SkuID] {
			out = append(out, line)
		}
	}
	return out, nil
}

func (s *stubCartRepo) RemoveLines(ctx context.Context, userID uuid.UUID, skuIDs []uuid.UUID) error {
	s.removed = append(s.removed, skuIDs...)
	return nil
}

func (s *stubCartRepo) Remove(ctx context.Context, userID, skuID uuid.UUID) error { return nil }

type stubCatalogRepo struct {
	skus     map[uuid.UUID]models.Sku
	settings *models.TenantSettings
}

func (s *stubCatalogRepo) WithTx(tx *gorm.DB) catalog.Repository { return s }

func (s *stubCatalogRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Sku, error) {
	if sku, ok := s.skus[id]; ok {
		return &sku, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCatalogRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Sku, error) {
	var out []models.Sku
	for _, id := range ids {
		if sku, ok := s.skus[id]; ok {
			out = append(out, sku)
		}
	}
	return out, nil
}

func (s *stubCatalogRepo) FindTenantSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error) {
	if s.settings == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.settings, nil
}

type stubOrdersRepo struct {
	created *models.Order
	payment *models.Payment
	updates map[string]any
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	s.created = order
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates = updates
	return nil
}

func (s *stubOrdersRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.payment = payment
	return nil
}

func (s *stubOrdersRepo) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	return nil
}

func (s *stubOrdersRepo) FindShipmentByTrackingCode(ctx context.Context, trackingCode string) (*models.Shipment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error {
	return nil
}

func (s *stubOrdersRepo) UpdatePaymentStatusByOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error {
	return nil
}

func (s *stubOrdersRepo) UpdatePaymentByOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return nil
}

type stubPromotions struct {
	promo    *models.Promotion
	discount int64
	err      error
	applied  string
}

func (s *stubPromotions) Apply(ctx context.Context, tx *gorm.DB, code string, subtotalCents int64, skuCodes []string) (*models.Promotion, int64, error) {
	s.applied = code
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.promo, s.discount, nil
}

type stubReserver struct {
	operationID string
	requests    []stockledger.Request
	err         error
}

func (s *stubReserver) Reserve(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, actorID *uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.operationID = operationID
	s.requests = requests
	return nil
}

type stubPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubQuoter struct {
	fee int64
	err error
}

func (s *stubQuoter) QuoteFee(ctx context.Context, address types.Address) (int64, error) {
	return s.fee, s.err
}

type stubReferrers struct {
	referrer *uuid.UUID
}

func (s *stubReferrers) FindReferrer(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	return s.referrer, nil
}

type stubInitiator struct {
	initiation *payments.Initiation
	err        error
	called     bool
}

func (s *stubInitiator) Initiate(ctx context.Context, order *models.Order) (*payments.Initiation, error) {
	s.called = true
	return s.initiation, s.err
}

type stubTxRunner struct {
	failed bool
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := fn(nil)
	if err != nil {
		s.failed = true
	}
	return err
}

type fixture struct {
	cartRepo    *stubCartRepo
	catalogRepo *stubCatalogRepo
	ordersRepo  *stubOrdersRepo
	promos      *stubPromotions
	reserver    *stubReserver
	publisher   *stubPublisher
	quoter      *stubQuoter
	referrers   *stubReferrers
	initiator   *stubInitiator
	tx          *stubTxRunner
	userID      uuid.UUID
	tenantID    uuid.UUID
	skuA        uuid.UUID
	skuB        uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cartRepo:    &stubCartRepo{},
		catalogRepo: &stubCatalogRepo{skus: map[uuid.UUID]models.Sku{}},
		ordersRepo:  &stubOrdersRepo{},
		promos:      &stubPromotions{},
		reserver:    &stubReserver{},
		publisher:   &stubPublisher{},
		quoter:      &stubQuoter{fee: 30_000},
		referrers:   &stubReferrers{},
		initiator:   &stubInitiator{},
		tx:          &stubTxRunner{},
		userID:      uuid.New(),
		tenantID:    uuid.New(),
		skuA:        uuid.New(),
		skuB:        uuid.New(),
	}
	f.catalogRepo.skus[f.skuA] = models.Sku{
		ID:                f.skuA,
		TenantID:          f.tenantID,
		Code:              "SKU-A",
		ProductName:       "Widget",
		PriceCents:        100_000,
		Status:            enums.SkuStatusActive,
		CommissionRateBps: 500,
	}
	f.catalogRepo.skus[f.skuB] = models.Sku{
		ID:          f.skuB,
		TenantID:    f.tenantID,
		Code:        "SKU-B",
		ProductName: "Gadget",
		PriceCents:  50_000,
		Status:      enums.SkuStatusActive,
	}
	f.cartRepo.lines = []models.CartItem{
		{UserID: f.userID, SkuID: f.skuA, Qty: 2},
		{UserID: f.userID, SkuID: f.skuB, Qty: 1},
	}
	return f
}

func (f *fixture) service(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(
		f.tx,
		f.cartRepo,
		f.catalogRepo,
		f.ordersRepo,
		f.promos,
		f.reserver,
		f.publisher,
		f.quoter,
		f.referrers,
		f.initiator,
		config.OrdersConfig{PlacementTimeout: 5 * time.Second},
		config.ShippingConfig{DefaultFeeCents: 45_000},
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func (f *fixture) input() PlaceOrderInput {
	return PlaceOrderInput{
		UserID:        f.userID,
		SkuIDs:        []uuid.UUID{f.skuA, f.skuB},
		PaymentMethod: enums.PaymentMethodCOD,
		ShippingAddress: types.Address{
			RecipientName: "Nguyen Van A",
			Phone:         "0900000000",
			Line1:         "1 Ly Thuong Kiet",
			DistrictID:    1454,
			WardCode:      "21012",
		},
	}
}

func TestPlaceOrderCODHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := f.service(t)

	result, err := svc.PlaceOrder(context.Background(), f.input())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	order := result.Order
	// 2 x 100,000 + 1 x 50,000
	if order.SubtotalCents != 250_000 {
		t.Fatalf("expected subtotal 250000, got %d", order.SubtotalCents)
	}
	if order.ShippingFeeCents != 30_000 {
		t.Fatalf("expected quoted fee 30000, got %d", order.ShippingFeeCents)
	}
	if order.TotalCents != 280_000 {
		t.Fatalf("expected total 280000, got %d", order.TotalCents)
	}
	if order.TenantID != f.tenantID {
		t.Fatalf("tenant not derived from skus: %s", order.TenantID)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if item.ProductName == "" || item.UnitPriceCents == 0 {
			t.Fatalf("line item missing snapshot: %+v", item)
		}
	}

	// cod starts processing without payment initiation
	if order.Status != enums.OrderStatusProcessing {
		t.Fatalf("cod order must start processing, got %s", order.Status)
	}
	if f.initiator.called {
		t.Fatal("cod must not initiate gateway payment")
	}
	if result.RedirectURL != nil {
		t.Fatalf("cod has no redirect url, got %s", *result.RedirectURL)
	}

	if want := "reserve:" + order.ID.String(); f.reserver.operationID != want {
		t.Fatalf("expected reservation %s, got %s", want, f.reserver.operationID)
	}
	if len(f.reserver.requests) != 2 {
		t.Fatalf("expected 2 reservation requests, got %+v", f.reserver.requests)
	}
	if len(f.cartRepo.removed) != 2 {
		t.Fatalf("purchased lines must leave the cart, got %+v", f.cartRepo.removed)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].EventType != enums.EventOrderPlaced {
		t.Fatalf("expected order_placed event, got %+v", f.publisher.events)
	}
}

func TestPlaceOrderGatewayReturnsRedirect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.initiator.initiation = &payments.Initiation{
		Provider:    "vnpay",
		RedirectURL: "https://pay.example.com/abc",
	}
	svc := f.service(t)

	input := f.input()
	input.PaymentMethod = enums.PaymentMethodVNPay
	result, err := svc.PlaceOrder(context.Background(), input)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.Order.Status != enums.OrderStatusPending {
		t.Fatalf("gateway order stays pending, got %s", result.Order.Status)
	}
	if result.RedirectURL == nil || *result.RedirectURL != "https://pay.example.com/abc" {
		t.Fatalf("redirect url missing: %+v", result.RedirectURL)
	}
}

func TestPlaceOrderSurvivesInitiationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.initiator.err = errors.New("gateway down")
	svc := f.service(t)

	input := f.input()
	input.PaymentMethod = enums.PaymentMethodMoMo
	result, err := svc.PlaceOrder(context.Background(), input)
	if err != nil {
		t.Fatalf("initiation failure must not fail placement: %v", err)
	}
	if result.Order == nil || result.Order.Status != enums.OrderStatusPending {
		t.Fatalf("order must exist in pending, got %+v", result.Order)
	}
	if result.RedirectURL != nil {
		t.Fatal("no redirect url when initiation fails")
	}
}

func TestPlaceOrderReservationFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.reserver.err = pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")
	svc := f.service(t)

	_, err := svc.PlaceOrder(context.Background(), f.input())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if !f.tx.failed {
		t.Fatal("transaction must roll back on reservation failure")
	}
	if len(f.publisher.events) != 0 {
		t.Fatal("no events on a rolled back placement")
	}
	if len(f.cartRepo.removed) != 0 {
		t.Fatal("cart must be untouched on a rolled back placement")
	}
}

func TestPlaceOrderAppliesPromotion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	promoID := uuid.New()
	f.promos.promo = &models.Promotion{ID: promoID, Code: "SAVE10"}
	f.promos.discount = 25_000
	svc := f.service(t)

	input := f.input()
	code := "SAVE10"
	input.PromotionCode = &code
	result, err := svc.PlaceOrder(context.Background(), input)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if f.promos.applied != "SAVE10" {
		t.Fatalf("promotion not applied: %q", f.promos.applied)
	}
	if result.Order.DiscountCents != 25_000 {
		t.Fatalf("discount not recorded: %d", result.Order.DiscountCents)
	}
	// 250,000 - 25,000 + 30,000
	if result.Order.TotalCents != 255_000 {
		t.Fatalf("expected total 255000, got %d", result.Order.TotalCents)
	}
	if result.Order.PromotionID == nil || *result.Order.PromotionID != promoID {
		t.Fatalf("promotion id not snapshotted: %+v", result.Order.PromotionID)
	}
}

func TestPlaceOrderInvalidPromotionFailsPlacement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.promos.err = pkgerrors.New(pkgerrors.CodeConflict, "promotion exhausted")
	svc := f.service(t)

	input := f.input()
	code := "DEAD"
	input.PromotionCode = &code
	_, err := svc.PlaceOrder(context.Background(), input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !f.tx.failed {
		t.Fatal("invalid promotion must roll back the whole placement")
	}
}

func TestPlaceOrderCarrierOutageFallsBackToDefaultFee(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.quoter.err = errors.New("carrier down")
	svc := f.service(t)

	result, err := svc.PlaceOrder(context.Background(), f.input())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.Order.ShippingFeeCents != 45_000 {
		t.Fatalf("expected default fee 45000, got %d", result.Order.ShippingFeeCents)
	}
}

func TestPlaceOrderFreeShippingThreshold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.catalogRepo.settings = &models.TenantSettings{
		TenantID:                   f.tenantID,
		FreeShippingThresholdCents: 200_000,
	}
	svc := f.service(t)

	result, err := svc.PlaceOrder(context.Background(), f.input())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.Order.ShippingFeeCents != 0 {
		t.Fatalf("subtotal above threshold ships free, got %d", result.Order.ShippingFeeCents)
	}
}

func TestPlaceOrderRejectsInactiveSku(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sku := f.catalogRepo.skus[f.skuB]
	sku.Status = enums.SkuStatusInactive
	f.catalogRepo.skus[f.skuB] = sku
	svc := f.service(t)

	_, err := svc.PlaceOrder(context.Background(), f.input())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for inactive sku, got %v", err)
	}
}

func TestPlaceOrderRejectsCrossTenantCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sku := f.catalogRepo.skus[f.skuB]
	sku.TenantID = uuid.New()
	f.catalogRepo.skus[f.skuB] = sku
	svc := f.service(t)

	_, err := svc.PlaceOrder(context.Background(), f.input())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderRejectsMissingCartLine(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := f.service(t)

	input := f.input()
	input.SkuIDs = append(input.SkuIDs, uuid.New())
	_, err := svc.PlaceOrder(context.Background(), input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderCapturesReferrer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	referrer := uuid.New()
	f.referrers.referrer = &referrer
	svc := f.service(t)

	result, err := svc.PlaceOrder(context.Background(), f.input())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.Order.ReferrerUserID == nil || *result.Order.ReferrerUserID != referrer {
		t.Fatalf("referrer not captured: %+v", result.Order.ReferrerUserID)
	}
}
