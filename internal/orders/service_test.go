package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/internal/stockledger"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
)

type stubOrdersRepo struct {
	order         *models.Order
	updates       map[string]any
	pending       []models.Order
	shipments     []models.Shipment
	shipmentByTC  map[string]*models.Shipment
	paymentStatus enums.PaymentStatus
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	s.order = order
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrdersRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubOrdersRepo) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates = updates
	if status, ok := updates["status"].(enums.OrderStatus); ok {
		s.order.Status = status
	}
	return nil
}

func (s *stubOrdersRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return s.pending, nil
}

func (s *stubOrdersRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return nil
}

func (s *stubOrdersRepo) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	s.shipments = append(s.shipments, *shipment)
	return nil
}

func (s *stubOrdersRepo) FindShipmentByTrackingCode(ctx context.Context, trackingCode string) (*models.Shipment, error) {
	if shipment, ok := s.shipmentByTC[trackingCode]; ok {
		return shipment, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error {
	return nil
}

func (s *stubOrdersRepo) UpdatePaymentStatusByOrder(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error {
	s.paymentStatus = status
	return nil
}

func (s *stubOrdersRepo) UpdatePaymentByOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if status, ok := updates["status"].(enums.PaymentStatus); ok {
		s.paymentStatus = status
	}
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubCarrier struct {
	cancelErr     error
	cancelled     []string
	createdResult CarrierShipment
	createErr     error
}

func (s *stubCarrier) CreateShipment(ctx context.Context, order *models.Order) (CarrierShipment, error) {
	return s.createdResult, s.createErr
}

func (s *stubCarrier) CancelShipment(ctx context.Context, trackingCode string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, trackingCode)
	return nil
}

type stockCall struct {
	op           string
	operationID  string
	wasFinalized bool
	requests     []stockledger.Request
}

type stubStockMover struct {
	calls []stockCall
}

func (s *stubStockMover) Finalize(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, actorID *uuid.UUID) error {
	s.calls = append(s.calls, stockCall{op: "finalize", operationID: operationID, requests: requests})
	return nil
}

func (s *stubStockMover) Release(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, wasFinalized bool, actorID *uuid.UUID) error {
	s.calls = append(s.calls, stockCall{op: "release", operationID: operationID, wasFinalized: wasFinalized, requests: requests})
	return nil
}

func newTestService(t *testing.T, repo *stubOrdersRepo, carrier *stubCarrier, stock *stubStockMover, publisher *stubPublisher) Service {
	t.Helper()
	svc, err := NewService(repo, stubTxRunner{}, publisher, carrier, stock, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func pendingOrder(userID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentMethod: enums.PaymentMethodVNPay,
		TotalCents:    120_000,
		Items: []models.OrderLineItem{
			{SkuID: uuid.New(), Qty: 2, UnitPriceCents: 60_000},
		},
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to enums.OrderStatus }{
		{enums.OrderStatusPending, enums.OrderStatusProcessing},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusProcessing, enums.OrderStatusShipped},
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered},
		{enums.OrderStatusShipped, enums.OrderStatusReturned},
		{enums.OrderStatusDelivered, enums.OrderStatusCompleted},
		{enums.OrderStatusDelivered, enums.OrderStatusReturned},
	}
	for _, edge := range allowed {
		if !CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}

	terminals := []enums.OrderStatus{
		enums.OrderStatusCompleted, enums.OrderStatusCancelled, enums.OrderStatusReturned,
	}
	all := []enums.OrderStatus{
		enums.OrderStatusPending, enums.OrderStatusProcessing, enums.OrderStatusShipped,
		enums.OrderStatusDelivered, enums.OrderStatusCompleted, enums.OrderStatusCancelled,
		enums.OrderStatusReturned,
	}
	for _, terminal := range terminals {
		for _, target := range all {
			if CanTransition(terminal, target) {
				t.Errorf("terminal state %s must not transition to %s", terminal, target)
			}
		}
	}

	if CanTransition(enums.OrderStatusPending, enums.OrderStatusShipped) {
		t.Error("pending orders must not skip processing")
	}
	if CanTransition(enums.OrderStatusShipped, enums.OrderStatusCancelled) {
		t.Error("shipped orders cannot be cancelled, only returned")
	}
}

func TestGuardProcessingRequiresPayment(t *testing.T) {
	t.Parallel()

	order := pendingOrder(uuid.New())
	err := GuardTransition(order, enums.OrderStatusProcessing, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for unpaid gateway order, got %v", err)
	}

	order.PaymentMethod = enums.PaymentMethodCOD
	if err := GuardTransition(order, enums.OrderStatusProcessing, nil); err != nil {
		t.Fatalf("cod order should process without payment: %v", err)
	}

	order.PaymentMethod = enums.PaymentMethodVNPay
	order.PaymentStatus = enums.PaymentStatusPaid
	if err := GuardTransition(order, enums.OrderStatusProcessing, nil); err != nil {
		t.Fatalf("paid order should process: %v", err)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	repo := &stubOrdersRepo{order: pendingOrder(userID)}
	svc := newTestService(t, repo, &stubCarrier{}, &stubStockMover{}, &stubPublisher{})

	err := svc.Cancel(context.Background(), CancelInput{
		OrderID:     repo.order.ID,
		ActorUserID: userID,
		ActorRole:   enums.RoleCustomer,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelCarrierRejection(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := pendingOrder(userID)
	order.Status = enums.OrderStatusProcessing
	order.PaymentStatus = enums.PaymentStatusPaid
	order.Shipment = &models.Shipment{
		ID:           uuid.New(),
		OrderID:      order.ID,
		TrackingCode: "GHN123",
		Status:       enums.ShipmentStatusCreated,
	}
	repo := &stubOrdersRepo{order: order}
	stock := &stubStockMover{}
	publisher := &stubPublisher{}
	carrier := &stubCarrier{cancelErr: errors.New("carrier says no")}
	svc := newTestService(t, repo, carrier, stock, publisher)

	err := svc.Cancel(context.Background(), CancelInput{
		OrderID:     order.ID,
		ActorUserID: userID,
		ActorRole:   enums.RoleCustomer,
		Reason:      "changed my mind",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCarrierCancel {
		t.Fatalf("expected carrier cancel error, got %v", err)
	}
	if order.Status != enums.OrderStatusProcessing {
		t.Fatalf("order status must not change when carrier rejects, got %s", order.Status)
	}
	if len(stock.calls) != 0 {
		t.Fatal("stock must not move when carrier rejects")
	}
	if len(publisher.events) != 0 {
		t.Fatal("no event may be emitted when carrier rejects")
	}
}

func TestCancelPendingReleasesHold(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := pendingOrder(userID)
	repo := &stubOrdersRepo{order: order}
	stock := &stubStockMover{}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, &stubCarrier{}, stock, publisher)

	err := svc.Cancel(context.Background(), CancelInput{
		OrderID:     order.ID,
		ActorUserID: userID,
		ActorRole:   enums.RoleCustomer,
		Reason:      "ordered by mistake",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(stock.calls) != 1 || stock.calls[0].op != "release" {
		t.Fatalf("expected one release call, got %+v", stock.calls)
	}
	if stock.calls[0].wasFinalized {
		t.Fatal("pending order release must not restock")
	}
	if stock.calls[0].operationID != "release:"+order.ID.String() {
		t.Fatalf("unexpected operation id %q", stock.calls[0].operationID)
	}
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventOrderCancelled {
		t.Fatalf("expected order_cancelled event, got %+v", publisher.events)
	}
}

func TestCancelAfterFinalizeRestocks(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := pendingOrder(userID)
	order.Status = enums.OrderStatusProcessing
	order.PaymentStatus = enums.PaymentStatusPaid
	now := time.Now()
	order.StockFinalizedAt = &now
	repo := &stubOrdersRepo{order: order}
	stock := &stubStockMover{}
	svc := newTestService(t, repo, &stubCarrier{}, stock, &stubPublisher{})

	err := svc.Cancel(context.Background(), CancelInput{
		OrderID:     order.ID,
		ActorUserID: userID,
		ActorRole:   enums.RoleCustomer,
		Reason:      "no longer needed",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(stock.calls) != 1 || !stock.calls[0].wasFinalized {
		t.Fatalf("finalized order must restock on cancel, got %+v", stock.calls)
	}
}

func TestMarkDeliveredSettlesCOD(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := pendingOrder(userID)
	order.Status = enums.OrderStatusShipped
	order.PaymentMethod = enums.PaymentMethodCOD
	shipment := &models.Shipment{
		ID:           uuid.New(),
		OrderID:      order.ID,
		TrackingCode: "GHN777",
		Status:       enums.ShipmentStatusInTransit,
	}
	order.Shipment = shipment
	repo := &stubOrdersRepo{
		order:        order,
		shipmentByTC: map[string]*models.Shipment{"GHN777": shipment},
	}
	stock := &stubStockMover{}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, &stubCarrier{}, stock, publisher)

	if err := svc.MarkDelivered(context.Background(), DeliveredInput{TrackingCode: "GHN777"}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	if len(stock.calls) != 1 || stock.calls[0].op != "finalize" {
		t.Fatalf("cod delivery must finalize stock, got %+v", stock.calls)
	}
	if repo.paymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("cod payment must flip to paid, got %s", repo.paymentStatus)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected payment_successful and order_delivered, got %+v", publisher.events)
	}
	if publisher.events[0].EventType != enums.EventPaymentSuccessful ||
		publisher.events[1].EventType != enums.EventOrderDelivered {
		t.Fatalf("unexpected event order: %+v", publisher.events)
	}
}

func TestCompleteOnlyFromDelivered(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := pendingOrder(userID)
	order.Status = enums.OrderStatusShipped
	repo := &stubOrdersRepo{order: order}
	svc := newTestService(t, repo, &stubCarrier{}, &stubStockMover{}, &stubPublisher{})

	err := svc.Complete(context.Background(), CompleteInput{OrderID: order.ID, ActorUserID: userID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	order.Status = enums.OrderStatusDelivered
	if err := svc.Complete(context.Background(), CompleteInput{OrderID: order.ID, ActorUserID: userID}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if order.Status != enums.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}
}

func TestReturnRestocksFinalizedOrder(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := pendingOrder(userID)
	order.Status = enums.OrderStatusDelivered
	order.PaymentStatus = enums.PaymentStatusPaid
	now := time.Now()
	order.StockFinalizedAt = &now
	repo := &stubOrdersRepo{order: order}
	stock := &stubStockMover{}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, &stubCarrier{}, stock, publisher)

	reason := "damaged on arrival"
	err := svc.Return(context.Background(), ReturnInput{
		OrderID:     order.ID,
		ActorUserID: userID,
		ActorRole:   enums.RoleCustomer,
		Reason:      &reason,
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if len(stock.calls) != 1 || !stock.calls[0].wasFinalized {
		t.Fatalf("return of finalized order must restock, got %+v", stock.calls)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventOrderReturned {
		t.Fatalf("expected order_returned event, got %+v", publisher.events)
	}
}

func TestCancelExpiredPending(t *testing.T) {
	t.Parallel()

	order := pendingOrder(uuid.New())
	repo := &stubOrdersRepo{order: order, pending: []models.Order{*order}}
	stock := &stubStockMover{}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, &stubCarrier{}, stock, publisher)

	cancelled, err := svc.CancelExpiredPending(context.Background(), 24*time.Hour, 50)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %d", cancelled)
	}
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
	if len(stock.calls) != 1 || stock.calls[0].wasFinalized {
		t.Fatalf("expired pending sweep must drop holds only, got %+v", stock.calls)
	}
}
