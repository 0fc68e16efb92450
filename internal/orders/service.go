package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/internal/stockledger"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	pkgerrors "github.com/minhvo-dev/ordercore-backend/pkg/errors"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CarrierShipment is the carrier-side result of registering a shipment.
type CarrierShipment struct {
	TrackingCode string
	FeeCents     int64
}

// CarrierGateway talks to the shipping provider.
type CarrierGateway interface {
	CreateShipment(ctx context.Context, order *models.Order) (CarrierShipment, error)
	CancelShipment(ctx context.Context, trackingCode string) error
}

// StockMover adjusts inventory counters inside the caller's transaction.
type StockMover interface {
	Finalize(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, actorID *uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, wasFinalized bool, actorID *uuid.UUID) error
}

// Service defines the order lifecycle operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	Cancel(ctx context.Context, input CancelInput) error
	Ship(ctx context.Context, input ShipInput) error
	MarkDelivered(ctx context.Context, input DeliveredInput) error
	Complete(ctx context.Context, input CompleteInput) error
	Return(ctx context.Context, input ReturnInput) error
	CancelExpiredPending(ctx context.Context, pendingTTL time.Duration, limit int) (int, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	carrier CarrierGateway
	stock   StockMover
	logg    *logger.Logger
}

// CancelInput carries a buyer- or operator-initiated cancellation.
type CancelInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	Reason      string
}

// ShipInput hands a processing order to the carrier.
type ShipInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
}

// DeliveredInput records a carrier delivery confirmation.
type DeliveredInput struct {
	TrackingCode string
	OrderID      uuid.UUID
}

// CompleteInput closes out a delivered order.
type CompleteInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
}

// ReturnInput moves a shipped or delivered order into RETURNED.
type ReturnInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	Reason      *string
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, carrier CarrierGateway, stock StockMover, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if carrier == nil {
		return nil, fmt.Errorf("carrier gateway required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock mover required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  publisher,
		carrier: carrier,
		stock:   stock,
		logg:    logg,
	}, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orders, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

// Cancel rejects the order if it has progressed past PROCESSING and requires
// the carrier to accept the cancellation before the database changes. Stock
// held by the order goes back via the ledger, branching on whether the
// reservation was already finalized.
func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := input.Reason

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.ActorRole == enums.RoleCustomer && order.UserID != input.ActorUserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if err := GuardTransition(order, enums.OrderStatusCancelled, &reason); err != nil {
		return err
	}

	// the carrier must accept the cancellation before anything changes
	// locally; a rejected carrier cancel leaves the order untouched
	if order.Shipment != nil && order.Shipment.Status != enums.ShipmentStatusCancelled {
		if err := s.carrier.CancelShipment(ctx, order.Shipment.TrackingCode); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeCarrierCancel, err, "carrier rejected cancellation")
		}
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		// re-check under the lock; a concurrent transition may have won
		if err := GuardTransition(locked, enums.OrderStatusCancelled, &reason); err != nil {
			return err
		}

		wasFinalized := locked.StockFinalizedAt != nil
		if err := s.stock.Release(ctx, tx, "release:"+locked.ID.String(), stockRequests(locked.Items), wasFinalized, actorPtr(input.ActorUserID)); err != nil {
			return err
		}

		updates := map[string]any{
			"status":              enums.OrderStatusCancelled,
			"cancellation_reason": reason,
		}
		if err := repo.UpdateFields(ctx, locked.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if locked.Shipment != nil && locked.Shipment.Status != enums.ShipmentStatusCancelled {
			if err := repo.UpdateShipmentStatus(ctx, locked.Shipment.ID, enums.ShipmentStatusCancelled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   locked.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, locked.TenantID, input.ActorRole),
			Data: payloads.OrderCancelledEvent{
				OrderID:       locked.ID,
				UserID:        locked.UserID,
				Reason:        reason,
				StockReleased: true,
				CancelledAt:   time.Now(),
			},
		})
	})
}

// Ship registers the shipment with the carrier first, then records the
// handoff. A carrier failure leaves the order in PROCESSING.
func (s *service) Ship(ctx context.Context, input ShipInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := GuardTransition(order, enums.OrderStatusShipped, nil); err != nil {
		return err
	}
	if order.Shipment != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "order already has a shipment")
	}

	carrierShipment, err := s.carrier.CreateShipment(ctx, order)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create carrier shipment")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if err := GuardTransition(locked, enums.OrderStatusShipped, nil); err != nil {
			return err
		}

		shipment := models.Shipment{
			ID:           uuid.New(),
			OrderID:      locked.ID,
			TrackingCode: carrierShipment.TrackingCode,
			Status:       enums.ShipmentStatusInTransit,
			FeeCents:     carrierShipment.FeeCents,
		}
		if err := repo.CreateShipment(ctx, &shipment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist shipment")
		}
		if err := repo.UpdateFields(ctx, locked.ID, map[string]any{"status": enums.OrderStatusShipped}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   locked.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, locked.TenantID, input.ActorRole),
			Data: payloads.OrderShippedEvent{
				OrderID:      locked.ID,
				ShipmentID:   shipment.ID,
				TrackingCode: shipment.TrackingCode,
				Carrier:      "ghn",
				ShippedAt:    time.Now(),
			},
		})
	})
}

// MarkDelivered handles the carrier's delivery confirmation. Cash-on-delivery
// orders settle here: the payment flips to paid and the stock hold becomes a
// permanent deduction in the same transaction.
func (s *service) MarkDelivered(ctx context.Context, input DeliveredInput) error {
	orderID := input.OrderID
	var shipmentID uuid.UUID

	if orderID == uuid.Nil {
		if input.TrackingCode == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order id or tracking code required")
		}
		shipment, err := s.repo.FindShipmentByTrackingCode(ctx, input.TrackingCode)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		orderID = shipment.OrderID
		shipmentID = shipment.ID
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if err := GuardTransition(locked, enums.OrderStatusDelivered, nil); err != nil {
			return err
		}
		if shipmentID == uuid.Nil && locked.Shipment != nil {
			shipmentID = locked.Shipment.ID
		}

		updates := map[string]any{"status": enums.OrderStatusDelivered}

		codSettles := locked.PaymentMethod == enums.PaymentMethodCOD &&
			locked.PaymentStatus != enums.PaymentStatusPaid
		if codSettles {
			if err := s.stock.Finalize(ctx, tx, "finalize:"+locked.ID.String(), stockRequests(locked.Items), nil); err != nil {
				return err
			}
			now := time.Now()
			updates["payment_status"] = enums.PaymentStatusPaid
			updates["stock_finalized_at"] = now
			if err := repo.UpdatePaymentStatusByOrder(ctx, locked.ID, enums.PaymentStatusPaid); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
			}
		}

		if err := repo.UpdateFields(ctx, locked.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if shipmentID != uuid.Nil {
			if err := repo.UpdateShipmentStatus(ctx, shipmentID, enums.ShipmentStatusDelivered); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
			}
		}

		if codSettles {
			err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentSuccessful,
				AggregateType: enums.AggregatePayment,
				AggregateID:   locked.ID,
				Version:       1,
				Data: payloads.PaymentSuccessfulEvent{
					OrderID:     locked.ID,
					Provider:    string(enums.PaymentMethodCOD),
					AmountCents: locked.TotalCents,
					ConfirmedAt: time.Now(),
				},
			})
			if err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   locked.ID,
			Version:       1,
			Data: payloads.OrderDeliveredEvent{
				OrderID:     locked.ID,
				ShipmentID:  shipmentID,
				DeliveredAt: time.Now(),
			},
		})
	})
}

func (s *service) Complete(ctx context.Context, input CompleteInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if input.ActorUserID != uuid.Nil && locked.UserID != input.ActorUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if err := GuardTransition(locked, enums.OrderStatusCompleted, nil); err != nil {
			return err
		}
		return repo.UpdateFields(ctx, locked.ID, map[string]any{"status": enums.OrderStatusCompleted})
	})
}

// Return accepts shipped or delivered orders back. Finalized units go back
// into sellable stock; holds that never finalized are simply dropped.
func (s *service) Return(ctx context.Context, input ReturnInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if input.ActorRole == enums.RoleCustomer && locked.UserID != input.ActorUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if err := GuardTransition(locked, enums.OrderStatusReturned, nil); err != nil {
			return err
		}

		wasFinalized := locked.StockFinalizedAt != nil
		if err := s.stock.Release(ctx, tx, "return:"+locked.ID.String(), stockRequests(locked.Items), wasFinalized, actorPtr(input.ActorUserID)); err != nil {
			return err
		}
		if err := repo.UpdateFields(ctx, locked.ID, map[string]any{"status": enums.OrderStatusReturned}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		reason := ""
		if input.Reason != nil {
			reason = *input.Reason
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReturned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   locked.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, locked.TenantID, input.ActorRole),
			Data: payloads.OrderReturnedEvent{
				OrderID:    locked.ID,
				UserID:     locked.UserID,
				Reason:     reason,
				ReturnedAt: time.Now(),
			},
		})
	})
}

// CancelExpiredPending sweeps orders that sat unpaid past the TTL. Each one
// cancels in its own transaction so a single failure does not stall the
// sweep.
func (s *service) CancelExpiredPending(ctx context.Context, pendingTTL time.Duration, limit int) (int, error) {
	if pendingTTL <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "pending ttl must be positive")
	}
	cutoff := time.Now().Add(-pendingTTL)
	stale, err := s.repo.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired pending orders")
	}

	reason := "payment window expired"
	cancelled := 0
	for _, order := range stale {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			locked, err := repo.FindByIDForUpdate(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
			}
			if err := GuardTransition(locked, enums.OrderStatusCancelled, &reason); err != nil {
				return err
			}
			if err := s.stock.Release(ctx, tx, "release:"+locked.ID.String(), stockRequests(locked.Items), false, nil); err != nil {
				return err
			}
			if err := repo.UpdateFields(ctx, locked.ID, map[string]any{
				"status":              enums.OrderStatusCancelled,
				"cancellation_reason": reason,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   locked.ID,
				Version:       1,
				Data: payloads.OrderCancelledEvent{
					OrderID:       locked.ID,
					UserID:        locked.UserID,
					Reason:        reason,
					StockReleased: true,
					CancelledAt:   time.Now(),
				},
			})
		})
		if err != nil {
			if s.logg != nil {
				errCtx := s.logg.WithField(ctx, "order_id", order.ID.String())
				s.logg.Warn(errCtx, "expired pending order could not be cancelled: "+err.Error())
			}
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func stockRequests(items []models.OrderLineItem) []stockledger.Request {
	requests := make([]stockledger.Request, 0, len(items))
	for _, item := range items {
		requests = append(requests, stockledger.Request{SkuID: item.SkuID, Qty: item.Qty})
	}
	return requests
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func buildActor(userID, tenantID uuid.UUID, role enums.UserRole) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	tenant := tenantID
	return &outbox.ActorRef{
		UserID:   userID,
		TenantID: &tenant,
		Role:     string(role),
	}
}

type stockMoverImpl struct{}

// NewStockMover exposes the ledger-backed stock mover.
func NewStockMover() StockMover {
	return stockMoverImpl{}
}

func (stockMoverImpl) Finalize(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, actorID *uuid.UUID) error {
	return stockledger.Finalize(ctx, tx, operationID, requests, actorID)
}

func (stockMoverImpl) Release(ctx context.Context, tx *gorm.DB, operationID string, requests []stockledger.Request, wasFinalized bool, actorID *uuid.UUID) error {
	return stockledger.Release(ctx, tx, operationID, requests, wasFinalized, actorID)
}
