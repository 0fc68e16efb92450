// Package confirm applies provider payment confirmations to the order. The
// whole effect runs in one transaction serialized on the order row, so two
// concurrent webhook deliveries cannot both apply: the second observes the
// terminal payment status under the lock and reports a duplicate.
package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/internal/orders"
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

// Input is the provider-agnostic confirmation, produced by a webhook adapter
// after signature verification or by a manual admin trigger.
type Input struct {
	OrderID               uuid.UUID
	Provider              string
	ProviderTransactionID string
	AmountCents           int64
	Success               bool
	ProviderCode          string
	FailureReason         string
}

// Result tells the webhook adapter how to acknowledge the provider.
type Result struct {
	Accepted  bool
	Duplicate bool
}

// Service applies confirmations.
type Service interface {
	Confirm(ctx context.Context, input Input) (Result, error)
}

type service struct {
	repo  orders.Repository
	tx    txRunner
	outbx outboxPublisher
	stock orders.StockMover
	logg  *logger.Logger
}

// NewService builds the confirmation service.
func NewService(repo orders.Repository, tx txRunner, publisher outboxPublisher, stock orders.StockMover, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		stock = orders.NewStockMover()
	}
	return &service{repo: repo, tx: tx, outbx: publisher, stock: stock, logg: logg}, nil
}

func (s *service) Confirm(ctx context.Context, input Input) (Result, error) {
	if input.OrderID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order reference missing from confirmation")
	}

	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}

		// a duplicate or retried notification is a no-op, not an error,
		// so the provider stops retrying
		if order.PaymentStatus.IsTerminal() {
			result = Result{Accepted: true, Duplicate: true}
			return nil
		}

		if input.AmountCents != 0 && input.AmountCents != order.TotalCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "confirmed amount does not match order total").
				WithDetails(map[string]any{
					"orderId":   order.ID,
					"confirmed": input.AmountCents,
					"expected":  order.TotalCents,
				})
		}

		if input.Success {
			if err := s.applySuccess(ctx, tx, repo, order, input); err != nil {
				return err
			}
		} else {
			if err := s.applyFailure(ctx, tx, repo, order, input); err != nil {
				return err
			}
		}
		result = Result{Accepted: true}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		if result.Duplicate {
			s.logg.Info(logCtx, "duplicate payment confirmation ignored")
		} else {
			s.logg.Info(logCtx, "payment confirmation applied")
		}
	}
	return result, nil
}

func (s *service) applySuccess(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, input Input) error {
	if err := s.stock.Finalize(ctx, tx, "finalize:"+order.ID.String(), requestsOf(order), nil); err != nil {
		return err
	}

	now := time.Now()
	updates := map[string]any{
		"payment_status":     enums.PaymentStatusPaid,
		"stock_finalized_at": now,
	}
	order.PaymentStatus = enums.PaymentStatusPaid
	if order.Status == enums.OrderStatusPending {
		if err := orders.GuardTransition(order, enums.OrderStatusProcessing, nil); err != nil {
			return err
		}
		updates["status"] = enums.OrderStatusProcessing
	}
	if err := repo.UpdateFields(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment success")
	}

	if err := repo.UpdatePaymentByOrder(ctx, order.ID, map[string]any{
		"status":                  enums.PaymentStatusPaid,
		"provider_transaction_id": input.ProviderTransactionID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment record")
	}

	paymentID := uuid.Nil
	if order.Payment != nil {
		paymentID = order.Payment.ID
	}
	return s.outbx.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentSuccessful,
		AggregateType: enums.AggregatePayment,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.PaymentSuccessfulEvent{
			OrderID:               order.ID,
			PaymentID:             paymentID,
			Provider:              input.Provider,
			ProviderTransactionID: input.ProviderTransactionID,
			AmountCents:           order.TotalCents,
			ConfirmedAt:           time.Now(),
		},
	})
}

func (s *service) applyFailure(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, input Input) error {
	reason := input.FailureReason
	if reason == "" {
		reason = "payment rejected by provider"
	}

	order.PaymentStatus = enums.PaymentStatusFailed
	if err := orders.GuardTransition(order, enums.OrderStatusCancelled, &reason); err != nil {
		return err
	}
	// only a reservation exists, the deduction never happened
	if err := s.stock.Release(ctx, tx, "release:"+order.ID.String(), requestsOf(order), false, nil); err != nil {
		return err
	}
	if err := repo.UpdateFields(ctx, order.ID, map[string]any{
		"payment_status":      enums.PaymentStatusFailed,
		"status":              enums.OrderStatusCancelled,
		"cancellation_reason": reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure")
	}

	updates := map[string]any{
		"status":         enums.PaymentStatusFailed,
		"failure_reason": reason,
	}
	if input.ProviderTransactionID != "" {
		updates["provider_transaction_id"] = input.ProviderTransactionID
	}
	if err := repo.UpdatePaymentByOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment record")
	}

	paymentID := uuid.Nil
	if order.Payment != nil {
		paymentID = order.Payment.ID
	}
	if err := s.outbx.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.PaymentFailedEvent{
			OrderID:      order.ID,
			PaymentID:    paymentID,
			Provider:     input.Provider,
			ProviderCode: input.ProviderCode,
			Reason:       reason,
			FailedAt:     time.Now(),
		},
	}); err != nil {
		return err
	}
	return s.outbx.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderCancelledEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			Reason:        reason,
			StockReleased: true,
			CancelledAt:   time.Now(),
		},
	})
}

func requestsOf(order *models.Order) []stockledger.Request {
	requests := make([]stockledger.Request, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, stockledger.Request{SkuID: item.SkuID, Qty: item.Qty})
	}
	return requests
}
