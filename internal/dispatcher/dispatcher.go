// Package dispatcher drains the outbox: poll a batch of pending events in a
// transaction, run every registered handler, and mark the row processed only
// when all of them succeed. Failed events retry with backoff until the
// attempt budget runs out, then land in the dead letter queue.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/metrics"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox/idempotency"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	handlerTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// Handler consumes one dispatched event. Handlers must be idempotent: the
// outbox delivers at least once.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error
}

// NonRetryableError marks a dispatch failure that retrying cannot fix; the
// event goes straight to the dead letter queue.
type NonRetryableError struct {
	err error
}

// NewNonRetryableError wraps err as terminal.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{err: err}
}

func (e NonRetryableError) Error() string {
	if e.err == nil {
		return "non-retryable dispatch error"
	}
	return e.err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.err }

// Registry maps event types to their consumers.
type Registry struct {
	handlers map[enums.OutboxEventType][]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[enums.OutboxEventType][]Handler)}
}

// Register subscribes a handler to the given event types.
func (r *Registry) Register(handler Handler, eventTypes ...enums.OutboxEventType) {
	if handler == nil {
		return
	}
	for _, eventType := range eventTypes {
		r.handlers[eventType] = append(r.handlers[eventType], handler)
	}
}

// HandlersFor returns the consumers of an event type.
func (r *Registry) HandlersFor(eventType enums.OutboxEventType) []Handler {
	return r.handlers[eventType]
}

type dbClient interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchPendingForDispatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkProcessedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, dispatchErr error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, dispatchErr error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type idempotencyGuard interface {
	IsCompleted(ctx context.Context, consumer, eventID string) (bool, error)
	MarkCompleted(ctx context.Context, consumer, eventID string) error
}

// ServiceParams wires the dispatcher dependencies.
type ServiceParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          dbClient
	Repository  outboxRepository
	DLQ         dlqRepository
	Registry    *Registry
	Idempotency *idempotency.Manager
	Metrics     *metrics.DispatcherMetrics
}

// Service runs the dispatch loop.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	dlq          dlqRepository
	registry     *Registry
	idem         idempotencyGuard
	metrics      *metrics.DispatcherMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// NewService builds the dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DLQ == nil {
		return nil, errors.New("dlq repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("handler registry is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var idem idempotencyGuard
	if params.Idempotency != nil {
		idem = params.Idempotency
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQ,
		registry:     params.Registry,
		idem:         idem,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	interval := s.pollInterval
	backoff := interval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.ProcessBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox dispatch batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = interval

		if processed {
			continue
		}
		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// ProcessBatch drains one batch. It reports whether any event was seen so the
// caller can skip the idle sleep.
func (s *Service) ProcessBatch(ctx context.Context) (bool, error) {
	started := time.Now()
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchPendingForDispatch(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		s.metrics.SetBacklog(len(events))
		if len(events) == 0 {
			return nil
		}
		processed = true

		for _, event := range events {
			if err := s.dispatchOne(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if processed {
		s.metrics.ObserveBatch(time.Since(started))
	}
	return processed, err
}

func (s *Service) dispatchOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := s.eventFields(event)

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable,
			fmt.Errorf("decode payload envelope: %w", err), fields)
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
	}

	handlers := s.registry.HandlersFor(event.EventType)
	if len(handlers) == 0 {
		// nothing consumes this type, retrying will not change that
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event has no consumers")
		return s.repo.MarkProcessedTx(tx, event.ID)
	}

	if err := s.runHandlers(ctx, event, envelope, handlers); err != nil {
		var nonRetry NonRetryableError
		if errors.As(err, &nonRetry) {
			return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
		}

		nextAttempt := event.AttemptCount + 1
		fields["attempt_count"] = nextAttempt
		if nextAttempt >= s.maxAttempts {
			fields["terminal_reason"] = "max_attempts"
			terminalErr := fmt.Errorf("max dispatch attempts reached: %w", err)
			return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, fields)
		}

		logCtx := s.logg.WithFields(ctx, fields)
		logCtx = s.logg.WithField(logCtx, "error", err.Error())
		s.logg.Warn(logCtx, "outbox dispatch failed")
		s.metrics.IncFailed(string(event.EventType))
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return nil
	}

	if markErr := s.repo.MarkProcessedTx(tx, event.ID); markErr != nil {
		return fmt.Errorf("mark processed %s: %w", event.ID, markErr)
	}
	s.metrics.IncDispatched(string(event.EventType))
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event dispatched")
	return nil
}

// runHandlers invokes every consumer and aggregates their failures. The
// redis guard skips consumers that already finished this event on a previous
// delivery, so one slow consumer cannot re-trigger the others forever. The
// completion mark is written only after a consumer succeeds: a run that dies
// mid-handler leaves the event PENDING with no mark, and the redelivery runs
// the consumer again rather than losing its side effect.
func (s *Service) runHandlers(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope, handlers []Handler) error {
	var errs error
	for _, handler := range handlers {
		if s.idem != nil && envelope.EventID != "" {
			done, err := s.idem.IsCompleted(ctx, handler.Name(), envelope.EventID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: idempotency check: %w", handler.Name(), err))
				continue
			}
			if done {
				continue
			}
		}

		handlerCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
		err := handler.Handle(handlerCtx, event, envelope)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", handler.Name(), err))
			continue
		}
		if s.idem != nil && envelope.EventID != "" {
			if markErr := s.idem.MarkCompleted(ctx, handler.Name(), envelope.EventID); markErr != nil {
				// consumers are idempotent, a redelivery just reruns this one
				logCtx := s.logg.WithField(ctx, "consumer", handler.Name())
				logCtx = s.logg.WithField(logCtx, "error", markErr.Error())
				s.logg.Warn(logCtx, "recording consumer completion failed")
			}
		}
	}
	return errs
}

func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := s.logg.WithFields(ctx, fields)
	logCtx = s.logg.WithField(logCtx, "error", err.Error())
	s.logg.Warn(logCtx, "outbox event will not be retried")

	msg := err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if dlqErr := s.dlq.InsertTx(tx, entry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	s.metrics.IncDeadLettered(string(event.EventType))
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
