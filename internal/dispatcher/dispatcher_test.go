package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db/models"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox/idempotency"
)

type stubDB struct{}

func (stubDB) Ping(ctx context.Context) error { return nil }

func (stubDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutboxRepo struct {
	events    []models.OutboxEvent
	processed []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (s *stubOutboxRepo) FetchPendingForDispatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	events := s.events
	s.events = nil
	return events, nil
}

func (s *stubOutboxRepo) MarkProcessedTx(tx *gorm.DB, id uuid.UUID) error {
	s.processed = append(s.processed, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, dispatchErr error) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *stubOutboxRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, dispatchErr error, terminalAttempts int) error {
	s.terminal = append(s.terminal, id)
	return nil
}

type stubDLQ struct {
	entries []models.OutboxDLQ
}

func (s *stubDLQ) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	s.entries = append(s.entries, entry)
	return nil
}

type recordingHandler struct {
	name    string
	err     error
	handled []uuid.UUID
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	h.handled = append(h.handled, event.ID)
	return h.err
}

type memoryStore struct {
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return s.keys[key], nil
}

func (s *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := s.keys[key]; exists {
		return false, nil
	}
	s.keys[key] = "1"
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idem:" + scope + ":" + id
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "dispatcher-test", Output: io.Discard})
}

func pendingEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		Status:        enums.OutboxStatusPending,
		AttemptCount:  attempts,
	}
}

func newTestDispatcher(t *testing.T, repo *stubOutboxRepo, dlq *stubDLQ, registry *Registry, idem *idempotency.Manager) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:      config.OutboxConfig{BatchSize: 10, MaxAttempts: 3},
		Logger:      quietLogger(),
		DB:          stubDB{},
		Repository:  repo,
		DLQ:         dlq,
		Registry:    registry,
		Idempotency: idem,
	})
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}
	return svc
}

func TestProcessBatchMarksProcessedAfterHandlersSucceed(t *testing.T) {
	t.Parallel()

	event := pendingEvent(t, enums.EventOrderPlaced, 0)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	handler := &recordingHandler{name: "first"}
	second := &recordingHandler{name: "second"}
	registry := NewRegistry()
	registry.Register(handler, enums.EventOrderPlaced)
	registry.Register(second, enums.EventOrderPlaced)

	svc := newTestDispatcher(t, repo, dlq, registry, nil)
	processed, err := svc.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work")
	}
	if len(handler.handled) != 1 || len(second.handled) != 1 {
		t.Fatalf("both handlers must run: %d/%d", len(handler.handled), len(second.handled))
	}
	if len(repo.processed) != 1 || repo.processed[0] != event.ID {
		t.Fatalf("event not marked processed: %+v", repo.processed)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("unexpected dlq entries %+v", dlq.entries)
	}
}

func TestProcessBatchRetriesFailedHandler(t *testing.T) {
	t.Parallel()

	event := pendingEvent(t, enums.EventPaymentSuccessful, 0)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	registry := NewRegistry()
	registry.Register(&recordingHandler{name: "flaky", err: errors.New("boom")}, enums.EventPaymentSuccessful)

	svc := newTestDispatcher(t, repo, dlq, registry, nil)
	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatalf("event must be marked failed for retry: %+v", repo.failed)
	}
	if len(repo.processed) != 0 || len(repo.terminal) != 0 || len(dlq.entries) != 0 {
		t.Fatal("retryable failure must not finish the event")
	}
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	// attempt 2 of max 3, this failure exhausts the budget
	event := pendingEvent(t, enums.EventPaymentSuccessful, 2)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	registry := NewRegistry()
	registry.Register(&recordingHandler{name: "flaky", err: errors.New("boom")}, enums.EventPaymentSuccessful)

	svc := newTestDispatcher(t, repo, dlq, registry, nil)
	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("event must be marked terminal: %+v", repo.terminal)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq reason %s", dlq.entries[0].ErrorReason)
	}
	if dlq.entries[0].EventID != event.ID {
		t.Fatalf("dlq entry references wrong event %s", dlq.entries[0].EventID)
	}
}

func TestProcessBatchNonRetryableGoesStraightToDLQ(t *testing.T) {
	t.Parallel()

	event := pendingEvent(t, enums.EventOrderCancelled, 0)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	registry := NewRegistry()
	registry.Register(&recordingHandler{
		name: "strict",
		err:  NewNonRetryableError(errors.New("bad payload")),
	}, enums.EventOrderCancelled)

	svc := newTestDispatcher(t, repo, dlq, registry, nil)
	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatal("non-retryable failure must not schedule a retry")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq entries %+v", dlq.entries)
	}
}

func TestProcessBatchMarksEventsWithoutConsumers(t *testing.T) {
	t.Parallel()

	event := pendingEvent(t, enums.EventOrderDelivered, 0)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	svc := newTestDispatcher(t, repo, &stubDLQ{}, NewRegistry(), nil)

	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.processed) != 1 {
		t.Fatal("events without consumers must still complete")
	}
}

func TestProcessBatchMalformedEnvelopeDeadLetters(t *testing.T) {
	t.Parallel()

	event := pendingEvent(t, enums.EventOrderPlaced, 0)
	event.Payload = json.RawMessage(`{not json`)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	registry := NewRegistry()
	registry.Register(&recordingHandler{name: "any"}, enums.EventOrderPlaced)

	svc := newTestDispatcher(t, repo, dlq, registry, nil)
	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("malformed payloads must dead letter, got %+v", dlq.entries)
	}
}

func TestRedeliverySkipsConsumersThatAlreadyHandled(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	idem, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("build idempotency manager: %v", err)
	}

	event := pendingEvent(t, enums.EventPaymentSuccessful, 0)
	done := &recordingHandler{name: "done"}
	flaky := &recordingHandler{name: "flaky", err: errors.New("boom")}
	registry := NewRegistry()
	registry.Register(done, enums.EventPaymentSuccessful)
	registry.Register(flaky, enums.EventPaymentSuccessful)

	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	dlq := &stubDLQ{}
	svc := newTestDispatcher(t, repo, dlq, registry, idem)

	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("event must retry while one handler fails: %+v", repo.failed)
	}

	// redeliver, the succeeded consumer must not run twice
	flaky.err = nil
	repo.events = []models.OutboxEvent{event}
	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(done.handled) != 1 {
		t.Fatalf("consumer reran on redelivery: %d", len(done.handled))
	}
	if len(flaky.handled) != 2 {
		t.Fatalf("failed consumer must rerun: %d", len(flaky.handled))
	}
	if len(repo.processed) != 1 {
		t.Fatalf("event must complete after redelivery: %+v", repo.processed)
	}
}

func TestInterruptedDeliveryRerunsConsumer(t *testing.T) {
	t.Parallel()

	// A run that dies mid-handler must not leave a completion mark behind:
	// the redelivered event has to reach the consumer again instead of being
	// skipped and marked processed with its work lost.
	store := newMemoryStore()
	idem, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("build idempotency manager: %v", err)
	}

	event := pendingEvent(t, enums.EventPaymentSuccessful, 0)
	consumer := &recordingHandler{name: "commission", err: context.DeadlineExceeded}
	registry := NewRegistry()
	registry.Register(consumer, enums.EventPaymentSuccessful)

	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	svc := newTestDispatcher(t, repo, &stubDLQ{}, registry, idem)

	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if len(repo.processed) != 0 || len(repo.failed) != 1 {
		t.Fatalf("interrupted delivery must stay pending: processed=%v failed=%v", repo.processed, repo.failed)
	}
	if len(store.keys) != 0 {
		t.Fatalf("completion mark written before the consumer finished: %v", store.keys)
	}

	// restart: the consumer is healthy again and must actually run
	consumer.err = nil
	repo.events = []models.OutboxEvent{event}
	if _, err := svc.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(consumer.handled) != 2 {
		t.Fatalf("consumer invocations after restart: %d, want the redelivery to rerun it", len(consumer.handled)-1)
	}
	if len(repo.processed) != 1 {
		t.Fatalf("event must complete once the consumer succeeded: %+v", repo.processed)
	}
	if len(store.keys) != 1 {
		t.Fatalf("completion mark missing after success: %v", store.keys)
	}
}
