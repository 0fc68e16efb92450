// Package idempotency provides a redis-backed record of which event
// consumers have already finished an event, so a redelivery can skip them.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	redispkg "github.com/minhvo-dev/ordercore-backend/pkg/redis"
)

const (
	defaultTTL    = 72 * time.Hour
	processedMark = "1"
)

// Manager records which (consumer, event) pairs have completed. The mark is
// written only after the consumer's work succeeded; a run that dies
// mid-handler leaves no mark, so the redelivered event reaches the consumer
// again instead of being silently skipped.
type Manager struct {
	store redispkg.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redispkg.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// IsCompleted reports whether the consumer already finished this event on a
// previous delivery. A missing key means the work is still owed.
func (m *Manager) IsCompleted(ctx context.Context, consumer, eventID string) (bool, error) {
	if consumer == "" || eventID == "" {
		return false, errors.New("consumer and event id are required")
	}
	value, err := m.store.Get(ctx, m.key(consumer, eventID))
	if err != nil {
		if redispkg.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading completion mark: %w", err)
	}
	return value == processedMark, nil
}

// MarkCompleted records that the consumer finished this event. SetNX keeps a
// concurrent run that finished the same work first as the owner of the mark.
func (m *Manager) MarkCompleted(ctx context.Context, consumer, eventID string) error {
	if consumer == "" || eventID == "" {
		return errors.New("consumer and event id are required")
	}
	if _, err := m.store.SetNX(ctx, m.key(consumer, eventID), processedMark, m.ttl); err != nil {
		return fmt.Errorf("recording completion mark: %w", err)
	}
	return nil
}

func (m *Manager) key(consumer, eventID string) string {
	return m.store.IdempotencyKey("evt:processed", consumer+":"+eventID)
}
