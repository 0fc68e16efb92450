package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

type stubLock struct {
	acquired bool
	denied   bool
	released int
}

func (s *stubLock) Acquire(ctx context.Context) (bool, error) {
	if s.denied {
		return false, nil
	}
	s.acquired = true
	return true, nil
}

func (s *stubLock) Release(ctx context.Context) error {
	s.released++
	return nil
}

type stubJob struct {
	name string
	runs int
	err  error
}

func (s *stubJob) Name() string { return s.name }

func (s *stubJob) Run(ctx context.Context) error {
	s.runs++
	return s.err
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunCycleExecutesAllJobs(t *testing.T) {
	t.Parallel()

	first := &stubJob{name: "first"}
	failing := &stubJob{name: "failing", err: errors.New("boom")}
	last := &stubJob{name: "last"}
	lock := &stubLock{}

	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(first, failing, last),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if first.runs != 1 || failing.runs != 1 || last.runs != 1 {
		t.Fatalf("every job runs once even when one fails: %d/%d/%d", first.runs, failing.runs, last.runs)
	}
	if lock.released != 1 {
		t.Fatalf("lock must be released, got %d releases", lock.released)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	job := &stubJob{name: "only"}
	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(job),
		Lock:     &stubLock{denied: true},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("cycle must be skipped when the lock is held elsewhere")
	}
}

type countingRetentionRepo struct {
	cutoff  time.Time
	deleted int64
}

func (s *countingRetentionRepo) DeleteProcessedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, nil
}

func TestOutboxRetentionJobUsesConfiguredCutoff(t *testing.T) {
	t.Parallel()

	repo := &countingRetentionRepo{deleted: 12}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        quietLogger(),
		DB:            stubTxRunner{},
		Repository:    repo,
		RetentionDays: 7,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetentionJob).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	expected := fixed.Add(-7 * 24 * time.Hour)
	if !repo.cutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.cutoff)
	}
}

type countingSweeper struct {
	ttl   time.Duration
	limit int
	err   error
}

func (s *countingSweeper) CancelExpiredPending(ctx context.Context, pendingTTL time.Duration, limit int) (int, error) {
	s.ttl = pendingTTL
	s.limit = limit
	return 3, s.err
}

func TestOrderTTLJobSweepsWithConfiguredTTL(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:     quietLogger(),
		Orders:     sweeper,
		PendingTTL: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.ttl != 48*time.Hour {
		t.Fatalf("expected ttl 48h, got %s", sweeper.ttl)
	}
	if sweeper.limit <= 0 {
		t.Fatal("sweep must be bounded")
	}
}

func TestOrderTTLJobPropagatesSweepError(t *testing.T) {
	t.Parallel()

	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger: quietLogger(),
		Orders: &countingSweeper{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to propagate")
	}
}

func TestInventoryRetentionJob(t *testing.T) {
	t.Parallel()

	job, err := NewInventoryRetentionJob(InventoryRetentionJobParams{
		Logger:        quietLogger(),
		DB:            stubTxRunner{},
		RetentionDays: 30,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	var got time.Time
	impl := job.(*inventoryRetentionJob)
	impl.prune = func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		got = cutoff
		return 5, nil
	}
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !got.Equal(fixed.Add(-30 * 24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", got)
	}
}
