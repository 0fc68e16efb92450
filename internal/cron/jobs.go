package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/minhvo-dev/ordercore-backend/internal/stockledger"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays    = 7
	defaultInventoryRetentionDays = 180
	defaultPendingOrderTTL        = 24 * time.Hour
	pendingSweepBatch             = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxRetentionJobParams configure the processed-event purge.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	RetentionDays int
}

type outboxRetentionRepo interface {
	DeleteProcessedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges processed outbox rows past retention. Pending
// and dead-lettered rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultOutboxRetentionDays
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxRetentionRepo
	retention int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteProcessedBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}

// InventoryRetentionJobParams configure the audit-log prune.
type InventoryRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	RetentionDays int
}

// NewInventoryRetentionJob prunes inventory audit entries past retention.
// This is the only path that ever deletes a log row.
func NewInventoryRetentionJob(params InventoryRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultInventoryRetentionDays
	}
	return &inventoryRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		retention: retention,
		now:       time.Now,
		prune:     stockledger.DeleteLogsBefore,
	}, nil
}

type inventoryRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	retention int
	now       func() time.Time
	prune     func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func (j *inventoryRetentionJob) Name() string { return "inventory-log-retention" }

func (j *inventoryRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("inventory log retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "inventory log retention cleanup complete")
	return nil
}

// OrderTTLJobParams configure the unpaid-order sweep.
type OrderTTLJobParams struct {
	Logger     *logger.Logger
	Orders     pendingSweeper
	PendingTTL time.Duration
}

type pendingSweeper interface {
	CancelExpiredPending(ctx context.Context, pendingTTL time.Duration, limit int) (int, error)
}

// NewOrderTTLJob cancels PENDING orders whose payment window expired,
// releasing their stock reservations.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders pendingSweeper
	ttl    time.Duration
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cancelled, err := j.orders.CancelExpiredPending(ctx, j.ttl, pendingSweepBatch)
	if err != nil {
		return fmt.Errorf("order ttl sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending_ttl":      j.ttl.String(),
		"orders_cancelled": cancelled,
	})
	j.logg.Info(logCtx, "order ttl sweep complete")
	return nil
}
