package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/minhvo-dev/ordercore-backend/internal/catalog"
	"github.com/minhvo-dev/ordercore-backend/internal/commission"
	"github.com/minhvo-dev/ordercore-backend/internal/dispatcher"
	"github.com/minhvo-dev/ordercore-backend/internal/loyalty"
	"github.com/minhvo-dev/ordercore-backend/internal/notifications"
	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/metrics"
	"github.com/minhvo-dev/ordercore-backend/pkg/migrate"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox/idempotency"
	"github.com/minhvo-dev/ordercore-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-dispatcher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "outbox-dispatcher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	idem, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	ordersRepo := orders.NewRepository(gormDB)

	commissionService, err := commission.NewService(
		commission.NewRepository(gormDB),
		ordersRepo,
		catalog.NewRepository(gormDB),
		dbClient,
		cfg.Commission,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	loyaltyClient, err := loyalty.NewClient(cfg.Loyalty)
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty client", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	registry := dispatcher.NewRegistry()
	registry.Register(dispatcher.NewCommissionHandler(commissionService),
		enums.EventPaymentSuccessful,
	)
	registry.Register(dispatcher.NewLoyaltyHandler(loyaltyClient, ordersRepo),
		enums.EventPaymentSuccessful,
		enums.EventOrderCancelled,
		enums.EventOrderReturned,
	)
	registry.Register(dispatcher.NewNotificationHandler(notificationsService, ordersRepo),
		enums.EventOrderPlaced,
		enums.EventPaymentSuccessful,
		enums.EventPaymentFailed,
		enums.EventOrderCancelled,
		enums.EventOrderShipped,
		enums.EventOrderDelivered,
		enums.EventOrderReturned,
	)

	service, err := dispatcher.NewService(dispatcher.ServiceParams{
		Config:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(gormDB),
		DLQ:         outbox.NewDLQRepository(gormDB),
		Registry:    registry,
		Idempotency: idem,
		Metrics:     metrics.NewDispatcherMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting outbox dispatcher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox dispatcher shutting down gracefully")
}
