package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/minhvo-dev/ordercore-backend/api/routes"
	"github.com/minhvo-dev/ordercore-backend/internal/carts"
	"github.com/minhvo-dev/ordercore-backend/internal/catalog"
	checkoutsvc "github.com/minhvo-dev/ordercore-backend/internal/checkout"
	"github.com/minhvo-dev/ordercore-backend/internal/commission"
	"github.com/minhvo-dev/ordercore-backend/internal/notifications"
	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/internal/payments"
	"github.com/minhvo-dev/ordercore-backend/internal/payments/confirm"
	"github.com/minhvo-dev/ordercore-backend/internal/promotions"
	"github.com/minhvo-dev/ordercore-backend/internal/shipping"
	"github.com/minhvo-dev/ordercore-backend/internal/webhooks/momo"
	"github.com/minhvo-dev/ordercore-backend/internal/webhooks/vnpay"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/migrate"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	cartRepo := carts.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	commissionRepo := commission.NewRepository(gormDB)
	publisher := outbox.NewService(outbox.NewRepository(gormDB), logg)
	dlqRepo := outbox.NewDLQRepository(gormDB)

	cartService, err := carts.NewService(cartRepo, catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	carrier, err := shipping.NewClient(cfg.Shipping)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping client", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient, publisher, carrier, orders.NewStockMover(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	promoService, err := promotions.NewService()
	if err != nil {
		logg.Error(context.Background(), "failed to create promotions service", err)
		os.Exit(1)
	}

	vnpayStrategy, err := payments.NewVNPayStrategy(cfg.VNPay)
	if err != nil {
		logg.Error(context.Background(), "failed to create vnpay strategy", err)
		os.Exit(1)
	}
	momoStrategy, err := payments.NewMoMoStrategy(cfg.MoMo, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create momo strategy", err)
		os.Exit(1)
	}
	paymentsService, err := payments.NewService(vnpayStrategy, momoStrategy)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(
		dbClient,
		cartRepo,
		catalogRepo,
		ordersRepo,
		promoService,
		nil,
		publisher,
		carrier,
		commissionRepo,
		paymentsService,
		cfg.Orders,
		cfg.Shipping,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	confirmService, err := confirm.NewService(ordersRepo, dbClient, publisher, orders.NewStockMover(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment confirmation service", err)
		os.Exit(1)
	}
	vnpayHandler, err := vnpay.NewHandler(cfg.VNPay, confirmService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create vnpay webhook handler", err)
		os.Exit(1)
	}
	momoHandler, err := momo.NewHandler(cfg.MoMo, confirmService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create momo webhook handler", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			cartService,
			checkoutService,
			ordersService,
			notificationsService,
			dlqRepo,
			vnpayHandler,
			momoHandler,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
