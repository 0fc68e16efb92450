package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minhvo-dev/ordercore-backend/api/controllers"
	"github.com/minhvo-dev/ordercore-backend/api/middleware"
	"github.com/minhvo-dev/ordercore-backend/internal/carts"
	checkoutsvc "github.com/minhvo-dev/ordercore-backend/internal/checkout"
	"github.com/minhvo-dev/ordercore-backend/internal/notifications"
	"github.com/minhvo-dev/ordercore-backend/internal/orders"
	"github.com/minhvo-dev/ordercore-backend/internal/webhooks/momo"
	"github.com/minhvo-dev/ordercore-backend/internal/webhooks/vnpay"
	"github.com/minhvo-dev/ordercore-backend/pkg/config"
	"github.com/minhvo-dev/ordercore-backend/pkg/db"
	"github.com/minhvo-dev/ordercore-backend/pkg/enums"
	"github.com/minhvo-dev/ordercore-backend/pkg/logger"
	"github.com/minhvo-dev/ordercore-backend/pkg/outbox"
	"github.com/minhvo-dev/ordercore-backend/pkg/redis"
)

// NewRouter assembles the HTTP surface: health and metrics, unauthenticated
// payment and carrier webhooks, the buyer-facing API, and the admin API.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	cartService carts.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	notificationsService *notifications.Service,
	dlqRepo *outbox.DLQRepository,
	vnpayHandler *vnpay.Handler,
	momoHandler *momo.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Payment gateways and the carrier call these back directly; each handler
	// authenticates the payload with its own signature scheme.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Get("/vnpay/ipn", vnpayHandler.HandleIPN)
		r.Post("/momo/ipn", momoHandler.HandleIPN)
		r.Post("/shipping/tracking", controllers.TrackingWebhook(ordersService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartList(cartService, logg))
			r.Post("/", controllers.CartSetLine(cartService, logg))
			r.Delete("/{skuId}", controllers.CartRemoveLine(cartService, logg))
		})

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
			r.Post("/{orderId}/complete", controllers.CompleteOrder(ordersService, logg))
			r.Post("/{orderId}/return", controllers.ReturnOrder(ordersService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, string(enums.RoleTenantAdmin), string(enums.RolePlatformOps)))

		r.Post("/orders/{orderId}/ship", controllers.AdminShipOrder(ordersService, logg))
		r.Post("/orders/{orderId}/deliver", controllers.AdminDeliverOrder(ordersService, logg))
		r.Post("/stock/adjust", controllers.AdminAdjustStock(dbClient, logg))
		r.Get("/outbox/dlq", controllers.AdminListDLQ(dlqRepo, logg))
	})

	return r
}
