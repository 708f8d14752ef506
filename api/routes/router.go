package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tranvanhung2003/digital-world-v1-sub001/api/controllers"
	webhookcontrollers "github.com/tranvanhung2003/digital-world-v1-sub001/api/controllers/webhooks"
	"github.com/tranvanhung2003/digital-world-v1-sub001/api/middleware"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/cart"
	checkoutsvc "github.com/tranvanhung2003/digital-world-v1-sub001/internal/checkout"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/notifications"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/orders"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/payments"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/config"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

// Pinger is the readiness surface the router needs from backing stores.
type Pinger = controllers.Pinger

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            Pinger
	Redis         Pinger
	Registry      *prometheus.Registry
	CartService   cart.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Payments      payments.Service
	Notifications notifications.Service
	WebhookGuard  *payments.IdempotencyGuard
}

// NewRouter assembles the HTTP surface.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaymentWebhook(deps.Payments, cfg.Webhook.SigningSecret, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.CartService, logg))
			r.Post("/items", controllers.CartAddItem(deps.CartService, logg))
			r.Patch("/items/{itemID}", controllers.CartUpdateItem(deps.CartService, logg))
			r.Delete("/items/{itemID}", controllers.CartRemoveItem(deps.CartService, logg))
		})

		r.Post("/checkout", controllers.CheckoutExecute(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{orderID}", controllers.OrdersGet(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.OrdersCancel(deps.Orders, logg))
			r.Post("/{orderID}/repay", controllers.OrdersRepay(deps.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationsList(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.NotificationsMarkRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.NotificationsMarkAllRead(deps.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.AdminOnly(logg),
		)
		r.Patch("/orders/{orderID}/status", controllers.OrdersUpdateStatus(deps.Orders, logg))
	})

	return r
}
