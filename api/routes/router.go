package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockhold-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/stockhold-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/stockhold-backend/api/controllers/orders"
	"github.com/angelmondragon/stockhold-backend/api/middleware"
	"github.com/angelmondragon/stockhold-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/stockhold-backend/internal/checkout"
	"github.com/angelmondragon/stockhold-backend/internal/notifications"
	"github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/internal/payments"
	product "github.com/angelmondragon/stockhold-backend/internal/products"
	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stockhold-backend/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs for idempotency and throttling.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Params carries everything the router wires into handlers.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Redis    RedisStore
	Ready    map[string]controllers.Pinger

	Checkout      checkoutsvc.Service
	Payments      payments.Service
	Orders        orders.Service
	Cart          cart.Service
	Products      product.Service
	Notifications notifications.Service
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	verifyPolicy := middleware.NewRateLimitPolicy(
		"payments-verify",
		cfg.Payment.VerifyRateWindow,
		cfg.Payment.VerifyRateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ProductList(p.Products, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(p.Products, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(p.Redis, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
				r.Put("/items", cartcontrollers.CartSetItem(p.Cart, logg))
				r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(p.Cart, logg))
			})

			r.Post("/checkout", controllers.Checkout(p.Checkout, logg))

			r.Route("/payments", func(r chi.Router) {
				r.Post("/intent", controllers.PaymentIntent(p.Payments, logg))
				r.With(middleware.RateLimit(verifyPolicy, p.Redis, logg)).Post("/verify", controllers.PaymentVerify(p.Payments, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(p.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
				r.Post("/{orderId}/pay", controllers.MockPay(p.Payments, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Patch("/orders/{orderId}/status", ordercontrollers.AdminSetStatus(p.Orders, logg))
		r.Post("/products", controllers.AdminCreateProduct(p.Products, logg))
		r.Put("/products/{productId}/stock", controllers.AdminRestockProduct(p.Products, logg))
	})

	return r
}
