package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockhold-backend/api/controllers"
	"github.com/angelmondragon/stockhold-backend/api/routes"
	"github.com/angelmondragon/stockhold-backend/internal/cart"
	"github.com/angelmondragon/stockhold-backend/internal/checkout"
	"github.com/angelmondragon/stockhold-backend/internal/expiry"
	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/internal/notifications"
	"github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/internal/payments"
	product "github.com/angelmondragon/stockhold-backend/internal/products"
	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/metrics"
	"github.com/angelmondragon/stockhold-backend/pkg/migrate"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/redis"
	"github.com/angelmondragon/stockhold-backend/pkg/square"
	"github.com/angelmondragon/stockhold-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)
	dbClient.SetCompensationHook(orderMetrics.IncCompensated)

	scheduler, bind, err := buildScheduler(cfg, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry scheduler", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock ledger", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	productRepo := product.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    ordersRepo,
		DB:      dbClient,
		Ledger:  ledgerService,
		Outbox:  outboxService,
		Expiry:  scheduler,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	if bind != nil {
		bind(ordersService.Expire)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:       dbClient,
		Carts:    cartRepo,
		Orders:   ordersRepo,
		Ledger:   ledgerService,
		Outbox:   outboxService,
		Expiry:   scheduler,
		Metrics:  orderMetrics,
		Logger:   logg,
		Window:   cfg.Reservation.Window,
		Currency: cfg.Reservation.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	intents, provider, err := buildIntents(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}
	verifier, err := payments.NewVerifier(cfg.Payment.SigningSecret)
	if err != nil {
		logg.Error(context.Background(), "failed to create signature verifier", err)
		os.Exit(1)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Checkout:     checkoutService,
		Orders:       ordersRepo,
		Finalizer:    ordersService,
		Intents:      intents,
		Verifier:     verifier,
		Provider:     provider,
		AllowMockPay: cfg.Payment.AllowMockPay,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, productRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}
	productService, err := product.NewService(product.ServiceParams{
		Repo:   productRepo,
		DB:     dbClient,
		Ledger: ledgerService,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}
	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"scheduler": cfg.Reservation.SchedulerKind,
		"provider":  string(provider),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:   cfg,
			Logger:   logg,
			Gatherer: registry,
			Redis:    redisClient,
			Ready: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Checkout:      checkoutService,
			Payments:      paymentService,
			Orders:        ordersService,
			Cart:          cartService,
			Products:      productService,
			Notifications: notificationService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

// buildScheduler returns the configured expiry scheduler. The memory scheduler
// also returns its bind function so expiries can reach the order service.
func buildScheduler(cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (expiry.Scheduler, func(expiry.ExpireFunc), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Reservation.SchedulerKind)) {
	case config.SchedulerMemory:
		sched := expiry.NewMemoryScheduler(logg)
		return sched, sched.Bind, nil
	default:
		sched, err := expiry.NewRedisScheduler(redisClient, logg)
		if err != nil {
			return nil, nil, err
		}
		return sched, nil, nil
	}
}

func buildIntents(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.IntentCreator, enums.PaymentProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Payment.Provider)) {
	case config.PaymentProviderSquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, "", err
		}
		intents, err := payments.NewSquareIntents(client)
		if err != nil {
			return nil, "", err
		}
		return intents, enums.PaymentProviderSquare, nil
	case config.PaymentProviderStripe:
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, "", err
		}
		intents, err := payments.NewStripeIntents(client)
		if err != nil {
			return nil, "", err
		}
		return intents, enums.PaymentProviderStripe, nil
	default:
		return payments.NewLocalIntents(), enums.PaymentProviderLocal, nil
	}
}
