package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockhold-backend/internal/cron"
	"github.com/angelmondragon/stockhold-backend/internal/expiry"
	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/instance"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/metrics"
	"github.com/angelmondragon/stockhold-backend/pkg/migrate"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/redis"
)

const lockKeyFormat = "sh:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	dbClient.SetCompensationHook(orderMetrics.IncCompensated)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock ledger", err)
		os.Exit(1)
	}

	// the sweep drains the redis queue when it is the configured scheduler;
	// otherwise only the database backstop runs here.
	var (
		canceler orders.ExpiryCanceler
		queue    *expiry.RedisScheduler
	)
	if strings.EqualFold(cfg.Reservation.SchedulerKind, config.SchedulerMemory) {
		canceler = expiry.NewMemoryScheduler(logg)
	} else {
		queue, err = expiry.NewRedisScheduler(redisClient, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create expiry queue", err)
			os.Exit(1)
		}
		canceler = queue
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Ledger:  ledgerService,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Expiry:  canceler,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	expiryParams := cron.OrderExpiryJobParams{
		Logger:    logg,
		Orders:    ordersService,
		BatchSize: cfg.Reservation.SweepBatchSize,
		Grace:     cfg.Reservation.BackstopGrace,
	}
	if queue != nil {
		expiryParams.Queue = queue
	}
	expiryJob, err := cron.NewOrderExpiryJob(expiryParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create order expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outboxRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"workerId":    instance.GetID(),
		"serviceKind": cfg.Service.Kind,
		"scheduler":   cfg.Reservation.SchedulerKind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
