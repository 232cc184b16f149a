package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stockhold-backend/internal/analytics"
	"github.com/angelmondragon/stockhold-backend/pkg/bigquery"
	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/instance"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/stockhold-backend/pkg/pubsub"
	"github.com/angelmondragon/stockhold-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

// Pub/Sub redelivers for up to seven days; the guard outlives that window.
const processedTTL = 8 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery client", err)
		}
	}()

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	subscriptions, err := pubsubClient.Subscribers(cfg.PubSub.AnalyticsSubscriptions)
	if err != nil {
		logg.Error(context.Background(), "failed to resolve analytics subscriptions", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewManager(redisClient, processedTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	writer, err := analytics.NewWriter(bqClient, cfg.BigQuery.OrderEventsTable, analytics.RetryPolicy{})
	if err != nil {
		logg.Error(context.Background(), "failed to create bigquery writer", err)
		os.Exit(1)
	}
	consumer, err := analytics.NewConsumer(writer, subscriptions, guard, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"workerId":      instance.GetID(),
		"serviceKind":   serviceKind,
		"subscriptions": cfg.PubSub.AnalyticsSubscriptions,
		"table":         cfg.BigQuery.OrderEventsTable,
	})
	logg.Info(ctx, "starting analytics worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker shutting down gracefully")
}
