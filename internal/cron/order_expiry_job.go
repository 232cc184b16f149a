package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultExpiryBatch = 100
	defaultGrace       = 5 * time.Minute
)

type expiryQueue interface {
	Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Ack(ctx context.Context, orderID uuid.UUID) error
}

type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
	ExpireOverdue(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// OrderExpiryJobParams configure the reservation expiry sweep.
type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders orderExpirer
	// Queue is optional; without it only the database backstop runs.
	Queue     expiryQueue
	BatchSize int
	Grace     time.Duration
}

// NewOrderExpiryJob builds the job that cancels unpaid orders past their deadline.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		queue:  params.Queue,
		batch:  batch,
		grace:  grace,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders orderExpirer
	queue  expiryQueue
	batch  int
	grace  time.Duration
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	if j.queue != nil {
		errs = multierr.Append(errs, j.drainQueue(ctx, now))
	}

	expired, err := j.orders.ExpireOverdue(ctx, now.Add(-j.grace), j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expiry backstop: %w", err))
	}
	if expired > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "count", expired), "cron.order_expiry.backstop_expired")
	}
	return errs
}

// drainQueue expires every due order. A task is acked only after Expire succeeds,
// so a failed expiry is retried on the next cycle.
func (j *orderExpiryJob) drainQueue(ctx context.Context, now time.Time) error {
	ids, err := j.queue.Due(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("load due expiries: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for _, id := range ids {
		orderCtx := j.logg.WithOrderID(ctx, id.String())
		ok, err := j.orders.Expire(orderCtx, id)
		if err != nil {
			j.logg.Error(orderCtx, "cron.order_expiry.expire_failed", err)
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		}
		if err := j.queue.Ack(orderCtx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ack expiry %s: %w", id, err))
		}
	}

	if len(ids) > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"due":     len(ids),
			"expired": expired,
		}), "cron.order_expiry.drained")
	}
	return errs
}
