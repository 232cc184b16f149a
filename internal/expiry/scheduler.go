package expiry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Scheduler arranges for an order to be expired at its deadline. Scheduling the
// same order again replaces its deadline; at most one task is pending per order.
type Scheduler interface {
	Schedule(ctx context.Context, orderID uuid.UUID, deadline time.Time) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

// Queue is a scheduler whose due tasks are drained by an external sweep.
type Queue interface {
	Scheduler
	Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Ack(ctx context.Context, orderID uuid.UUID) error
}

// ExpireFunc expires one order; it reports false when the order was already resolved.
type ExpireFunc func(ctx context.Context, orderID uuid.UUID) (bool, error)
