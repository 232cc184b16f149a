package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/google/uuid"
)

const ordersQueue = "orders"

type sortedSetStore interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key, member string) (bool, error)
	ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error)
	ExpiryKey(name string) string
}

// RedisScheduler keeps pending expiries in a sorted set scored by deadline
// (unix milliseconds) so any worker process can drain them.
type RedisScheduler struct {
	store sortedSetStore
	key   string
	logg  *logger.Logger
}

// NewRedisScheduler builds the scheduler on top of the shared redis client.
func NewRedisScheduler(store sortedSetStore, logg *logger.Logger) (*RedisScheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	return &RedisScheduler{
		store: store,
		key:   store.ExpiryKey(ordersQueue),
		logg:  logg,
	}, nil
}

func (s *RedisScheduler) Schedule(ctx context.Context, orderID uuid.UUID, deadline time.Time) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id required")
	}
	if err := s.store.ZAdd(ctx, s.key, float64(deadline.UnixMilli()), orderID.String()); err != nil {
		return fmt.Errorf("schedule expiry: %w", err)
	}
	return nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, orderID uuid.UUID) error {
	if _, err := s.store.ZRem(ctx, s.key, orderID.String()); err != nil {
		return fmt.Errorf("cancel expiry: %w", err)
	}
	return nil
}

// Due returns up to limit orders whose deadline is at or before now, oldest first.
// Members that are not order ids are dropped.
func (s *RedisScheduler) Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := s.store.ZRangeByScore(ctx, s.key, float64(now.UnixMilli()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("load due expiries: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "member", member), "expiry.redis.invalid_member")
			}
			_, _ = s.store.ZRem(ctx, s.key, member)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ack removes a processed task.
func (s *RedisScheduler) Ack(ctx context.Context, orderID uuid.UUID) error {
	return s.Cancel(ctx, orderID)
}
