package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultRetryDelay = 30 * time.Second
	expireTimeout     = 30 * time.Second
)

// MemoryScheduler fires expiries from in-process timers. Pending tasks are lost on
// restart; the backstop sweep picks those orders up from the database.
type MemoryScheduler struct {
	mu         sync.Mutex
	timers     map[uuid.UUID]*pendingExpiry
	handler    ExpireFunc
	retryDelay time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

// NewMemoryScheduler returns a scheduler that needs a handler before timers fire.
func NewMemoryScheduler(logg *logger.Logger) *MemoryScheduler {
	return &MemoryScheduler{
		timers:     make(map[uuid.UUID]*pendingExpiry),
		retryDelay: defaultRetryDelay,
		logg:       logg,
		now:        time.Now,
	}
}

// Bind sets the function run when a deadline passes. Orders that come due
// before Bind is called are retried after the retry delay.
func (s *MemoryScheduler) Bind(handler ExpireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *MemoryScheduler) Schedule(_ context.Context, orderID uuid.UUID, deadline time.Time) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id required")
	}
	s.arm(orderID, deadline.Sub(s.now()))
	return nil
}

func (s *MemoryScheduler) Cancel(_ context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.timers[orderID]; ok {
		task.timer.Stop()
		delete(s.timers, orderID)
	}
	return nil
}

// Pending reports how many expiries are armed.
func (s *MemoryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every pending timer.
func (s *MemoryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, task := range s.timers {
		task.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *MemoryScheduler) arm(orderID uuid.UUID, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[orderID]; ok {
		existing.timer.Stop()
	}
	task := &pendingExpiry{}
	s.timers[orderID] = task
	task.timer = time.AfterFunc(delay, func() { s.fire(orderID, task) })
}

func (s *MemoryScheduler) fire(orderID uuid.UUID, task *pendingExpiry) {
	s.mu.Lock()
	if s.timers[orderID] != task {
		// cancelled or rescheduled after this timer started
		s.mu.Unlock()
		return
	}
	handler := s.handler
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	if handler == nil {
		s.arm(orderID, s.retryDelay)
		return
	}
	if _, err := handler(ctx, orderID); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "expiry.memory.expire_failed", err)
		}
		s.arm(orderID, s.retryDelay)
		return
	}

	s.mu.Lock()
	if s.timers[orderID] == task {
		delete(s.timers, orderID)
	}
	s.mu.Unlock()
}

type pendingExpiry struct {
	timer *time.Timer
}
