package db

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Compensation undoes one step of a unit when it runs without a transaction.
type Compensation func(ctx context.Context, db *gorm.DB) error

type compensation struct {
	name string
	fn   Compensation
}

// Unit is the handle every step of an atomic operation writes through.
// Steps always register their compensation; only degraded units run them.
type Unit struct {
	DB *gorm.DB

	transactional bool
	undo          []compensation
}

// Transactional reports whether the unit is backed by a database transaction.
func (u *Unit) Transactional() bool {
	return u.transactional
}

// OnRollback registers fn to run, in reverse registration order, if the unit fails
// without a transaction.
func (u *Unit) OnRollback(name string, fn Compensation) {
	if fn == nil {
		return
	}
	u.undo = append(u.undo, compensation{name: name, fn: fn})
}

func (u *Unit) compensate(ctx context.Context) error {
	var errs error
	for i := len(u.undo) - 1; i >= 0; i-- {
		step := u.undo[i]
		if err := step.fn(ctx, u.DB.WithContext(ctx)); err != nil {
			errs = multierr.Append(errs, &CompensationError{Step: step.name, Err: err})
		}
	}
	u.undo = nil
	return errs
}

// CompensationError names the compensation step that failed.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return "compensation " + e.Step + ": " + e.Err.Error()
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// Atomic runs fn as one all-or-nothing unit. With transactions enabled fn runs in
// a transaction that is retried on serialization failures and deadlocks. With
// transactions disabled, or when BEGIN fails, fn runs on the base connection and
// the registered compensations restore prior state on error.
func (c *Client) Atomic(ctx context.Context, fn func(u *Unit) error) error {
	if !c.transactions {
		return c.runDegraded(ctx, fn)
	}

	backoff := 25 * time.Millisecond
	for attempt := 0; ; attempt++ {
		tx := c.conn.WithContext(ctx).Begin()
		if tx.Error != nil {
			if c.logg != nil {
				c.logg.Warn(c.logg.WithField(ctx, "error", tx.Error.Error()), "db.atomic.degraded")
			}
			return c.runDegraded(ctx, fn)
		}

		err := runInTx(tx, func(tx *gorm.DB) error {
			return fn(&Unit{DB: tx, transactional: true})
		})
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= c.txRetries {
			return err
		}

		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"attempt": attempt + 1,
				"error":   err.Error(),
			}), "db.atomic.retry")
		}

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

func (c *Client) runDegraded(ctx context.Context, fn func(u *Unit) error) (err error) {
	unit := &Unit{DB: c.conn.WithContext(ctx)}
	// compensations must finish even if the caller has gone away
	undoCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			c.logCompensation(ctx, unit.compensate(undoCtx))
			panic(r)
		}
	}()

	if err = fn(unit); err != nil {
		if len(unit.undo) > 0 && c.onCompensate != nil {
			c.onCompensate()
		}
		c.logCompensation(ctx, unit.compensate(undoCtx))
	}
	return err
}

func (c *Client) logCompensation(ctx context.Context, err error) {
	if err == nil || c.logg == nil {
		return
	}
	c.logg.Error(ctx, "db.atomic.compensation_failed", err)
}
