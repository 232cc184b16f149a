package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stockhold-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the only component allowed to change product stock counters. Every
// operation writes through the supplied unit and registers its own compensation.
type Service interface {
	Reserve(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error
	Release(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error
	Commit(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error
	ReserveAll(ctx context.Context, u *db.Unit, lines []Line) error
	ReleaseAll(ctx context.Context, u *db.Unit, lines []Line) error
	CommitAll(ctx context.Context, u *db.Unit, lines []Line) error
	Restock(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error
	Counters(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Counters, error)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, logger: logg}, nil
}

func (s *service) Reserve(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	if err := validateLine(productID, qty); err != nil {
		return err
	}
	return s.reserve(ctx, u, productID, qty)
}

func (s *service) Release(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	if err := validateLine(productID, qty); err != nil {
		return err
	}
	return s.release(ctx, u, productID, qty)
}

func (s *service) Commit(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	if err := validateLine(productID, qty); err != nil {
		return err
	}
	return s.commit(ctx, u, productID, qty)
}

func (s *service) ReserveAll(ctx context.Context, u *db.Unit, lines []Line) error {
	return s.applyAll(ctx, u, lines, s.reserve)
}

func (s *service) ReleaseAll(ctx context.Context, u *db.Unit, lines []Line) error {
	return s.applyAll(ctx, u, lines, s.release)
}

func (s *service) CommitAll(ctx context.Context, u *db.Unit, lines []Line) error {
	return s.applyAll(ctx, u, lines, s.commit)
}

func (s *service) Restock(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	if err := validateLine(productID, qty); err != nil {
		return err
	}
	ok, err := s.repo.Restock(ctx, u.DB, productID, qty)
	if err != nil {
		return dependencyError(err, "restock product")
	}
	if !ok {
		return productNotFound(productID)
	}
	u.OnRollback("ledger.restock "+productID.String(), func(ctx context.Context, tx *gorm.DB) error {
		return s.expectApplied(s.repo.TakeAvailable(ctx, tx, productID, qty))
	})
	return nil
}

func (s *service) Counters(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Counters, error) {
	counters, err := s.repo.Counters(ctx, tx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, productNotFound(productID)
		}
		return nil, dependencyError(err, "load stock counters")
	}
	return counters, nil
}

type lineOp func(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error

// applyAll validates the whole batch before touching any row; a failing line aborts the
// batch and the unit undoes the lines already applied.
func (s *service) applyAll(ctx context.Context, u *db.Unit, lines []Line, op lineOp) error {
	normalized, err := normalizeLines(lines)
	if err != nil {
		return err
	}
	for _, line := range normalized {
		if err := op(ctx, u, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) reserve(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	ok, err := s.repo.Reserve(ctx, u.DB, productID, qty)
	if err != nil {
		return dependencyError(err, "reserve stock")
	}
	if !ok {
		counters, cerr := s.Counters(ctx, u.DB, productID)
		if cerr != nil {
			return cerr
		}
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  qty,
			"available":  counters.Available,
		})
	}
	u.OnRollback("ledger.reserve "+productID.String(), func(ctx context.Context, tx *gorm.DB) error {
		return s.expectApplied(s.repo.Unreserve(ctx, tx, productID, qty))
	})
	return nil
}

func (s *service) release(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	ok, err := s.repo.Unreserve(ctx, u.DB, productID, qty)
	if err != nil {
		return dependencyError(err, "release stock")
	}
	if ok {
		u.OnRollback("ledger.release "+productID.String(), func(ctx context.Context, tx *gorm.DB) error {
			return s.expectApplied(s.repo.Reserve(ctx, tx, productID, qty))
		})
		return nil
	}

	// reserved no longer covers qty; clamp it at zero and still return qty to available
	counters, err := s.Counters(ctx, u.DB, productID)
	if err != nil {
		return err
	}
	if err := s.repo.ReleaseClamped(ctx, u.DB, productID, qty); err != nil {
		return dependencyError(err, "release stock")
	}
	if s.logger != nil {
		s.logger.Warn(s.logger.WithFields(ctx, map[string]any{
			"product_id": productID.String(),
			"requested":  qty,
			"reserved":   counters.Reserved,
		}), "ledger.release.clamped")
	}
	prevReserved := counters.Reserved
	u.OnRollback("ledger.release_clamped "+productID.String(), func(ctx context.Context, tx *gorm.DB) error {
		if err := s.expectApplied(s.repo.TakeAvailable(ctx, tx, productID, qty)); err != nil {
			return err
		}
		if prevReserved == 0 {
			return nil
		}
		return s.repo.Uncommit(ctx, tx, productID, prevReserved)
	})
	return nil
}

func (s *service) commit(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error {
	ok, err := s.repo.Commit(ctx, u.DB, productID, qty)
	if err != nil {
		return dependencyError(err, "commit stock")
	}
	if !ok {
		counters, cerr := s.Counters(ctx, u.DB, productID)
		if cerr != nil {
			return cerr
		}
		return pkgerrors.New(pkgerrors.CodeReservationMismatch, "reservation mismatch").WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  qty,
			"reserved":   counters.Reserved,
		})
	}
	u.OnRollback("ledger.commit "+productID.String(), func(ctx context.Context, tx *gorm.DB) error {
		return s.repo.Uncommit(ctx, tx, productID, qty)
	})
	return nil
}

func (s *service) expectApplied(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("stock counters changed before compensation")
	}
	return nil
}

func productNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"product_id": productID.String()})
}

func dependencyError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
