package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockhold-backend/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Service is the order state machine. Every status change goes through a per-order
// compare-and-set so concurrent payment, expiry and admin requests resolve once.
type Service interface {
	FinalizePayment(ctx context.Context, input FinalizeInput) (*FinalizeResult, error)
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
	ExpireOverdue(ctx context.Context, cutoff time.Time, limit int) (int, error)
	AdminSetStatus(ctx context.Context, input AdminStatusInput) (*OrderDTO, error)
	Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDTO, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
}

// ServiceParams groups the order service dependencies.
type ServiceParams struct {
	Repo    Repository
	DB      atomicRunner
	Ledger  StockLedger
	Outbox  outbox.Emitter
	Expiry  ExpiryCanceler
	Metrics transitionRecorder
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	db      atomicRunner
	ledger  StockLedger
	outbox  outbox.Emitter
	expiry  ExpiryCanceler
	metrics transitionRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("atomic runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Expiry == nil {
		return nil, fmt.Errorf("expiry scheduler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		db:      params.DB,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		expiry:  params.Expiry,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

func (s *service) FinalizePayment(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Settlement.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	if input.Settlement.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	order, err := s.load(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, order, input)
}

func (s *service) finalize(ctx context.Context, order *models.Order, input FinalizeInput) (*FinalizeResult, error) {
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	result := &FinalizeResult{OrderID: order.ID}

	switch order.Status {
	case enums.OrderStatusPaid:
		result.AlreadyPaid = true
		return result, nil
	case enums.OrderStatusPendingPayment:
	default:
		return nil, invalidTransition(order.Status, enums.OrderStatusPaid)
	}

	err := s.db.Atomic(ctx, func(u *db.Unit) error {
		result.AlreadyPaid = false
		result.PaymentID = nil

		won, err := s.casStatus(ctx, u, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusPaid)
		if err != nil {
			return err
		}
		if !won {
			current, err := s.reload(ctx, u, order.ID)
			if err != nil {
				return err
			}
			if current.Status == enums.OrderStatusPaid {
				result.AlreadyPaid = true
				return nil
			}
			return invalidTransition(current.Status, enums.OrderStatusPaid)
		}

		if err := s.ledger.CommitAll(ctx, u, LedgerLines(order)); err != nil {
			return err
		}

		repo := s.repo.WithTx(u.DB)
		payment := &models.Payment{
			OrderID:       order.ID,
			Amount:        order.TotalAmount,
			TransactionID: input.Settlement.TransactionID,
			Status:        enums.PaymentStatusSuccess,
			Provider:      input.Settlement.Provider,
			Meta:          input.Settlement.Meta,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}
		u.OnRollback("orders.payment "+payment.ID.String(), func(ctx context.Context, tx *gorm.DB) error {
			return s.repo.WithTx(tx).DeletePayment(ctx, payment.ID)
		})
		paymentID := payment.ID
		result.PaymentID = &paymentID

		paidAt := s.now().UTC()
		if err := s.appendHistory(ctx, u, order.ID, enums.OrderStatusPaid, actorPtr(input.PayerID), paidAt); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, u, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.PayerID, ""),
			OccurredAt:    paidAt,
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				PaymentID:     payment.ID,
				TransactionID: payment.TransactionID,
				Provider:      payment.Provider,
				Amount:        payment.Amount,
				Currency:      order.Currency,
				PaidAt:        paidAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyPaid {
		s.logg.Info(ctx, "orders.finalize.already_paid")
		return result, nil
	}

	s.observe(enums.OrderStatusPendingPayment, enums.OrderStatusPaid)
	s.cancelExpiry(ctx, order.ID)
	s.logg.Info(s.logg.WithField(ctx, "provider", input.Settlement.Provider), "orders.finalize.paid")
	return result, nil
}

// Expire cancels a still-pending order and returns its reserved stock. It reports
// false when the order is missing or already resolved.
func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return false, nil
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	cancelled, err := s.cancelPending(ctx, order, nil, enums.EventOrderExpired)
	if err != nil {
		return false, err
	}
	if cancelled {
		s.logg.Info(ctx, "orders.expire.cancelled")
	}
	return cancelled, nil
}

// ExpireOverdue is the backstop for orders whose scheduled expiry never fired.
func (s *service) ExpireOverdue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ids, err := s.repo.ListPendingExpiredBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue orders")
	}

	var (
		expired int
		errs    error
	)
	for _, id := range ids {
		ok, err := s.Expire(ctx, id)
		if err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, id.String()), "orders.expire.backstop_failed", err)
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, errs
}

func (s *service) AdminSetStatus(ctx context.Context, input AdminStatusInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !adminTargets[input.Status] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q cannot be set by an administrator", input.Status))
	}

	order, err := s.load(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	switch {
	case order.Status == input.Status:
		// repeated request for the current status
	case !CanTransition(order.Status, input.Status):
		return nil, invalidTransition(order.Status, input.Status)
	case order.Status == enums.OrderStatusPendingPayment && input.Status == enums.OrderStatusPaid:
		if _, err := s.finalize(ctx, order, FinalizeInput{
			OrderID: order.ID,
			PayerID: input.AdminID,
			Settlement: Settlement{
				Provider:      enums.PaymentProviderAdmin,
				TransactionID: fmt.Sprintf("admin_%d", s.now().UnixNano()),
				Meta:          map[string]any{"adminId": input.AdminID.String()},
			},
		}); err != nil {
			return nil, err
		}
	case order.Status == enums.OrderStatusPendingPayment && input.Status == enums.OrderStatusCancelled:
		cancelled, err := s.cancelPending(ctx, order, actorPtr(input.AdminID), enums.EventOrderCancelled)
		if err != nil {
			return nil, err
		}
		if !cancelled {
			current, err := s.load(ctx, order.ID)
			if err != nil {
				return nil, err
			}
			if current.Status != enums.OrderStatusCancelled {
				return nil, invalidTransition(current.Status, enums.OrderStatusCancelled)
			}
		}
	default:
		if err := s.advance(ctx, order, input.Status, input.AdminID); err != nil {
			return nil, err
		}
	}

	detail, err := s.repo.FindDetail(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := ToDTO(detail)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDTO, error) {
	order, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !viewer.canAccess(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	dto := ToDTO(order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListByUser(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows))}
	for i := range rows {
		list.Orders = append(list.Orders, ToDTO(&rows[i]))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// cancelPending moves a pending order to CANCELLED and releases its reservation.
func (s *service) cancelPending(ctx context.Context, order *models.Order, by *uuid.UUID, eventType enums.OutboxEventType) (bool, error) {
	cancelled := false
	err := s.db.Atomic(ctx, func(u *db.Unit) error {
		cancelled = false
		won, err := s.casStatus(ctx, u, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusCancelled)
		if err != nil || !won {
			return err
		}

		if err := s.ledger.ReleaseAll(ctx, u, LedgerLines(order)); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.appendHistory(ctx, u, order.ID, enums.OrderStatusCancelled, by, at); err != nil {
			return err
		}

		var data any = payloads.OrderExpiredEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			ExpiredAt: at,
			Released:  eventLines(order),
		}
		if eventType != enums.EventOrderExpired {
			data = payloads.OrderStatusChangedEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				From:             enums.OrderStatusPendingPayment,
				To:               enums.OrderStatusCancelled,
				ChangedBy:        by,
				ReleasedStock:    true,
				OccurredAtStatus: at,
			}
		}
		if err := s.outbox.Emit(ctx, u, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRefPtr(by, enums.RoleAdmin),
			OccurredAt:    at,
			Data:          data,
		}); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		s.observe(enums.OrderStatusPendingPayment, enums.OrderStatusCancelled)
		if by != nil {
			s.cancelExpiry(ctx, order.ID)
		}
	}
	return cancelled, nil
}

// advance applies a post-payment transition; stock is never touched after payment.
func (s *service) advance(ctx context.Context, order *models.Order, to enums.OrderStatus, adminID uuid.UUID) error {
	from := order.Status
	err := s.db.Atomic(ctx, func(u *db.Unit) error {
		won, err := s.casStatus(ctx, u, order.ID, from, to)
		if err != nil {
			return err
		}
		if !won {
			current, err := s.reload(ctx, u, order.ID)
			if err != nil {
				return err
			}
			return invalidTransition(current.Status, to)
		}

		at := s.now().UTC()
		if err := s.appendHistory(ctx, u, order.ID, to, actorPtr(adminID), at); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, u, outbox.DomainEvent{
			EventType:     eventForStatus(to),
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(adminID, enums.RoleAdmin),
			OccurredAt:    at,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				From:             from,
				To:               to,
				ChangedBy:        actorPtr(adminID),
				OccurredAtStatus: at,
			},
		})
	})
	if err != nil {
		return err
	}
	s.observe(from, to)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from, "to": to}), "orders.status.changed")
	return nil
}

func (s *service) casStatus(ctx context.Context, u *db.Unit, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	won, err := s.repo.WithTx(u.DB).CompareAndSetStatus(ctx, orderID, from, to)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if won {
		u.OnRollback(fmt.Sprintf("orders.status %s->%s", from, to), func(ctx context.Context, tx *gorm.DB) error {
			_, err := s.repo.WithTx(tx).CompareAndSetStatus(ctx, orderID, to, from)
			return err
		})
	}
	return won, nil
}

func (s *service) appendHistory(ctx context.Context, u *db.Unit, orderID uuid.UUID, status enums.OrderStatus, by *uuid.UUID, at time.Time) error {
	event, err := s.repo.WithTx(u.DB).AppendHistory(ctx, orderID, status, by, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	u.OnRollback("orders.history "+event.ID.String(), func(ctx context.Context, tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteHistory(ctx, event.ID)
	})
	return nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) reload(ctx context.Context, u *db.Unit, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(u.DB).FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return order, nil
}

func (s *service) cancelExpiry(ctx context.Context, orderID uuid.UUID) {
	if err := s.expiry.Cancel(ctx, orderID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.expiry.cancel_failed")
	}
}

func (s *service) observe(from, to enums.OrderStatus) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(to))
	}
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func actorRef(id uuid.UUID, role enums.Role) *outbox.ActorRef {
	if id == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: id, Role: string(role)}
}

func actorRefPtr(id *uuid.UUID, role enums.Role) *outbox.ActorRef {
	if id == nil {
		return nil
	}
	return actorRef(*id, role)
}
