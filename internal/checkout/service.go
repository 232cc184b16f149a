package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockhold-backend/internal/cart"
	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/metrics"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultWindow = 15 * time.Minute

type atomicRunner interface {
	Atomic(ctx context.Context, fn func(u *db.Unit) error) error
}

type stockReserver interface {
	ReserveAll(ctx context.Context, u *db.Unit, lines []ledger.Line) error
}

type expiryScheduler interface {
	Schedule(ctx context.Context, orderID uuid.UUID, deadline time.Time) error
}

type reservationRecorder interface {
	ObserveReservation(outcome string)
}

// Service turns a user's cart into a reserved, pending-payment order.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*Result, error)
}

// Result is the outcome of a successful checkout.
type Result struct {
	OrderID     uuid.UUID         `json:"orderId"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Currency    string            `json:"currency"`
	ExpiresAt   time.Time         `json:"expiresAt"`

	Order *models.Order `json:"-"`
}

// ServiceParams groups the checkout dependencies.
type ServiceParams struct {
	DB       atomicRunner
	Carts    cart.CartRepository
	Orders   orders.Repository
	Ledger   stockReserver
	Outbox   outbox.Emitter
	Expiry   expiryScheduler
	Metrics  reservationRecorder
	Logger   *logger.Logger
	Window   time.Duration
	Currency string
	Now      func() time.Time
}

type service struct {
	db       atomicRunner
	carts    cart.CartRepository
	orders   orders.Repository
	ledger   stockReserver
	outbox   outbox.Emitter
	expiry   expiryScheduler
	metrics  reservationRecorder
	logg     *logger.Logger
	window   time.Duration
	currency string
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("atomic runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
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
	window := params.Window
	if window <= 0 {
		window = defaultWindow
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:       params.DB,
		carts:    params.Carts,
		orders:   params.Orders,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		expiry:   params.Expiry,
		metrics:  params.Metrics,
		logg:     params.Logger,
		window:   window,
		currency: currency,
		now:      now,
	}, nil
}

// Checkout reserves every cart line, snapshots the cart into a PENDING_PAYMENT
// order and empties the cart as one unit, then schedules the order's expiry.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	var order *models.Order
	err := s.db.Atomic(ctx, func(u *db.Unit) error {
		order = nil
		carts := s.carts.WithTx(u.DB)

		record, err := carts.FindByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		lines := make([]ledger.Line, 0, len(record.Items))
		for _, item := range record.Items {
			if item.Quantity < 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart item quantity must be at least 1").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			if item.Product == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			lines = append(lines, ledger.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		if err := s.ledger.ReserveAll(ctx, u, lines); err != nil {
			return err
		}

		created := s.buildOrder(userID, record.Items)
		repo := s.orders.WithTx(u.DB)
		if err := repo.Create(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		u.OnRollback("checkout.order "+created.ID.String(), func(ctx context.Context, tx *gorm.DB) error {
			return s.orders.WithTx(tx).Delete(ctx, created.ID)
		})

		if err := carts.ClearItems(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "empty cart")
		}
		cleared := record.Items
		u.OnRollback("checkout.cart "+record.ID.String(), func(ctx context.Context, tx *gorm.DB) error {
			return s.carts.WithTx(tx).RestoreItems(ctx, cleared)
		})

		if err := s.outbox.Emit(ctx, u, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   created.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.RoleCustomer)},
			OccurredAt:    created.CreatedAt,
			Data: payloads.OrderCreatedEvent{
				OrderID:     created.ID,
				UserID:      userID,
				TotalAmount: created.TotalAmount,
				Currency:    created.Currency,
				ExpiresAt:   created.ExpiresAt,
				Lines:       orderLines(created),
			},
		}); err != nil {
			return err
		}

		order = created
		return nil
	})
	if err != nil {
		s.observe(err)
		return nil, err
	}
	s.observe(nil)

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if err := s.expiry.Schedule(ctx, order.ID, order.ExpiresAt); err != nil {
		// the backstop sweep still expires the order from expires_at
		s.logg.Error(ctx, "checkout.expiry.schedule_failed", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total_amount": order.TotalAmount.StringFixed(2),
		"lines":        len(order.Items),
	}), "checkout.order.created")

	return &Result{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		ExpiresAt:   order.ExpiresAt,
		Order:       order,
	}, nil
}

func (s *service) buildOrder(userID uuid.UUID, items []models.CartItem) *models.Order {
	now := s.now().UTC()
	total := decimal.Zero
	snapshot := make([]models.OrderItem, 0, len(items))
	for i, item := range items {
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		snapshot = append(snapshot, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Product.Name,
			Price:     item.Product.Price,
			Quantity:  item.Quantity,
			Position:  i + 1,
		})
	}

	by := userID
	return &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		TotalAmount: total.Round(2),
		Currency:    s.currency,
		Status:      enums.OrderStatusPendingPayment,
		ExpiresAt:   now.Add(s.window),
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       snapshot,
		History: []models.OrderStatusEvent{
			{Seq: 1, Status: enums.OrderStatusPendingPayment, By: &by, At: now},
		},
	}
}

func (s *service) observe(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveReservation(metrics.ReservationReserved)
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		s.metrics.ObserveReservation(metrics.ReservationInsufficient)
	default:
		s.metrics.ObserveReservation(metrics.ReservationFailed)
	}
}

func orderLines(order *models.Order) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
