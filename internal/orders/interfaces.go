package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders, their history and payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error)
	CompareAndSetStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
	SetGatewayOrderRef(ctx context.Context, orderID uuid.UUID, ref string) (bool, error)
	AppendHistory(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, by *uuid.UUID, at time.Time) (*models.OrderStatusEvent, error)
	DeleteHistory(ctx context.Context, eventID uuid.UUID) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	DeletePayment(ctx context.Context, paymentID uuid.UUID) error
	FindSuccessfulPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	ListPendingExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type atomicRunner interface {
	Atomic(ctx context.Context, fn func(u *db.Unit) error) error
}

// StockLedger is the slice of the ledger the order state machine drives.
type StockLedger interface {
	CommitAll(ctx context.Context, u *db.Unit, lines []ledger.Line) error
	ReleaseAll(ctx context.Context, u *db.Unit, lines []ledger.Line) error
}

// ExpiryCanceler drops a pending expiry once an order leaves PENDING_PAYMENT.
type ExpiryCanceler interface {
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

type transitionRecorder interface {
	ObserveTransition(from, to string)
}
