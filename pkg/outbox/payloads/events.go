package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockhold-backend/pkg/enums"
)

// OrderLine is the product quantity pair carried by order events.
type OrderLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// OrderCreatedEvent is emitted when checkout reserves stock for a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"orderId"`
	UserID      uuid.UUID       `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Lines       []OrderLine     `json:"lines"`
}

// OrderPaidEvent drives the payment confirmation notification.
type OrderPaidEvent struct {
	OrderID       uuid.UUID             `json:"orderId"`
	UserID        uuid.UUID             `json:"userId"`
	PaymentID     uuid.UUID             `json:"paymentId"`
	TransactionID string                `json:"transactionId"`
	Provider      enums.PaymentProvider `json:"provider"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      string                `json:"currency"`
	PaidAt        time.Time             `json:"paidAt"`
}

// OrderExpiredEvent is emitted when an unpaid reservation times out.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID   `json:"orderId"`
	UserID    uuid.UUID   `json:"userId"`
	ExpiredAt time.Time   `json:"expiredAt"`
	Released  []OrderLine `json:"released"`
}

// OrderStatusChangedEvent covers admin driven transitions (cancel, ship, deliver).
type OrderStatusChangedEvent struct {
	OrderID          uuid.UUID         `json:"orderId"`
	UserID           uuid.UUID         `json:"userId"`
	From             enums.OrderStatus `json:"from"`
	To               enums.OrderStatus `json:"to"`
	ChangedBy        *uuid.UUID        `json:"changedBy,omitempty"`
	ReleasedStock    bool              `json:"releasedStock"`
	OccurredAtStatus time.Time         `json:"at"`
}

// StockRestockedEvent is emitted when an admin adds available stock.
type StockRestockedEvent struct {
	ProductID      uuid.UUID `json:"productId"`
	Added          int       `json:"added"`
	AvailableStock int       `json:"availableStock"`
}
