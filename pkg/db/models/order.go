package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockhold-backend/pkg/enums"
)

// Order is the reservation record created at checkout. Status changes only
// through the order state machine.
type Order struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	TotalAmount     decimal.Decimal    `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency        string             `gorm:"column:currency;not null"`
	Status          enums.OrderStatus  `gorm:"column:status;type:text;not null;index"`
	GatewayOrderRef *string            `gorm:"column:gateway_order_ref;uniqueIndex"`
	ExpiresAt       time.Time          `gorm:"column:expires_at;not null;index"`
	Items           []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History         []OrderStatusEvent `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots product name and price at checkout.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity  int             `gorm:"column:quantity;not null;check:quantity >= 1"`
	Position  int             `gorm:"column:position;not null;default:0"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// OrderStatusEvent is one append-only history entry; Seq is strictly increasing per order.
type OrderStatusEvent struct {
	ID      uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_order_status_events_order_seq"`
	Seq     int               `gorm:"column:seq;not null;uniqueIndex:idx_order_status_events_order_seq"`
	Status  enums.OrderStatus `gorm:"column:status;type:text;not null"`
	By      *uuid.UUID        `gorm:"column:by;type:uuid"`
	At      time.Time         `gorm:"column:at;not null"`
}

func (e *OrderStatusEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
