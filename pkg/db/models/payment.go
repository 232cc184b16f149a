package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockhold-backend/pkg/enums"
)

// Payment is an append-only settlement record. At most one SUCCESS row exists per order.
type Payment struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	TransactionID string                `gorm:"column:transaction_id;not null"`
	Status        enums.PaymentStatus   `gorm:"column:status;type:text;not null"`
	Provider      enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	Meta          map[string]any        `gorm:"column:meta;type:jsonb;serializer:json"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
