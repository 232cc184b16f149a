package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable item together with its stock counters. Only the stock
// ledger writes AvailableStock and ReservedStock.
type Product struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name           string          `gorm:"column:name;not null"`
	Description    *string         `gorm:"column:description"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	AvailableStock int             `gorm:"column:available_stock;not null;default:0;check:available_stock >= 0"`
	ReservedStock  int             `gorm:"column:reserved_stock;not null;default:0;check:reserved_stock >= 0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
