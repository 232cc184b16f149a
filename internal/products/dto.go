package product

import (
	"time"

	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductDTO is the API shape of a catalog product.
type ProductDTO struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Description    *string         `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	AvailableStock int             `json:"availableStock"`
	ReservedStock  int             `json:"reservedStock"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ProductList is one page of products.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name         string
	Description  *string
	Price        decimal.Decimal
	InitialStock int
}

// RestockInput adds units to a product's available stock.
type RestockInput struct {
	ProductID uuid.UUID
	Quantity  int
	AdminID   uuid.UUID
}

func toDTO(p *models.Product) ProductDTO {
	return ProductDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		AvailableStock: p.AvailableStock,
		ReservedStock:  p.ReservedStock,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
