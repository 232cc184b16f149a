package cart

import (
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItemDTO is one cart line priced at the current product price.
type CartItemDTO struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CartDTO is the API shape of a cart.
type CartDTO struct {
	ID       uuid.UUID       `json:"id"`
	UserID   uuid.UUID       `json:"userId"`
	Items    []CartItemDTO   `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func toDTO(cart *models.Cart) *CartDTO {
	dto := &CartDTO{
		ID:       cart.ID,
		UserID:   cart.UserID,
		Items:    make([]CartItemDTO, 0, len(cart.Items)),
		Subtotal: decimal.Zero,
	}
	for _, item := range cart.Items {
		line := CartItemDTO{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.Product != nil {
			line.Name = item.Product.Name
			line.Price = item.Product.Price
			line.LineTotal = item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			dto.Subtotal = dto.Subtotal.Add(line.LineTotal)
		}
		dto.Items = append(dto.Items, line)
	}
	dto.Subtotal = dto.Subtotal.Round(2)
	return dto
}
