package orders

import (
	"time"

	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement describes how a payment was confirmed.
type Settlement struct {
	Provider      enums.PaymentProvider
	TransactionID string
	Meta          map[string]any
}

// FinalizeInput carries a confirmed payment for a pending order.
type FinalizeInput struct {
	OrderID    uuid.UUID
	PayerID    uuid.UUID
	Settlement Settlement
}

// FinalizeResult reports the outcome of FinalizePayment.
type FinalizeResult struct {
	OrderID     uuid.UUID
	AlreadyPaid bool
	PaymentID   *uuid.UUID
}

// AdminStatusInput is an administrator's status change request.
type AdminStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	AdminID uuid.UUID
}

// Viewer identifies who is reading or paying an order.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (v Viewer) canAccess(order *models.Order) bool {
	return v.Role == enums.RoleAdmin || order.UserID == v.UserID
}

// OrderItemDTO is one snapshotted line of an order.
type OrderItemDTO struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// StatusEventDTO is one history entry.
type StatusEventDTO struct {
	Seq    int               `json:"seq"`
	Status enums.OrderStatus `json:"status"`
	By     *uuid.UUID        `json:"by"`
	At     time.Time         `json:"at"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"userId"`
	Status          enums.OrderStatus `json:"status"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	Currency        string            `json:"currency"`
	GatewayOrderRef *string           `json:"externalOrderRef,omitempty"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	Items           []OrderItemDTO    `json:"items"`
	History         []StatusEventDTO  `json:"history,omitempty"`
}

// OrderList is a page of a user's orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ToDTO converts the stored order into its API shape.
func ToDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		GatewayOrderRef: order.GatewayOrderRef,
		ExpiresAt:       order.ExpiresAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	for _, event := range order.History {
		dto.History = append(dto.History, StatusEventDTO{
			Seq:    event.Seq,
			Status: event.Status,
			By:     event.By,
			At:     event.At,
		})
	}
	return dto
}

// LedgerLines returns the stock lines held by an order.
func LedgerLines(order *models.Order) []ledger.Line {
	lines := make([]ledger.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, ledger.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func eventLines(order *models.Order) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
