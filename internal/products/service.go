package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockhold-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxNameLength = 200

type atomicRunner interface {
	Atomic(ctx context.Context, fn func(u *db.Unit) error) error
}

type stockRestocker interface {
	Restock(ctx context.Context, u *db.Unit, productID uuid.UUID, qty int) error
}

// Service exposes the catalog read paths and the admin product operations.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context, params pagination.Params) (*ProductList, error)
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	Restock(ctx context.Context, input RestockInput) (*ProductDTO, error)
}

// ServiceParams groups the product service dependencies.
type ServiceParams struct {
	Repo   Repository
	DB     atomicRunner
	Ledger stockRestocker
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	db     atomicRunner
	ledger stockRestocker
	outbox outbox.Emitter
	logg   *logger.Logger
}

// NewService builds the product service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
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
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		db:     params.DB,
		ledger: params.Ledger,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	dto := toDTO(product)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ProductList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	list := &ProductList{Products: make([]ProductDTO, 0, len(rows))}
	for i := range rows {
		list.Products = append(list.Products, toDTO(&rows[i]))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case len(name) > maxNameLength:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is too long")
	case !input.Price.IsPositive():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	case !input.Price.Equal(input.Price.Round(2)):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price supports at most two decimal places")
	case input.InitialStock < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must be non-negative")
	}

	product := &models.Product{
		Name:           name,
		Description:    input.Description,
		Price:          input.Price.Round(2),
		AvailableStock: input.InitialStock,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID.String()), "products.created")
	dto := toDTO(product)
	return &dto, nil
}

// Restock is the only path that grows a product's total stock.
func (s *service) Restock(ctx context.Context, input RestockInput) (*ProductDTO, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	var product *models.Product
	err := s.db.Atomic(ctx, func(u *db.Unit) error {
		if err := s.ledger.Restock(ctx, u, input.ProductID, input.Quantity); err != nil {
			return err
		}
		loaded, err := s.repo.WithTx(u.DB).FindByID(ctx, input.ProductID)
		if err != nil {
			return mapLoadError(err)
		}
		product = loaded

		var actor *outbox.ActorRef
		if input.AdminID != uuid.Nil {
			actor = &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.RoleAdmin)}
		}
		return s.outbox.Emit(ctx, u, outbox.DomainEvent{
			EventType:     enums.EventStockRestocked,
			AggregateType: enums.AggregateProduct,
			AggregateID:   input.ProductID,
			Actor:         actor,
			Data: payloads.StockRestockedEvent{
				ProductID:      input.ProductID,
				Added:          input.Quantity,
				AvailableStock: loaded.AvailableStock,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": input.ProductID.String(),
		"added":      input.Quantity,
	}), "products.restocked")
	dto := toDTO(product)
	return &dto, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
