package product

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:products_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Product{}, &models.OutboxEvent{}))

	logg := logger.New(logger.Options{ServiceName: "products-test", Output: io.Discard})
	stock, err := ledger.NewService(ledger.NewRepository(), logg)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		DB:     db.NewWithConn(conn, db.Options{Transactions: true}, logg),
		Ledger: stock,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	require.NoError(t, err)
	return svc, conn
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]CreateProductInput{
		"blank name":     {Name: "  ", Price: decimal.NewFromInt(1)},
		"zero price":     {Name: "Pen", Price: decimal.Zero},
		"sub cent price": {Name: "Pen", Price: decimal.RequireFromString("1.005")},
		"negative stock": {Name: "Pen", Price: decimal.NewFromInt(1), InitialStock: -1},
	}
	for name, input := range cases {
		_, err := svc.Create(ctx, input)
		assert.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: expected validation error, got %v", name, err)
	}
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{Name: " Lamp ", Price: decimal.RequireFromString("19.90"), InitialStock: 5})
	require.NoError(t, err)
	assert.Equal(t, "Lamp", created.Name)
	assert.Equal(t, 5, created.AvailableStock)
	assert.Equal(t, 0, created.ReservedStock)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.90")))

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRestockAddsAvailableAndEmitsEvent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProductInput{Name: "Lamp", Price: decimal.NewFromInt(10), InitialStock: 2})
	require.NoError(t, err)

	got, err := svc.Restock(ctx, RestockInput{ProductID: created.ID, Quantity: 3, AdminID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableStock)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", created.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventStockRestocked, events[0].EventType)
	assert.Equal(t, enums.AggregateProduct, events[0].AggregateType)
}

func TestRestockRejectsBadInput(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, err := svc.Restock(ctx, RestockInput{ProductID: uuid.New(), Quantity: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Restock(ctx, RestockInput{ProductID: uuid.New(), Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		p := models.Product{Name: "P", Price: decimal.NewFromInt(1), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, conn.Create(&p).Error)
		ids = append(ids, p.ID)
	}

	first, err := svc.List(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	assert.Equal(t, ids[4], first.Products[0].ID)
	assert.Equal(t, ids[3], first.Products[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Products, 2)
	assert.Equal(t, ids[2], second.Products[0].ID)

	third, err := svc.List(ctx, pagination.Params{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Products, 1)
	assert.Equal(t, ids[0], third.Products[0].ID)
	assert.Empty(t, third.NextCursor)

	_, err = svc.List(ctx, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
