package cart

import (
	"context"
	"testing"

	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type productRepo struct {
	db *gorm.DB
}

func (p productRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := p.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(conn), productRepo{db: conn})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, conn
}

func seedProduct(t *testing.T, conn *gorm.DB, name, price string) uuid.UUID {
	t.Helper()
	product := models.Product{Name: name, Price: decimal.RequireFromString(price), AvailableStock: 10}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func TestGetWithoutCartReturnsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	got, err := svc.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Items) != 0 || !got.Subtotal.IsZero() {
		t.Fatalf("expected empty cart, got %+v", got)
	}
}

func TestSetItemAddsThenUpdates(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	pen := seedProduct(t, conn, "Pen", "1.10")
	book := seedProduct(t, conn, "Book", "12.50")

	if _, err := svc.SetItem(ctx, userID, SetItemInput{ProductID: pen, Quantity: 3}); err != nil {
		t.Fatalf("add pen: %v", err)
	}
	if _, err := svc.SetItem(ctx, userID, SetItemInput{ProductID: book, Quantity: 1}); err != nil {
		t.Fatalf("add book: %v", err)
	}
	got, err := svc.SetItem(ctx, userID, SetItemInput{ProductID: pen, Quantity: 2})
	if err != nil {
		t.Fatalf("update pen: %v", err)
	}

	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	if got.Items[0].ProductID != pen || got.Items[0].Quantity != 2 {
		t.Fatalf("expected pen first with qty 2, got %+v", got.Items[0])
	}
	if !got.Subtotal.Equal(decimal.RequireFromString("14.70")) {
		t.Fatalf("unexpected subtotal %s", got.Subtotal)
	}

	var carts int64
	conn.Model(&models.Cart{}).Where("user_id = ?", userID).Count(&carts)
	if carts != 1 {
		t.Fatalf("expected a single cart row, got %d", carts)
	}
}

func TestSetItemValidation(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	pen := seedProduct(t, conn, "Pen", "1.00")

	_, err := svc.SetItem(ctx, uuid.New(), SetItemInput{ProductID: pen, Quantity: 0})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.SetItem(ctx, uuid.New(), SetItemInput{ProductID: uuid.New(), Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	pen := seedProduct(t, conn, "Pen", "1.00")

	if _, err := svc.RemoveItem(ctx, userID, pen); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found without cart, got %v", err)
	}

	if _, err := svc.SetItem(ctx, userID, SetItemInput{ProductID: pen, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := svc.RemoveItem(ctx, userID, pen)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(got.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", got.Items)
	}
	if _, err := svc.RemoveItem(ctx, userID, pen); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestClearAndRestoreItems(t *testing.T) {
	_, conn := newTestService(t)
	ctx := context.Background()
	repo := NewRepository(conn)
	pen := seedProduct(t, conn, "Pen", "1.00")

	cart, err := repo.EnsureCart(ctx, uuid.New())
	if err != nil {
		t.Fatalf("ensure cart: %v", err)
	}
	if err := repo.UpsertItem(ctx, cart.ID, pen, 4); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	loaded, err := repo.FindByUser(ctx, cart.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	if err := repo.ClearItems(ctx, cart.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := repo.RestoreItems(ctx, loaded.Items); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := repo.FindByUser(ctx, cart.UserID)
	if err != nil {
		t.Fatalf("find restored: %v", err)
	}
	if len(restored.Items) != 1 || restored.Items[0].ID != loaded.Items[0].ID || restored.Items[0].Quantity != 4 {
		t.Fatalf("unexpected restored items %+v", restored.Items)
	}
}
