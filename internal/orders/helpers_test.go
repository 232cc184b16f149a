package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/stockhold-backend/internal/ledger"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeExpiry struct {
	mu        sync.Mutex
	cancelled []uuid.UUID
	err       error
}

func (f *fakeExpiry) Cancel(_ context.Context, orderID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return f.err
}

func (f *fakeExpiry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

type harness struct {
	conn   *gorm.DB
	svc    Service
	expiry *fakeExpiry
	now    time.Time
}

func newHarness(t *testing.T, transactional bool) *harness {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusEvent{},
		&models.Payment{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	stock, err := ledger.NewService(ledger.NewRepository(), logg)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	h := &harness{
		conn:   conn,
		expiry: &fakeExpiry{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		DB:     db.NewWithConn(conn, db.Options{Transactions: transactional}, logg),
		Ledger: stock,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Expiry: h.expiry,
		Logger: logg,
		Now:    func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

// seedPendingOrder creates a product holding `reserved` units for a new pending order of qty units.
func (h *harness) seedPendingOrder(t *testing.T, available, reserved, qty int) (*models.Order, uuid.UUID) {
	t.Helper()
	product := models.Product{
		Name:           "Widget",
		Price:          decimal.RequireFromString("10.00"),
		AvailableStock: available,
		ReservedStock:  reserved,
	}
	if err := h.conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return h.seedOrderFor(t, uuid.New(), product.ID, qty, h.now), product.ID
}

func (h *harness) seedOrderFor(t *testing.T, userID, productID uuid.UUID, qty int, createdAt time.Time) *models.Order {
	t.Helper()
	order := models.Order{
		UserID:      userID,
		TotalAmount: decimal.NewFromInt(int64(10 * qty)),
		Currency:    "INR",
		Status:      enums.OrderStatusPendingPayment,
		ExpiresAt:   createdAt.Add(15 * time.Minute),
		CreatedAt:   createdAt,
		Items: []models.OrderItem{
			{ProductID: productID, Name: "Widget", Price: decimal.RequireFromString("10.00"), Quantity: qty},
		},
		History: []models.OrderStatusEvent{
			{Seq: 1, Status: enums.OrderStatusPendingPayment, By: &userID, At: createdAt},
		},
	}
	if err := h.conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return &order
}

func (h *harness) counters(t *testing.T, productID uuid.UUID) (int, int) {
	t.Helper()
	var product models.Product
	if err := h.conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.AvailableStock, product.ReservedStock
}

func (h *harness) status(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	if err := h.conn.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order.Status
}

func (h *harness) payments(t *testing.T, orderID uuid.UUID) []models.Payment {
	t.Helper()
	var rows []models.Payment
	if err := h.conn.Where("order_id = ?", orderID).Find(&rows).Error; err != nil {
		t.Fatalf("load payments: %v", err)
	}
	return rows
}

func (h *harness) history(t *testing.T, orderID uuid.UUID) []models.OrderStatusEvent {
	t.Helper()
	var rows []models.OrderStatusEvent
	if err := h.conn.Where("order_id = ?", orderID).Order("seq ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	return rows
}

func (h *harness) outboxTypes(t *testing.T, orderID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	if err := h.conn.Where("aggregate_id = ?", orderID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func mockSettlement() Settlement {
	return Settlement{Provider: enums.PaymentProviderMock, TransactionID: "txn_1"}
}
