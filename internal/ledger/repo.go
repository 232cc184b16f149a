package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository issues the conditional counter updates behind every ledger operation.
// Each method runs against the handle it is given so callers control the unit of work.
type Repository interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Unreserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	ReleaseClamped(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Uncommit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	TakeAvailable(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Counters(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Counters, error)
}

// Counters is a point-in-time view of a product's stock.
type Counters struct {
	ProductID uuid.UUID
	Available int
	Reserved  int
}

type repository struct {
	now func() time.Time
}

// NewRepository returns the gorm-backed ledger repository.
func NewRepository() Repository {
	return &repository{now: time.Now}
}

func (r *repository) products(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return tx.WithContext(ctx).Model(&models.Product{})
}

func (r *repository) apply(ctx context.Context, tx *gorm.DB, where string, args []any, updates map[string]any) (bool, error) {
	updates["updated_at"] = r.now().UTC()
	result := r.products(ctx, tx).Where(where, args...).UpdateColumns(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Reserve moves qty from available to reserved when enough is available.
func (r *repository) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	return r.apply(ctx, tx, "id = ? AND available_stock >= ?", []any{productID, qty}, map[string]any{
		"available_stock": gorm.Expr("available_stock - ?", qty),
		"reserved_stock":  gorm.Expr("reserved_stock + ?", qty),
	})
}

// Unreserve is the exact inverse of Reserve; it applies only when reserved covers qty.
func (r *repository) Unreserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	return r.apply(ctx, tx, "id = ? AND reserved_stock >= ?", []any{productID, qty}, map[string]any{
		"available_stock": gorm.Expr("available_stock + ?", qty),
		"reserved_stock":  gorm.Expr("reserved_stock - ?", qty),
	})
}

// ReleaseClamped returns qty to available and drains whatever is left in reserved.
func (r *repository) ReleaseClamped(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	_, err := r.apply(ctx, tx, "id = ?", []any{productID}, map[string]any{
		"available_stock": gorm.Expr("available_stock + ?", qty),
		"reserved_stock":  0,
	})
	return err
}

// Commit consumes qty of reserved stock as sold.
func (r *repository) Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	return r.apply(ctx, tx, "id = ? AND reserved_stock >= ?", []any{productID, qty}, map[string]any{
		"reserved_stock": gorm.Expr("reserved_stock - ?", qty),
	})
}

func (r *repository) Uncommit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	_, err := r.apply(ctx, tx, "id = ?", []any{productID}, map[string]any{
		"reserved_stock": gorm.Expr("reserved_stock + ?", qty),
	})
	return err
}

// Restock adds qty to available stock.
func (r *repository) Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	return r.apply(ctx, tx, "id = ?", []any{productID}, map[string]any{
		"available_stock": gorm.Expr("available_stock + ?", qty),
	})
}

// TakeAvailable removes qty from available stock without reserving it.
func (r *repository) TakeAvailable(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	return r.apply(ctx, tx, "id = ? AND available_stock >= ?", []any{productID, qty}, map[string]any{
		"available_stock": gorm.Expr("available_stock - ?", qty),
	})
}

func (r *repository) Counters(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Counters, error) {
	var product models.Product
	if err := tx.WithContext(ctx).
		Select("id", "available_stock", "reserved_stock").
		Where("id = ?", productID).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &Counters{
		ProductID: product.ID,
		Available: product.AvailableStock,
		Reserved:  product.ReservedStock,
	}, nil
}
