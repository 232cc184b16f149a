package cart

import (
	"context"
	"errors"

	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes persistence operations for carts and their items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUser loads the user's cart with items in insertion order and their products.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// EnsureCart returns the user's cart, creating it on first use.
func (r *Repository) EnsureCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(cart).Error; err != nil {
		return nil, err
	}

	var stored models.Cart
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpsertItem sets the quantity of a product in the cart, appending it when new.
func (r *Repository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int) error {
	db := r.db.WithContext(ctx)

	var existing models.CartItem
	err := db.Where("cart_id = ? AND product_id = ?", cartID, productID).First(&existing).Error
	switch {
	case err == nil:
		return db.Model(&models.CartItem{}).
			Where("id = ?", existing.ID).
			Update("quantity", qty).Error
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	var last struct {
		Position int
	}
	if err := db.Model(&models.CartItem{}).
		Select("COALESCE(MAX(position), 0) AS position").
		Where("cart_id = ?", cartID).
		Scan(&last).Error; err != nil {
		return err
	}
	return db.Create(&models.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  qty,
		Position:  last.Position + 1,
	}).Error
}

// DeleteItem removes a product line; it reports false when the line was absent.
func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClearItems empties the cart while keeping the cart row.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

// RestoreItems re-inserts previously cleared items with their original ids.
func (r *Repository) RestoreItems(ctx context.Context, items []models.CartItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.CartItem, len(items))
	for i, item := range items {
		item.Product = nil
		rows[i] = item
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}
