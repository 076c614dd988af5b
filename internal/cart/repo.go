package cart

import (
	"context"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists buyer cart lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, item *models.CartItem) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	Remove(ctx context.Context, buyerID, productID uuid.UUID) error
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert writes the line, replacing the quantity when the buyer already has
// the product in the cart.
func (r *repository) Upsert(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(item).Error
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Remove(ctx context.Context, buyerID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) Clear(ctx context.Context, buyerID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("buyer_id = ?", buyerID).Delete(&models.CartItem{}).Error
}
