package vouchers

import (
	"context"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, redemption *models.VoucherRedemption) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.VoucherRedemption, error)
	Lock(ctx context.Context, id uuid.UUID) (*models.VoucherRedemption, error)
	ListByStatus(ctx context.Context, status enums.VoucherStatus, limit int) ([]models.VoucherRedemption, error)
	Review(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, redemption *models.VoucherRedemption) error {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VoucherRedemption, error) {
	var redemption models.VoucherRedemption
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&redemption).Error; err != nil {
		return nil, err
	}
	return &redemption, nil
}

func (r *repository) Lock(ctx context.Context, id uuid.UUID) (*models.VoucherRedemption, error) {
	var redemption models.VoucherRedemption
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&redemption).Error; err != nil {
		return nil, err
	}
	return &redemption, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.VoucherStatus, limit int) ([]models.VoucherRedemption, error) {
	query := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.VoucherRedemption
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Review applies a decision to a redemption that is still pending.
func (r *repository) Review(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VoucherRedemption{}).
		Where("id = ? AND status = ?", id, enums.VoucherPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
