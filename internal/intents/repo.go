package intents

import (
	"context"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByProviderReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.PaymentIntent, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.IntentStatus, updates map[string]any) (bool, error)
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds an intent repository to conn.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByProviderReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_reference = ?", provider, reference).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Transition applies updates only while the intent is still in one of from.
// It reports whether a row changed.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.IntentStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	var rows []models.PaymentIntent
	q := r.db.WithContext(ctx).
		Where("status IN ?", []enums.IntentStatus{enums.IntentStatusCreated, enums.IntentStatusPending}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
