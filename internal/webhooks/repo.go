package webhooks

import (
	"context"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogRepository persists the webhook audit trail.
type LogRepository interface {
	Create(ctx context.Context, log *models.WebhookLog) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookLog, error)
}

type logRepository struct {
	db *gorm.DB
}

func NewLogRepository(conn *gorm.DB) LogRepository {
	return &logRepository{db: conn}
}

func (r *logRepository) Create(ctx context.Context, log *models.WebhookLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *logRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.WebhookLog{}).Where("id = ?", id).Updates(updates).Error
}

func (r *logRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookLog, error) {
	var log models.WebhookLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}
