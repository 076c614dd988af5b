package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// WebhookLog keeps every inbound provider call verbatim, parsed or not.
type WebhookLog struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Provider             string               `gorm:"column:provider;not null"`
	Path                 string               `gorm:"column:path;not null;default:''"`
	Headers              json.RawMessage      `gorm:"column:headers;type:jsonb"`
	RawBody              []byte               `gorm:"column:raw_body;type:bytea"`
	Payload              json.RawMessage      `gorm:"column:payload;type:jsonb"`
	TransactionReference *string              `gorm:"column:transaction_reference;index"`
	ProviderStatus       *string              `gorm:"column:provider_status"`
	Outcome              enums.WebhookOutcome `gorm:"column:outcome;not null;default:'received'"`
	Notes                string               `gorm:"column:notes;not null;default:''"`
	StatusCode           int                  `gorm:"column:status_code;not null"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt          *time.Time           `gorm:"column:processed_at"`
}
