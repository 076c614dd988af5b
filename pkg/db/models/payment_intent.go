package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/vendorlution-backend/pkg/db/types"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// PaymentIntent tracks one attempt to move money through an external gateway.
// Its ID is the transaction reference handed to the provider.
type PaymentIntent struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	WalletID          uuid.UUID              `gorm:"column:wallet_id;type:uuid;not null"`
	Provider          enums.PaymentProvider  `gorm:"column:provider;not null"`
	Kind              enums.IntentKind       `gorm:"column:kind;not null"`
	Amount            decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency          string                 `gorm:"column:currency;not null;default:'ZAR'"`
	Status            enums.IntentStatus     `gorm:"column:status;not null;default:'created';index"`
	ProviderReference *string                `gorm:"column:provider_reference"`
	Metadata          dbtypes.IntentMetadata `gorm:"column:metadata;type:jsonb;not null"`
	FailureReason     *string                `gorm:"column:failure_reason"`
	CompletedAt       *time.Time             `gorm:"column:completed_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
