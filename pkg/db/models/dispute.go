package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// Dispute is a buyer claim against an order. Resolution is terminal.
type Dispute struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	OpenedBy        uuid.UUID           `gorm:"column:opened_by;type:uuid;not null"`
	Reason          enums.DisputeReason `gorm:"column:reason;not null"`
	Description     string              `gorm:"column:description;not null"`
	Status          enums.DisputeStatus `gorm:"column:status;not null;default:'open';index"`
	RefundAmount    decimal.NullDecimal `gorm:"column:refund_amount;type:numeric(14,2)"`
	ResolutionNotes string              `gorm:"column:resolution_notes;not null;default:''"`
	ResolvedBy      *uuid.UUID          `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt      *time.Time          `gorm:"column:resolved_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
