package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// VoucherRedemption is a submitted voucher awaiting manual review.
type VoucherRedemption struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	IntentID   uuid.UUID           `gorm:"column:intent_id;type:uuid;not null"`
	Issuer     string              `gorm:"column:issuer;not null;uniqueIndex:ux_voucher_redemptions_issuer_code,priority:1"`
	Code       string              `gorm:"column:code;not null;uniqueIndex:ux_voucher_redemptions_issuer_code,priority:2"`
	Amount     decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	Status     enums.VoucherStatus `gorm:"column:status;not null;default:'pending'"`
	ReviewedBy *uuid.UUID          `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt *time.Time          `gorm:"column:reviewed_at"`
	Notes      string              `gorm:"column:notes;not null;default:''"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
