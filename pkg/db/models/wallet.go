package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the per-user balance snapshot. Only the wallet service writes it,
// always together with a LedgerEntry.
type Wallet struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallets_user_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0"`
	Pending   decimal.Decimal `gorm:"column:pending;type:numeric(14,2);not null;default:0"`
	Currency  string          `gorm:"column:currency;not null;default:'ZAR'"`
	Version   int64           `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
