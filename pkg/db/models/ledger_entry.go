package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// LedgerEntry is an append-only balance movement. Sequence orders entries
// within a wallet and matches the wallet version after the write.
type LedgerEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	WalletID       uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:ux_ledger_entries_wallet_seq,priority:1;uniqueIndex:ux_ledger_entries_wallet_idem,priority:1"`
	Sequence       int64                 `gorm:"column:sequence;not null;uniqueIndex:ux_ledger_entries_wallet_seq,priority:2"`
	Type           enums.LedgerEntryType `gorm:"column:type;not null"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	BalanceAfter   decimal.Decimal       `gorm:"column:balance_after;type:numeric(14,2);not null"`
	PendingAfter   decimal.Decimal       `gorm:"column:pending_after;type:numeric(14,2);not null"`
	Reference      string                `gorm:"column:reference;not null;default:''"`
	Description    string                `gorm:"column:description;not null;default:''"`
	Source         string                `gorm:"column:source;not null;default:''"`
	Status         string                `gorm:"column:status;not null;default:'posted'"`
	IdempotencyKey *string               `gorm:"column:idempotency_key;uniqueIndex:ux_ledger_entries_wallet_idem,priority:2"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
