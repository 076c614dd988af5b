package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// PayoutRequest is an off-platform withdrawal. The wallet is debited when the
// row is created; settlement with the bank happens elsewhere.
type PayoutRequest struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	WalletID      uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	BankHolder    string                `gorm:"column:bank_holder;not null"`
	BankName      string                `gorm:"column:bank_name;not null"`
	AccountNumber string                `gorm:"column:account_number;not null"`
	BranchCode    string                `gorm:"column:branch_code;not null;default:''"`
	AccountType   enums.BankAccountType `gorm:"column:account_type;not null;default:'cheque'"`
	Status        enums.PayoutStatus    `gorm:"column:status;not null;default:'pending';index"`
	Reference     string                `gorm:"column:reference;not null"`
	Notes         string                `gorm:"column:notes;not null;default:''"`
	ProcessedAt   *time.Time            `gorm:"column:processed_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
