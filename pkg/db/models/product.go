package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the slice of the catalog listing the escrow flow reads and marks sold.
type Product struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID  uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	Title     string          `gorm:"column:title;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null"`
	Stock     int             `gorm:"column:stock;not null"`
	IsActive  bool            `gorm:"column:is_active;not null"`
	IsSold    bool            `gorm:"column:is_sold;not null;default:false"`
	SoldAt    *time.Time      `gorm:"column:sold_at"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
