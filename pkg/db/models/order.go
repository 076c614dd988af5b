package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// Order is a single-seller purchase. Fee columns are snapshotted at checkout;
// PlatformFee and VendorAmount are filled on settlement.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID         uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID        uuid.UUID            `gorm:"column:seller_id;type:uuid;not null;index"`
	Status          enums.OrderStatus    `gorm:"column:status;not null;default:'pending';index"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;not null"`
	DeliveryMethod  enums.DeliveryMethod `gorm:"column:delivery_method;not null"`
	Subtotal        decimal.Decimal      `gorm:"column:subtotal;type:numeric(14,2);not null"`
	ShippingFee     decimal.Decimal      `gorm:"column:shipping_fee;type:numeric(14,2);not null"`
	ProtectionFee   decimal.Decimal      `gorm:"column:protection_fee;type:numeric(14,2);not null"`
	TotalAmount     decimal.Decimal      `gorm:"column:total_amount;type:numeric(14,2);not null"`
	PlatformFee     decimal.NullDecimal  `gorm:"column:platform_fee;type:numeric(14,2)"`
	VendorAmount    decimal.NullDecimal  `gorm:"column:vendor_amount;type:numeric(14,2)"`
	AddressSnapshot json.RawMessage      `gorm:"column:address_snapshot;type:jsonb"`
	Notes           string               `gorm:"column:notes;not null;default:''"`
	PaymentIntentID *uuid.UUID           `gorm:"column:payment_intent_id;type:uuid"`
	PaidAt          *time.Time           `gorm:"column:paid_at"`
	ReleasedAt      *time.Time           `gorm:"column:released_at"`
	RefundedAt      *time.Time           `gorm:"column:refunded_at"`
	Items           []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots the product price at checkout.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity      int             `gorm:"column:quantity;not null"`
	PriceSnapshot decimal.Decimal `gorm:"column:price_snapshot;type:numeric(14,2);not null"`
	LineTotal     decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
