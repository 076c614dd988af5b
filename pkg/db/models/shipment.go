package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// Shipment is the single delivery record of an order. DeliveredAt starts the
// auto-release grace window.
type Shipment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_shipments_order_id"`
	Method         enums.DeliveryMethod `gorm:"column:method;not null"`
	TrackingNumber string               `gorm:"column:tracking_number;not null;default:''"`
	Courier        string               `gorm:"column:courier;not null;default:''"`
	Status         enums.ShipmentStatus `gorm:"column:status;not null;default:'pending'"`
	ShippedAt      *time.Time           `gorm:"column:shipped_at"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
