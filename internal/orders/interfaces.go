package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders, shipments and disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error)
	ListReleaseCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	FindShipmentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error)
	UpdateShipment(ctx context.Context, shipmentID uuid.UUID, updates map[string]any) error

	CreateDispute(ctx context.Context, dispute *models.Dispute) error
	LockDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error)
	FindActiveDispute(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	UpdateDispute(ctx context.Context, disputeID uuid.UUID, from []enums.DisputeStatus, updates map[string]any) (bool, error)
}

var activeDisputeStatuses = []enums.DisputeStatus{enums.DisputeOpen, enums.DisputeUnderReview}
