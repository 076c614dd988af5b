package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order together with its items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder applies updates only while the order is in one of from.
func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListReleaseCandidates returns held orders whose shipment was marked
// delivered before cutoff. Orders without a delivered shipment never qualify.
func (r *repository) ListReleaseCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	cutoff = cutoff.UTC()
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("orders.*").
		Joins("JOIN shipments ON shipments.order_id = orders.id").
		Where("orders.status IN ?", []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusShipped}).
		Where("shipments.status = ?", enums.ShipmentDelivered).
		Where("shipments.delivered_at IS NOT NULL AND shipments.delivered_at < ?", cutoff).
		Order("orders.created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) FindShipmentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&shipment).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) UpdateShipment(ctx context.Context, shipmentID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Shipment{}).Where("id = ?", shipmentID).Updates(updates).Error
}

func (r *repository) CreateDispute(ctx context.Context, dispute *models.Dispute) error {
	if dispute.ID == uuid.Nil {
		dispute.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *repository) LockDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", disputeID).First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) FindActiveDispute(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, activeDisputeStatuses).
		Order("created_at DESC").
		First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) UpdateDispute(ctx context.Context, disputeID uuid.UUID, from []enums.DisputeStatus, updates map[string]any) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Dispute{}).Where("id = ?", disputeID)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
