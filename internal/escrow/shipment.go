package escrow

import (
	"context"
	"strings"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateShipment records dispatch by the seller and moves the order to
// SHIPPED. Funds stay held.
func (e *engine) CreateShipment(ctx context.Context, sellerID, orderID uuid.UUID, input ShipmentInput) (*models.Shipment, error) {
	var shipment *models.Shipment
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := e.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can ship this order")
		}
		if order.Status != enums.OrderStatusPaid {
			return stateConflict("only paid orders can be shipped", order.Status)
		}
		repo := e.orders.WithTx(tx)
		if _, err := repo.FindShipmentByOrder(ctx, order.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has a shipment")
		} else if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipment")
		}

		method := input.Method
		if method == "" {
			method = order.DeliveryMethod
		}
		if !method.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unsupported delivery method")
		}

		shippedAt := e.now().UTC()
		shipment = &models.Shipment{
			ID:             uuid.New(),
			OrderID:        order.ID,
			Method:         method,
			TrackingNumber: strings.TrimSpace(input.TrackingNumber),
			Courier:        strings.TrimSpace(input.Courier),
			Status:         enums.ShipmentInTransit,
			ShippedAt:      &shippedAt,
		}
		if err := repo.CreateShipment(ctx, shipment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has a shipment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create shipment")
		}
		if err := e.transitionOrder(ctx, tx, order, []enums.OrderStatus{enums.OrderStatusPaid}, map[string]any{
			"status": enums.OrderStatusShipped,
		}); err != nil {
			return err
		}
		order.Status = enums.OrderStatusShipped
		e.logg.Info(e.logg.WithField(e.orderContext(ctx, order), "shipment_id", shipment.ID.String()), "order shipped")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

// MarkDelivered stamps delivery on the shipment. The order stays SHIPPED;
// DeliveredAt opens the auto-release grace window.
func (e *engine) MarkDelivered(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Shipment, error) {
	var shipment *models.Shipment
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := e.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can update this shipment")
		}
		if order.Status != enums.OrderStatusShipped {
			return stateConflict("order has not been shipped", order.Status)
		}
		repo := e.orders.WithTx(tx)
		shipment, err = repo.FindShipmentByOrder(ctx, order.ID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipment")
		}
		if shipment.Status != enums.ShipmentInTransit {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is not in transit").
				WithDetails(map[string]any{"status": shipment.Status})
		}

		deliveredAt := e.now().UTC()
		if err := repo.UpdateShipment(ctx, shipment.ID, map[string]any{
			"status":       enums.ShipmentDelivered,
			"delivered_at": deliveredAt,
			"updated_at":   deliveredAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update shipment")
		}
		shipment.Status = enums.ShipmentDelivered
		shipment.DeliveredAt = &deliveredAt
		e.logg.Info(e.logg.WithField(e.orderContext(ctx, order), "shipment_id", shipment.ID.String()), "shipment delivered")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}
