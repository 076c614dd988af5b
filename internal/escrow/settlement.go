package escrow

import (
	"context"

	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// trigger names why an order is being settled.
type trigger struct {
	name        string
	source      string
	description string
}

var (
	triggerConfirm = trigger{name: "confirm_delivery", source: SourceOrderPayout, description: "Order payout"}
	triggerAuto    = trigger{name: "auto_release", source: SourceAutoRelease, description: "Order payout (auto release)"}
	triggerDispute = trigger{name: "dispute_release", source: SourceDisputeRelease, description: "Order payout (dispute released)"}
)

var holdingStatuses = []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusShipped}

// ConfirmDelivery is the buyer accepting the goods.
func (e *engine) ConfirmDelivery(ctx context.Context, buyerID, orderID uuid.UUID) (*Settlement, error) {
	var settlement *Settlement
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := e.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
		}
		if !order.Status.HoldsFunds() {
			return stateConflict("order is not awaiting delivery", order.Status)
		}
		active, err := e.hasActiveDispute(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has an active dispute")
		}
		settlement, err = e.settle(ctx, tx, order, triggerConfirm, orderReference(order.ID)+"-RELEASE")
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.IncSettlement(settlement.Trigger)
	return settlement, nil
}

// settle is the single release path shared by buyer confirmation, the
// auto-release sweep and dispute release. The caller holds the order lock.
// The seller credit is keyed by order id in every path, so at most one
// payout exists per order whichever path wins.
func (e *engine) settle(ctx context.Context, tx *gorm.DB, order *models.Order, t trigger, reference string) (*Settlement, error) {
	if _, err := e.wallets.LockUsers(ctx, tx, order.BuyerID, order.SellerID); err != nil {
		return nil, err
	}

	fee, vendor := money.Split(order.TotalAmount, e.cfg.PlatformFeeRate)
	key := "order-release-" + order.ID.String()

	if _, err := e.wallets.Release(ctx, tx, wallet.Posting{
		UserID:         order.BuyerID,
		Amount:         order.TotalAmount,
		Source:         SourceEscrowRelease,
		Reference:      reference,
		Description:    "Escrow released for order",
		IdempotencyKey: key,
	}); err != nil {
		return nil, err
	}
	credit, err := e.wallets.Credit(ctx, tx, wallet.Posting{
		UserID:         order.SellerID,
		Amount:         vendor,
		Source:         t.source,
		Reference:      reference,
		Description:    t.description,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}

	releasedAt := e.now().UTC()
	if err := e.transitionOrder(ctx, tx, order, holdingStatuses, map[string]any{
		"status":        enums.OrderStatusDelivered,
		"platform_fee":  fee,
		"vendor_amount": vendor,
		"released_at":   releasedAt,
	}); err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusDelivered
	order.ReleasedAt = &releasedAt

	ids := productIDs(order)
	if err := e.catalog.WithTx(tx).MarkSold(ctx, ids, releasedAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark products sold")
	}
	if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductSold,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.ProductSoldEvent{
			OrderID:      order.ID,
			SellerID:     order.SellerID,
			ProductIDs:   ids,
			VendorAmount: money.Format(vendor),
			PlatformFee:  money.Format(fee),
			Trigger:      t.name,
		},
	}); err != nil {
		return nil, err
	}

	e.logg.Info(e.logg.WithFields(e.orderContext(ctx, order), map[string]any{
		"trigger":       t.name,
		"vendor_amount": money.Format(vendor),
		"platform_fee":  money.Format(fee),
	}), "order settled")

	return &Settlement{
		OrderID:      order.ID,
		VendorAmount: vendor,
		PlatformFee:  fee,
		Trigger:      t.name,
		Replayed:     credit.Replayed,
	}, nil
}

func (e *engine) hasActiveDispute(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	_, err := e.orders.WithTx(tx).FindActiveDispute(ctx, orderID)
	if err == nil {
		return true, nil
	}
	if db.IsNotFound(err) {
		return false, nil
	}
	return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check disputes")
}
