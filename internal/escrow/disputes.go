package escrow

import (
	"context"
	"strings"

	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var activeDisputes = []enums.DisputeStatus{enums.DisputeOpen, enums.DisputeUnderReview}

// OpenDispute lets the buyer contest an order whose funds are still held.
// An order has at most one active dispute.
func (e *engine) OpenDispute(ctx context.Context, buyerID, orderID uuid.UUID, input DisputeInput) (*models.Dispute, error) {
	if !input.Reason.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported dispute reason %q", input.Reason)
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}

	var dispute *models.Dispute
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := e.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can dispute this order")
		}
		if !order.Status.HoldsFunds() {
			return stateConflict("only paid or shipped orders can be disputed", order.Status)
		}
		active, err := e.hasActiveDispute(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if active {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active dispute")
		}

		dispute = &models.Dispute{
			ID:          uuid.New(),
			OrderID:     order.ID,
			OpenedBy:    buyerID,
			Reason:      input.Reason,
			Description: description,
			Status:      enums.DisputeOpen,
		}
		if err := e.orders.WithTx(tx).CreateDispute(ctx, dispute); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active dispute")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create dispute")
		}
		if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         outbox.Actor(buyerID, enums.RoleBuyer),
			Data: payloads.DisputeOpenedEvent{
				DisputeID: dispute.ID,
				OrderID:   order.ID,
				SellerID:  order.SellerID,
				BuyerID:   order.BuyerID,
				Reason:    dispute.Reason,
			},
		}); err != nil {
			return err
		}
		e.logg.Info(e.logg.WithField(e.orderContext(ctx, order), "dispute_id", dispute.ID.String()), "dispute opened")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

func (e *engine) ReviewDispute(ctx context.Context, adminID, disputeID uuid.UUID) (*models.Dispute, error) {
	var dispute *models.Dispute
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		dispute, err = e.lockDispute(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if dispute.Status != enums.DisputeOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only open disputes can be taken under review").
				WithDetails(map[string]any{"status": dispute.Status})
		}
		if err := e.updateDispute(ctx, tx, dispute, map[string]any{"status": enums.DisputeUnderReview}); err != nil {
			return err
		}
		dispute.Status = enums.DisputeUnderReview
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{"dispute_id": dispute.ID.String(), "admin_id": adminID.String()}), "dispute under review")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute applies exactly one resolution. The dispute's terminal status
// is written in the same transaction as the money movement, so a second
// attempt finds it resolved.
func (e *engine) ResolveDispute(ctx context.Context, adminID, disputeID uuid.UUID, input ResolveInput) (*Resolution, error) {
	if !input.Action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported resolution %q", input.Action)
	}
	if input.RefundAmount != nil && input.Action != enums.ResolutionRefund {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount only applies to refunds")
	}

	var result *Resolution
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		dispute, err := e.lockDispute(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if !dispute.Status.IsActive() {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "dispute already resolved").
				WithDetails(map[string]any{"status": dispute.Status})
		}
		order, err := e.lockOrder(ctx, tx, dispute.OrderID)
		if err != nil {
			return err
		}
		result = &Resolution{Dispute: dispute, Order: order}

		resolvedAt := e.now().UTC()
		updates := map[string]any{
			"resolved_by":      adminID,
			"resolved_at":      resolvedAt,
			"resolution_notes": strings.TrimSpace(input.Notes),
		}

		switch input.Action {
		case enums.ResolutionClose:
			updates["status"] = enums.DisputeClosed
		case enums.ResolutionRelease:
			if !order.Status.HoldsFunds() {
				return stateConflict("order funds are no longer held", order.Status)
			}
			settlement, err := e.settle(ctx, tx, order, triggerDispute, "DISPUTE-"+dispute.ID.String()+"-RELEASE")
			if err != nil {
				return err
			}
			result.Settlement = settlement
			updates["status"] = enums.DisputeResolvedRelease
		case enums.ResolutionRefund:
			if !order.Status.HoldsFunds() {
				return stateConflict("order funds are no longer held", order.Status)
			}
			refund, remainder, err := e.refund(ctx, tx, dispute, order, input.RefundAmount)
			if err != nil {
				return err
			}
			result.RefundAmount = &refund
			if remainder.IsPositive() {
				result.Remainder = &remainder
			}
			updates["status"] = enums.DisputeResolvedRefund
			updates["refund_amount"] = refund
		}

		if err := e.updateDispute(ctx, tx, dispute, updates); err != nil {
			return err
		}
		dispute.Status = updates["status"].(enums.DisputeStatus)
		dispute.ResolvedBy = &adminID
		dispute.ResolvedAt = &resolvedAt
		if result.RefundAmount != nil {
			dispute.RefundAmount = decimal.NewNullDecimal(*result.RefundAmount)
		}

		event := payloads.DisputeResolvedEvent{
			DisputeID:  dispute.ID,
			OrderID:    order.ID,
			Status:     dispute.Status,
			ResolvedBy: adminID,
		}
		if result.RefundAmount != nil {
			event.RefundAmount = money.Format(*result.RefundAmount)
		}
		if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         outbox.Actor(adminID, enums.RoleAdmin),
			Data:          event,
		}); err != nil {
			return err
		}
		e.logg.Info(e.logg.WithFields(e.orderContext(ctx, order), map[string]any{
			"dispute_id":     dispute.ID.String(),
			"dispute_status": string(dispute.Status),
		}), "dispute resolved")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Settlement != nil {
		e.metrics.IncSettlement(result.Settlement.Trigger)
	}
	return result, nil
}

// refund releases the whole hold, credits the refund back to the buyer and
// settles any remainder of a partial refund to the seller without a fee.
func (e *engine) refund(ctx context.Context, tx *gorm.DB, dispute *models.Dispute, order *models.Order, requested *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	amount := order.TotalAmount
	if requested != nil {
		amount = *requested
	}
	if err := money.RequirePositive(amount); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if amount.GreaterThan(order.TotalAmount) {
		return decimal.Zero, decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidAmount, "refund exceeds order total").
			WithDetails(map[string]any{"total_amount": money.Format(order.TotalAmount)})
	}
	remainder := order.TotalAmount.Sub(amount)

	if _, err := e.wallets.LockUsers(ctx, tx, order.BuyerID, order.SellerID); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	reference := "DISPUTE-" + dispute.ID.String() + "-REFUND"
	disputeKey := dispute.ID.String()

	if _, err := e.wallets.Release(ctx, tx, wallet.Posting{
		UserID:         order.BuyerID,
		Amount:         order.TotalAmount,
		Source:         SourceEscrowRelease,
		Reference:      reference,
		Description:    "Escrow released for refund",
		IdempotencyKey: "dispute-hold-" + disputeKey,
	}); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if _, err := e.wallets.Credit(ctx, tx, wallet.Posting{
		UserID:         order.BuyerID,
		Amount:         amount,
		Source:         SourceDisputeRefund,
		Reference:      reference,
		Description:    "Dispute refund",
		IdempotencyKey: "dispute-refund-" + disputeKey,
	}); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if remainder.IsPositive() {
		if _, err := e.wallets.Credit(ctx, tx, wallet.Posting{
			UserID:         order.SellerID,
			Amount:         remainder,
			Source:         SourceDisputeRelease,
			Reference:      reference,
			Description:    "Remainder of partially refunded order",
			IdempotencyKey: "dispute-remainder-" + disputeKey,
		}); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}

	refundedAt := e.now().UTC()
	updates := map[string]any{
		"status":      enums.OrderStatusRefunded,
		"refunded_at": refundedAt,
	}
	if remainder.IsPositive() {
		updates["vendor_amount"] = remainder
		updates["platform_fee"] = decimal.Zero
	}
	if err := e.transitionOrder(ctx, tx, order, holdingStatuses, updates); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	order.Status = enums.OrderStatusRefunded
	order.RefundedAt = &refundedAt

	if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderRefundedEvent{
			OrderID:      order.ID,
			BuyerID:      order.BuyerID,
			RefundAmount: money.Format(amount),
			RefundedAt:   refundedAt,
		},
	}); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return amount, remainder, nil
}

func (e *engine) lockDispute(ctx context.Context, tx *gorm.DB, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := e.orders.WithTx(tx).LockDispute(ctx, disputeID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispute")
	}
	return dispute, nil
}

func (e *engine) updateDispute(ctx context.Context, tx *gorm.DB, dispute *models.Dispute, updates map[string]any) error {
	updates["updated_at"] = e.now().UTC()
	ok, err := e.orders.WithTx(tx).UpdateDispute(ctx, dispute.ID, activeDisputes, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update dispute")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute changed concurrently")
	}
	return nil
}
