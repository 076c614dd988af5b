package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
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

// Checkout turns the buyer's cart into an order priced from current catalog
// data. Wallet payments hold the total immediately and the order is PAID on
// return; provider payments leave the order PENDING and return the redirect.
func (e *engine) Checkout(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if !input.DeliveryMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported delivery method %q", input.DeliveryMethod)
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.PaymentMethod)
	}
	provider, external := input.PaymentMethod.Provider()
	if external && e.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is not available")
	}
	address := input.AddressSnapshot
	if len(address) == 0 {
		address = json.RawMessage("{}")
	}

	var order *models.Order
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		items, err := e.cart.WithTx(tx).ListByBuyer(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		order, err = e.priceCart(ctx, tx, buyerID, items)
		if err != nil {
			return err
		}
		order.PaymentMethod = input.PaymentMethod
		order.DeliveryMethod = input.DeliveryMethod
		order.ShippingFee = e.shippingFee(input.DeliveryMethod)
		order.ProtectionFee = money.ProtectionFee(order.Subtotal, e.cfg.ProtectionRate, e.cfg.ProtectionFlat)
		order.TotalAmount = order.Subtotal.Add(order.ShippingFee).Add(order.ProtectionFee)
		order.AddressSnapshot = address
		order.Notes = strings.TrimSpace(input.Notes)
		order.Status = enums.OrderStatusPending
		if !external {
			paidAt := e.now().UTC()
			order.Status = enums.OrderStatusPaid
			order.PaidAt = &paidAt
		}

		if err := e.orders.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		if !external {
			if _, err := e.wallets.Hold(ctx, tx, wallet.Posting{
				UserID:         buyerID,
				Amount:         order.TotalAmount,
				Source:         SourceOrderPayment,
				Reference:      orderReference(order.ID),
				Description:    "Escrow hold for order",
				IdempotencyKey: "order-hold-" + order.ID.String(),
			}); err != nil {
				return err
			}
			if err := e.emitOrderPaid(ctx, tx, order); err != nil {
				return err
			}
		}

		if err := e.cart.WithTx(tx).Clear(ctx, buyerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := e.orderContext(ctx, order)
	e.logg.Info(e.logg.WithField(logCtx, "total_amount", money.Format(order.TotalAmount)), "order checked out")

	result := &CheckoutResult{Order: order}
	if external {
		payment, err := e.payments.StartOrderPayment(ctx, buyerID, provider, order.ID)
		if err != nil {
			e.logg.Warn(logCtx, "order created but payment could not be started")
			return result, err
		}
		result.Payment = payment
	}
	return result, nil
}

// priceCart locks the cart's products and builds the order lines from their
// current prices. Every line must come from the same seller.
func (e *engine) priceCart(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, items []models.CartItem) (*models.Order, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := e.catalog.WithTx(tx).LockByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock products")
	}

	order := &models.Order{ID: uuid.New(), BuyerID: buyerID, Subtotal: decimal.Zero}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if !product.IsActive || product.IsSold || product.Stock < item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available").
				WithDetails(map[string]any{"product_id": product.ID.String()})
		}
		if product.SellerID == buyerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own product")
		}
		if order.SellerID == uuid.Nil {
			order.SellerID = product.SellerID
		} else if order.SellerID != product.SellerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains products from more than one seller")
		}

		line := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		order.Subtotal = order.Subtotal.Add(line)
		order.Items = append(order.Items, models.OrderItem{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ProductID:     product.ID,
			Quantity:      item.Quantity,
			PriceSnapshot: product.Price,
			LineTotal:     line,
		})
	}
	return order, nil
}

func (e *engine) shippingFee(method enums.DeliveryMethod) decimal.Decimal {
	switch method {
	case enums.DeliveryPargo:
		return e.cfg.ShippingPargo
	case enums.DeliveryCourier:
		return e.cfg.ShippingCourier
	case enums.DeliveryPostnet:
		return e.cfg.ShippingPostnet
	default:
		return e.cfg.ShippingPickup
	}
}

// HoldForOrder applies a successful provider payment for an order inside the
// reconciler's transaction: the received funds are credited to the buyer and
// immediately held against the order. When the order is no longer awaiting
// payment the funds stay spendable in the buyer's wallet.
func (e *engine) HoldForOrder(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("HoldForOrder requires a transaction")
	}
	orderID, ok := intent.Metadata.Order()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent is not an order payment")
	}
	order, err := e.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if _, err := e.wallets.Credit(ctx, tx, wallet.Posting{
		UserID:         intent.UserID,
		WalletID:       intent.WalletID,
		Amount:         intent.Amount,
		Source:         SourceDeposit,
		Reference:      intent.ID.String(),
		Description:    fmt.Sprintf("%s payment received", intent.Provider),
		IdempotencyKey: "intent-" + intent.ID.String(),
	}); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithField(e.orderContext(ctx, order), "intent_id", intent.ID.String())
	if order.Status != enums.OrderStatusPending || order.BuyerID != intent.UserID || !intent.Amount.Equal(order.TotalAmount) {
		e.logg.Warn(logCtx, "order no longer awaiting this payment; funds left in buyer wallet")
		return order, nil
	}

	if _, err := e.wallets.Hold(ctx, tx, wallet.Posting{
		UserID:         order.BuyerID,
		WalletID:       intent.WalletID,
		Amount:         order.TotalAmount,
		Source:         SourceOrderPayment,
		Reference:      orderReference(order.ID),
		Description:    "Escrow hold for order",
		IdempotencyKey: "order-hold-" + order.ID.String(),
	}); err != nil {
		return nil, err
	}

	paidAt := e.now().UTC()
	intentID := intent.ID
	if err := e.transitionOrder(ctx, tx, order, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{
		"status":            enums.OrderStatusPaid,
		"paid_at":           paidAt,
		"payment_intent_id": intentID,
	}); err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &paidAt
	order.PaymentIntentID = &intentID

	if err := e.emitOrderPaid(ctx, tx, order); err != nil {
		return nil, err
	}
	e.logg.Info(logCtx, "order paid by provider")
	return order, nil
}

func (e *engine) emitOrderPaid(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	paidAt := e.now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.Actor(order.BuyerID, enums.RoleBuyer),
		Data: payloads.OrderPaidEvent{
			OrderID:         order.ID,
			BuyerID:         order.BuyerID,
			SellerID:        order.SellerID,
			PaymentMethod:   order.PaymentMethod,
			PaymentIntentID: order.PaymentIntentID,
			TotalAmount:     money.Format(order.TotalAmount),
			Status:          order.Status,
			PaidAt:          paidAt,
		},
	})
}
