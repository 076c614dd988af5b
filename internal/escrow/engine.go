// Package escrow drives orders from checkout to settlement. Buyer funds are
// held in the buyer's pending balance while an order is PAID or SHIPPED and
// leave it exactly once: to the seller on delivery, or back to the buyer on a
// refund.
package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/vendorlution-backend/internal/cart"
	"github.com/angelmondragon/vendorlution-backend/internal/catalog"
	"github.com/angelmondragon/vendorlution-backend/internal/orders"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger sources written by the engine.
const (
	SourceOrderPayment   = "order_payment"
	SourceDeposit        = "deposit"
	SourceOrderPayout    = "order_payout"
	SourceAutoRelease    = "auto_release"
	SourceDisputeRefund  = "dispute_refund"
	SourceDisputeRelease = "dispute_release"
	SourceEscrowRelease  = "escrow_release"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentStarter interface {
	StartOrderPayment(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider, orderID uuid.UUID) (*payments.StartResult, error)
}

type settlementMetrics interface {
	IncSettlement(trigger string)
}

type noopMetrics struct{}

func (noopMetrics) IncSettlement(string) {}

// Engine is the escrow and settlement surface.
type Engine interface {
	Checkout(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) (*CheckoutResult, error)
	HoldForOrder(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) (*models.Order, error)

	CreateShipment(ctx context.Context, sellerID, orderID uuid.UUID, input ShipmentInput) (*models.Shipment, error)
	MarkDelivered(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Shipment, error)
	ConfirmDelivery(ctx context.Context, buyerID, orderID uuid.UUID) (*Settlement, error)

	OpenDispute(ctx context.Context, buyerID, orderID uuid.UUID, input DisputeInput) (*models.Dispute, error)
	ReviewDispute(ctx context.Context, adminID, disputeID uuid.UUID) (*models.Dispute, error)
	ResolveDispute(ctx context.Context, adminID, disputeID uuid.UUID, input ResolveInput) (*Resolution, error)

	AutoRelease(ctx context.Context, opts AutoReleaseOptions) (*AutoReleaseReport, error)
}

type CheckoutInput struct {
	DeliveryMethod  enums.DeliveryMethod
	PaymentMethod   enums.PaymentMethod
	AddressSnapshot json.RawMessage
	Notes           string
}

// CheckoutResult carries the created order and, for provider payments, where
// the buyer completes the payment.
type CheckoutResult struct {
	Order   *models.Order
	Payment *payments.StartResult
}

type ShipmentInput struct {
	Method         enums.DeliveryMethod
	TrackingNumber string
	Courier        string
}

type DisputeInput struct {
	Reason      enums.DisputeReason
	Description string
}

type ResolveInput struct {
	Action       enums.DisputeResolution
	RefundAmount *decimal.Decimal
	Notes        string
}

// Settlement is the money outcome of releasing an order to its seller.
type Settlement struct {
	OrderID      uuid.UUID       `json:"order_id"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	Trigger      string          `json:"trigger"`
	Replayed     bool            `json:"replayed"`
}

// Resolution is the outcome of resolving a dispute.
type Resolution struct {
	Dispute      *models.Dispute  `json:"dispute"`
	Order        *models.Order    `json:"order"`
	Settlement   *Settlement      `json:"settlement,omitempty"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	Remainder    *decimal.Decimal `json:"remainder,omitempty"`
}

type EngineParams struct {
	DB       txRunner
	Orders   orders.Repository
	Catalog  catalog.Repository
	Cart     cart.Repository
	Wallets  wallet.Service
	Payments paymentStarter
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Metrics  settlementMetrics
	Config   config.EscrowConfig
	Now      func() time.Time
}

type engine struct {
	db       txRunner
	orders   orders.Repository
	catalog  catalog.Repository
	cart     cart.Repository
	wallets  wallet.Service
	payments paymentStarter
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  settlementMetrics
	cfg      config.EscrowConfig
	now      func() time.Time
}

// NewEngine wires the escrow engine. Payments may be nil when only wallet
// checkout is offered.
func NewEngine(params EngineParams) (Engine, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if !params.Config.PlatformFeeRate.IsPositive() || params.Config.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("platform fee rate must be in (0, 1)")
	}
	if params.Config.AutoReleaseDays <= 0 {
		return nil, fmt.Errorf("auto release days must be positive")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &engine{
		db:       params.DB,
		orders:   params.Orders,
		catalog:  params.Catalog,
		cart:     params.Cart,
		wallets:  params.Wallets,
		payments: params.Payments,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  metrics,
		cfg:      params.Config,
		now:      now,
	}, nil
}

func (e *engine) lockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := e.orders.WithTx(tx).LockOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// transitionOrder writes updates guarded by the expected current statuses.
// Losing the race surfaces as a state conflict.
func (e *engine) transitionOrder(ctx context.Context, tx *gorm.DB, order *models.Order, from []enums.OrderStatus, updates map[string]any) error {
	updates["updated_at"] = e.now().UTC()
	ok, err := e.orders.WithTx(tx).UpdateOrder(ctx, order.ID, from, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
	}
	if !ok {
		return stateConflict("order changed concurrently", order.Status)
	}
	return nil
}

func (e *engine) orderContext(ctx context.Context, order *models.Order) context.Context {
	return e.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_status": string(order.Status),
		"buyer_id":     order.BuyerID.String(),
		"seller_id":    order.SellerID.String(),
	})
}

func stateConflict(message string, status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"status": status})
}

func orderReference(orderID uuid.UUID) string {
	return "ORDER-" + orderID.String()
}

func productIDs(order *models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
