package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// OrderPaidEvent is emitted once buyer funds are held for an order.
type OrderPaidEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	BuyerID         uuid.UUID           `json:"buyer_id"`
	SellerID        uuid.UUID           `json:"seller_id"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	PaymentIntentID *uuid.UUID          `json:"payment_intent_id,omitempty"`
	TotalAmount     string              `json:"total_amount"`
	Status          enums.OrderStatus   `json:"status"`
	PaidAt          time.Time           `json:"paid_at"`
}

// ProductSoldEvent asks downstream notification to tell the seller their items sold.
type ProductSoldEvent struct {
	OrderID      uuid.UUID   `json:"order_id"`
	SellerID     uuid.UUID   `json:"seller_id"`
	ProductIDs   []uuid.UUID `json:"product_ids"`
	VendorAmount string      `json:"vendor_amount"`
	PlatformFee  string      `json:"platform_fee"`
	Trigger      string      `json:"trigger"`
}

// OrderRefundedEvent reports money returned to the buyer.
type OrderRefundedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	RefundAmount string    `json:"refund_amount"`
	RefundedAt   time.Time `json:"refunded_at"`
}

// DisputeOpenedEvent notifies the seller and admins of a new dispute.
type DisputeOpenedEvent struct {
	DisputeID uuid.UUID           `json:"dispute_id"`
	OrderID   uuid.UUID           `json:"order_id"`
	SellerID  uuid.UUID           `json:"seller_id"`
	BuyerID   uuid.UUID           `json:"buyer_id"`
	Reason    enums.DisputeReason `json:"reason"`
}

// DisputeResolvedEvent carries the final decision on a dispute.
type DisputeResolvedEvent struct {
	DisputeID    uuid.UUID           `json:"dispute_id"`
	OrderID      uuid.UUID           `json:"order_id"`
	Status       enums.DisputeStatus `json:"status"`
	RefundAmount string              `json:"refund_amount,omitempty"`
	ResolvedBy   uuid.UUID           `json:"resolved_by"`
}

// PayoutRequestedEvent tells finance a withdrawal needs settling.
type PayoutRequestedEvent struct {
	PayoutID  uuid.UUID `json:"payout_id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    string    `json:"amount"`
	Reference string    `json:"reference"`
}

// WalletCreditedEvent reports an external top-up landing in a wallet.
type WalletCreditedEvent struct {
	WalletID  uuid.UUID             `json:"wallet_id"`
	UserID    uuid.UUID             `json:"user_id"`
	Amount    string                `json:"amount"`
	Provider  enums.PaymentProvider `json:"provider"`
	Reference string                `json:"reference"`
}
