package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
)

type walletResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   string    `json:"balance"`
	Pending   string    `json:"pending"`
	Available string    `json:"available"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newWalletResponse(w *models.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		UserID:    w.UserID,
		Balance:   money.Format(w.Balance),
		Pending:   money.Format(w.Pending),
		Available: money.Format(w.Balance.Sub(w.Pending)),
		Currency:  w.Currency,
		UpdatedAt: w.UpdatedAt,
	}
}

type ledgerEntryResponse struct {
	ID           uuid.UUID             `json:"id"`
	Sequence     int64                 `json:"sequence"`
	Type         enums.LedgerEntryType `json:"type"`
	Amount       string                `json:"amount"`
	BalanceAfter string                `json:"balance_after"`
	PendingAfter string                `json:"pending_after"`
	Reference    string                `json:"reference,omitempty"`
	Description  string                `json:"description,omitempty"`
	Source       string                `json:"source"`
	CreatedAt    time.Time             `json:"created_at"`
}

func newLedgerEntryResponses(entries []models.LedgerEntry) []ledgerEntryResponse {
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:           e.ID,
			Sequence:     e.Sequence,
			Type:         e.Type,
			Amount:       money.Format(e.Amount),
			BalanceAfter: money.Format(e.BalanceAfter),
			PendingAfter: money.Format(e.PendingAfter),
			Reference:    e.Reference,
			Description:  e.Description,
			Source:       e.Source,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

type cartItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func newCartItemResponses(items []models.CartItem) []cartItemResponse {
	out := make([]cartItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, cartItemResponse{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

type orderItemResponse struct {
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int       `json:"quantity"`
	PriceSnapshot string    `json:"price_snapshot"`
	LineTotal     string    `json:"line_total"`
}

type orderResponse struct {
	ID             uuid.UUID            `json:"id"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	SellerID       uuid.UUID            `json:"seller_id"`
	Status         enums.OrderStatus    `json:"status"`
	PaymentMethod  enums.PaymentMethod  `json:"payment_method"`
	DeliveryMethod enums.DeliveryMethod `json:"delivery_method"`
	Subtotal       string               `json:"subtotal"`
	ShippingFee    string               `json:"shipping_fee"`
	ProtectionFee  string               `json:"protection_fee"`
	TotalAmount    string               `json:"total_amount"`
	PlatformFee    *string              `json:"platform_fee,omitempty"`
	VendorAmount   *string              `json:"vendor_amount,omitempty"`
	Items          []orderItemResponse  `json:"items,omitempty"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	ReleasedAt     *time.Time           `json:"released_at,omitempty"`
	RefundedAt     *time.Time           `json:"refunded_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

func newOrderResponse(o *models.Order) *orderResponse {
	if o == nil {
		return nil
	}
	resp := &orderResponse{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		DeliveryMethod: o.DeliveryMethod,
		Subtotal:       money.Format(o.Subtotal),
		ShippingFee:    money.Format(o.ShippingFee),
		ProtectionFee:  money.Format(o.ProtectionFee),
		TotalAmount:    money.Format(o.TotalAmount),
		PlatformFee:    formatNull(o.PlatformFee),
		VendorAmount:   formatNull(o.VendorAmount),
		PaidAt:         o.PaidAt,
		ReleasedAt:     o.ReleasedAt,
		RefundedAt:     o.RefundedAt,
		CreatedAt:      o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PriceSnapshot: money.Format(it.PriceSnapshot),
			LineTotal:     money.Format(it.LineTotal),
		})
	}
	return resp
}

type checkoutResponse struct {
	Order   *orderResponse        `json:"order"`
	Payment *payments.StartResult `json:"payment,omitempty"`
}

func newCheckoutResponse(res *escrow.CheckoutResult) checkoutResponse {
	return checkoutResponse{Order: newOrderResponse(res.Order), Payment: res.Payment}
}

type shipmentResponse struct {
	ID             uuid.UUID            `json:"id"`
	OrderID        uuid.UUID            `json:"order_id"`
	Method         enums.DeliveryMethod `json:"method"`
	TrackingNumber string               `json:"tracking_number,omitempty"`
	Courier        string               `json:"courier,omitempty"`
	Status         enums.ShipmentStatus `json:"status"`
	ShippedAt      *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time           `json:"delivered_at,omitempty"`
}

func newShipmentResponse(s *models.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:             s.ID,
		OrderID:        s.OrderID,
		Method:         s.Method,
		TrackingNumber: s.TrackingNumber,
		Courier:        s.Courier,
		Status:         s.Status,
		ShippedAt:      s.ShippedAt,
		DeliveredAt:    s.DeliveredAt,
	}
}

type settlementResponse struct {
	OrderID      uuid.UUID `json:"order_id"`
	VendorAmount string    `json:"vendor_amount"`
	PlatformFee  string    `json:"platform_fee"`
	Trigger      string    `json:"trigger"`
	Replayed     bool      `json:"replayed"`
}

func newSettlementResponse(s *escrow.Settlement) *settlementResponse {
	if s == nil {
		return nil
	}
	return &settlementResponse{
		OrderID:      s.OrderID,
		VendorAmount: money.Format(s.VendorAmount),
		PlatformFee:  money.Format(s.PlatformFee),
		Trigger:      s.Trigger,
		Replayed:     s.Replayed,
	}
}

type disputeResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderID         uuid.UUID           `json:"order_id"`
	OpenedBy        uuid.UUID           `json:"opened_by"`
	Reason          enums.DisputeReason `json:"reason"`
	Description     string              `json:"description"`
	Status          enums.DisputeStatus `json:"status"`
	RefundAmount    *string             `json:"refund_amount,omitempty"`
	ResolutionNotes string              `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newDisputeResponse(d *models.Dispute) *disputeResponse {
	if d == nil {
		return nil
	}
	return &disputeResponse{
		ID:              d.ID,
		OrderID:         d.OrderID,
		OpenedBy:        d.OpenedBy,
		Reason:          d.Reason,
		Description:     d.Description,
		Status:          d.Status,
		RefundAmount:    formatNull(d.RefundAmount),
		ResolutionNotes: d.ResolutionNotes,
		ResolvedAt:      d.ResolvedAt,
		CreatedAt:       d.CreatedAt,
	}
}

type resolutionResponse struct {
	Dispute      *disputeResponse    `json:"dispute"`
	Order        *orderResponse      `json:"order"`
	Settlement   *settlementResponse `json:"settlement,omitempty"`
	RefundAmount *string             `json:"refund_amount,omitempty"`
	Remainder    *string             `json:"remainder,omitempty"`
}

func newResolutionResponse(res *escrow.Resolution) resolutionResponse {
	return resolutionResponse{
		Dispute:      newDisputeResponse(res.Dispute),
		Order:        newOrderResponse(res.Order),
		Settlement:   newSettlementResponse(res.Settlement),
		RefundAmount: formatPtr(res.RefundAmount),
		Remainder:    formatPtr(res.Remainder),
	}
}

type voucherResponse struct {
	ID         uuid.UUID           `json:"id"`
	UserID     uuid.UUID           `json:"user_id"`
	IntentID   uuid.UUID           `json:"intent_id"`
	Issuer     string              `json:"issuer"`
	Code       string              `json:"code"`
	Amount     string              `json:"amount"`
	Status     enums.VoucherStatus `json:"status"`
	Notes      string              `json:"notes,omitempty"`
	ReviewedAt *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

func newVoucherResponse(v *models.VoucherRedemption) voucherResponse {
	return voucherResponse{
		ID:         v.ID,
		UserID:     v.UserID,
		IntentID:   v.IntentID,
		Issuer:     v.Issuer,
		Code:       v.Code,
		Amount:     money.Format(v.Amount),
		Status:     v.Status,
		Notes:      v.Notes,
		ReviewedAt: v.ReviewedAt,
		CreatedAt:  v.CreatedAt,
	}
}

type payoutResponse struct {
	ID          uuid.UUID             `json:"id"`
	UserID      uuid.UUID             `json:"user_id"`
	Amount      string                `json:"amount"`
	BankHolder  string                `json:"bank_holder"`
	BankName    string                `json:"bank_name"`
	AccountLast string                `json:"account_last4"`
	AccountType enums.BankAccountType `json:"account_type"`
	Status      enums.PayoutStatus    `json:"status"`
	Reference   string                `json:"reference"`
	Notes       string                `json:"notes,omitempty"`
	ProcessedAt *time.Time            `json:"processed_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func newPayoutResponse(p *models.PayoutRequest) payoutResponse {
	return payoutResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Amount:      money.Format(p.Amount),
		BankHolder:  p.BankHolder,
		BankName:    p.BankName,
		AccountLast: payouts.Last4(p.AccountNumber),
		AccountType: p.AccountType,
		Status:      p.Status,
		Reference:   p.Reference,
		Notes:       p.Notes,
		ProcessedAt: p.ProcessedAt,
		CreatedAt:   p.CreatedAt,
	}
}

func formatNull(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money.Format(d.Decimal)
	return &s
}

func formatPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money.Format(*d)
	return &s
}
