package models

// All lists every persisted model; dev auto-migrate and test databases use it.
func All() []any {
	return []any{
		&Wallet{},
		&LedgerEntry{},
		&PaymentIntent{},
		&WebhookLog{},
		&Product{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Shipment{},
		&Dispute{},
		&PayoutRequest{},
		&VoucherRedemption{},
		&OutboxEvent{},
	}
}
