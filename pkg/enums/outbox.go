package enums

import "fmt"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateDispute OutboxAggregateType = "dispute"
	AggregatePayout  OutboxAggregateType = "payout"
	AggregateWallet  OutboxAggregateType = "wallet"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateDispute,
	AggregatePayout,
	AggregateWallet,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventOrderPaid       OutboxEventType = "order_paid"
	EventProductSold     OutboxEventType = "product_sold"
	EventOrderRefunded   OutboxEventType = "order_refunded"
	EventDisputeOpened   OutboxEventType = "dispute_opened"
	EventDisputeResolved OutboxEventType = "dispute_resolved"
	EventPayoutRequested OutboxEventType = "payout_requested"
	EventWalletCredited  OutboxEventType = "wallet_credited"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventProductSold,
	EventOrderRefunded,
	EventDisputeOpened,
	EventDisputeResolved,
	EventPayoutRequested,
	EventWalletCredited,
}

// IsValid reports whether the value matches a known outbox event.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
