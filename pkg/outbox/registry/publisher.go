// Package registry decides where each outbox event is published and decodes
// its payload into the typed struct subscribers expect.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/payloads"
)

// EventDescriptor is the resolved route for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish no matter how often
// it is retried.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is a
// NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

type topicKind int

const (
	ordersTopic topicKind = iota
	notificationTopic
)

type route struct {
	aggregate enums.OutboxAggregateType
	topic     topicKind
	decode    func(json.RawMessage) (any, error)
}

func decodeAs[T any]() func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Settlement facts go to the orders topic; anything a person should be told
// about goes to notifications.
var routes = map[enums.OutboxEventType]route{
	enums.EventOrderPaid:       {enums.AggregateOrder, ordersTopic, decodeAs[payloads.OrderPaidEvent]()},
	enums.EventOrderRefunded:   {enums.AggregateOrder, ordersTopic, decodeAs[payloads.OrderRefundedEvent]()},
	enums.EventDisputeResolved: {enums.AggregateDispute, ordersTopic, decodeAs[payloads.DisputeResolvedEvent]()},
	enums.EventProductSold:     {enums.AggregateOrder, notificationTopic, decodeAs[payloads.ProductSoldEvent]()},
	enums.EventDisputeOpened:   {enums.AggregateDispute, notificationTopic, decodeAs[payloads.DisputeOpenedEvent]()},
	enums.EventPayoutRequested: {enums.AggregatePayout, notificationTopic, decodeAs[payloads.PayoutRequestedEvent]()},
	enums.EventWalletCredited:  {enums.AggregateWallet, notificationTopic, decodeAs[payloads.WalletCreditedEvent]()},
}

// EventRegistry resolves outbox rows against the routing table.
type EventRegistry struct {
	topics map[topicKind]string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	return &EventRegistry{topics: map[topicKind]string{
		ordersTopic:       cfg.OrdersTopic,
		notificationTopic: cfg.NotificationTopic,
	}}, nil
}

// Topics lists every topic an event can be routed to.
func (r *EventRegistry) Topics() []string {
	out := make([]string, 0, len(r.topics))
	for _, name := range r.topics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is non-retryable since the row content will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := routes[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if rt.aggregate != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", rt.aggregate, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version > outbox.EnvelopeVersion {
		return nil, NewNonRetryableError(fmt.Errorf("envelope version %d not supported", envelope.Version))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload, err := rt.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{
		Descriptor: EventDescriptor{
			EventType:     event.EventType,
			AggregateType: rt.aggregate,
			Topic:         r.topics[rt.topic],
		},
		Envelope: envelope,
		Payload:  payload,
	}, nil
}
