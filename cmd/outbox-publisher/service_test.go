package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		paidEvent(t, 0),
		paidEvent(t, 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{})

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Empty(t, repo.terminal)
}

func TestProcessBatchParksUnresolvableRows(t *testing.T) {
	event := paidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, reg, config.OutboxConfig{MaxAttempts: 4})

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Equal(t, 4, repo.terminalAttempts)
	require.Zero(t, pub.calls)
}

func TestProcessBatchParksNonRetryablePublishErrors(t *testing.T) {
	event := paidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: registry.NewNonRetryableError(errors.New("topic gone"))},
	}}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, repo.failed)
}

func TestProcessBatchParksAfterMaxAttempts(t *testing.T) {
	event := paidEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
	}}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, repo.failed)
	require.ErrorContains(t, repo.terminalErr, "max publish attempts reached")
}

func TestProcessBatchReturnsBookkeepingErrors(t *testing.T) {
	repo := &fakeRepo{
		events:     []models.OutboxEvent{paidEvent(t, 0)},
		publishErr: errors.New("db down"),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{})

	_, err := svc.processBatch(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestPublishSetsMessageAttributes(t *testing.T) {
	event := paidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	var topics []string
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{})
	svc.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"orders-topic"}, topics)
	require.Len(t, pub.messages, 1)

	attrs := pub.messages[0].Attributes
	require.Equal(t, string(enums.EventOrderPaid), attrs["event_type"])
	require.Equal(t, string(enums.AggregateOrder), attrs["aggregate_type"])
	require.Equal(t, event.AggregateID.String(), attrs["aggregate_id"])
	require.Equal(t, "buyer", attrs["actor_role"])
	require.JSONEq(t, string(event.Payload), string(pub.messages[0].Data))
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, config.OutboxConfig{})
	require.Equal(t, defaultBatchSize, svc.settings.batchSize)
	require.Equal(t, defaultMaxAttempts, svc.settings.maxAttempts)
	require.Equal(t, time.Duration(defaultPollMs)*time.Millisecond, svc.settings.pollInterval)

	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	require.ErrorContains(t, err, "outbox repository")
}

func TestNextBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, 200*time.Millisecond, nextBackoff(base, base, maxBackoff))
	require.Equal(t, 200*time.Millisecond, nextBackoff(0, base, maxBackoff))
	require.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))
}

func TestRunStopsOnCancel(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, config.OutboxConfig{PollIntervalMS: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessBatchPublishesBeforeAwaiting(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{paidEvent(t, 0), paidEvent(t, 0), paidEvent(t, 0)}}
	var order []string
	pub := &orderedPublisher{order: &order}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{})

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, processed)
	require.Equal(t, []string{"publish", "publish", "publish", "get", "get", "get"}, order)
	require.Len(t, repo.published, 3)
}

func TestProcessBatchParksWhenNoPublisher(t *testing.T) {
	event := paidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	svc := newTestService(t, repo, nil, &fakeRegistry{resolved: ordersResolved()}, config.OutboxConfig{})
	svc.publisherFactory = func(string) publisher { return nil }

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestMessageAttributesOmitEmptyRole(t *testing.T) {
	event := paidEvent(t, 0)
	attrs := messageAttributes(event, outbox.PayloadEnvelope{EventID: "e-1", Actor: &outbox.ActorRef{UserID: uuid.New()}})
	require.Equal(t, "e-1", attrs["event_id"])
	_, ok := attrs["actor_role"]
	require.False(t, ok)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, cfg config.OutboxConfig) *Service {
	t.Helper()
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	svc, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(string) publisher { return pub },
	})
	require.NoError(t, err)
	return svc
}

func paidEvent(tb testing.TB, attempts int) models.OutboxEvent {
	tb.Helper()
	id := uuid.New()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Actor:      &outbox.ActorRef{UserID: uuid.New(), Role: "buyer"},
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func ordersResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			Topic:         "orders-topic",
		},
		Payload: &payloads.OrderPaidEvent{},
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalErr      error
	terminalAttempts int
	publishErr       error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalErr = err
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	calls    int
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.calls++
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type orderedPublisher struct {
	order *[]string
}

func (o *orderedPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	*o.order = append(*o.order, "publish")
	return orderedResult{order: o.order}
}

type orderedResult struct {
	order *[]string
}

func (o orderedResult) Get(context.Context) (string, error) {
	*o.order = append(*o.order, "get")
	return "id", nil
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.resolved == nil {
		return nil, registry.NewNonRetryableError(errors.New("unknown event"))
	}
	resolved := *f.resolved
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err == nil {
		resolved.Envelope = env
	}
	return &resolved, nil
}
