package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

func TestEmitWritesEnvelopeInTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, logger.Nop())
	ctx := context.Background()
	orderID := uuid.New()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          map[string]string{"order_id": orderID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(envelope.Data))
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), logger.Nop())
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateDispute,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), logger.Nop())
	ctx := context.Background()

	if err := svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderPaid, AggregateID: uuid.New()}); err == nil {
		t.Fatalf("expected nil transaction to fail")
	}
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{EventType: "nope", AggregateID: uuid.New()})
	})
	if err == nil {
		t.Fatalf("expected unknown event type to fail")
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	parked := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(client.DB(), first))
	require.NoError(t, repo.Insert(client.DB(), parked))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkTerminalTx(tx, parked.ID, errors.New("bad payload"), 3)
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, first.ID, rows[0].ID)
		return repo.MarkPublishedTx(tx, first.ID)
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Empty(t, rows)
		return nil
	}))

	parkedCount, err := repo.CountParked(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), parkedCount)

	deleted, err := repo.DeletePublishedBatch(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = repo.DeletePublishedBatch(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Zero(t, deleted, "parked rows are never purged")
}

func TestEmitReportsEveryInvalidField(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), logger.Nop())
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{EventType: "nope", AggregateType: "cart"})
	})
	require.Error(t, err)
	for _, want := range []string{"unknown event type", "unknown aggregate type", "aggregate id required", "event data required"} {
		require.Contains(t, err.Error(), want)
	}
}

func TestEmitStampsEnvelopeMetadata(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), logger.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()
	buyer := uuid.New()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Actor:         Actor(buyer, enums.RoleBuyer),
			Data:          map[string]string{},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row).Error)
	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.Equal(t, string(enums.EventOrderPaid), envelope.EventType)
	require.True(t, envelope.OccurredAt.Equal(fixed))
	require.NotNil(t, envelope.Actor)
	require.Equal(t, buyer, envelope.Actor.UserID)
	require.Equal(t, enums.RoleBuyer, envelope.Actor.Role)
}

func TestActorIsNilForSystemEvents(t *testing.T) {
	require.Nil(t, Actor(uuid.Nil, enums.RoleAdmin))
}
