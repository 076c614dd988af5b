package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/registry"
)

const (
	reasonUnresolvable = "unresolvable"
	reasonNonRetryable = "non_retryable"
	reasonMaxAttempts  = "max_attempts"
)

// delivery tracks one row through resolve, publish and bookkeeping.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   publishResult
	err      error
}

// processBatch claims a batch, hands every resolvable row to its publisher
// before waiting on any result so Pub/Sub can batch them, then records each
// outcome. Only bookkeeping failures abort the batch.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	processed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.settings.batchSize, s.settings.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, s.settings.publishTimeout)
		defer cancel()

		deliveries := make([]*delivery, len(events))
		for i, event := range events {
			deliveries[i] = s.start(publishCtx, event)
		}
		for _, d := range deliveries {
			if d.result != nil {
				_, d.err = d.result.Get(publishCtx)
			}
			if err := s.record(ctx, tx, d); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (s *Service) start(ctx context.Context, event models.OutboxEvent) *delivery {
	d := &delivery{event: event}
	d.resolved, d.err = s.registry.Resolve(event)
	if d.err != nil {
		return d
	}

	topic := d.resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
		return d
	}
	d.result = pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, d.resolved.Envelope),
	})
	if d.result == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	return d
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, d *delivery) error {
	fields := deliveryFields(d)
	id := d.event.ID

	if d.resolved == nil {
		return s.park(ctx, tx, d, fields, reasonUnresolvable, d.err)
	}
	if d.err == nil {
		if err := s.repo.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}
	if registry.IsNonRetryable(d.err) {
		return s.park(ctx, tx, d, fields, reasonNonRetryable, d.err)
	}

	attempt := d.event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.settings.maxAttempts {
		return s.park(ctx, tx, d, fields, reasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", d.err))
	}

	fields["error"] = d.err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, id, d.err); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// park sets the row to the attempt ceiling so it is never fetched again. The
// row, with its last_error, is the dead letter.
func (s *Service) park(ctx context.Context, tx *gorm.DB, d *delivery, fields map[string]any, reason string, cause error) error {
	fields["terminal_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")

	if err := s.repo.MarkTerminalTx(tx, d.event.ID, cause, s.settings.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
	}
	return nil
}

func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if envelope.Actor != nil && envelope.Actor.Role != "" {
		attrs["actor_role"] = string(envelope.Actor.Role)
	}
	return attrs
}

func deliveryFields(d *delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
	}
	if d.resolved != nil {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["topic"] = d.resolved.Descriptor.Topic
	}
	if d.event.LastError != nil {
		fields["last_error"] = *d.event.LastError
	}
	return fields
}
