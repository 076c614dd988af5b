package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second

	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	// PublisherFactory overrides the Pub/Sub publisher; tests use it.
	PublisherFactory publisherFactory
}

type settings struct {
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func settingsFrom(cfg config.OutboxConfig) settings {
	s := settings{
		batchSize:      cfg.BatchSize,
		maxAttempts:    cfg.MaxAttempts,
		pollInterval:   time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		publishTimeout: defaultPublishTimeout,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollMs * time.Millisecond
	}
	return s
}

// Service relays committed outbox rows to Pub/Sub. Rows are claimed, published
// and marked inside one transaction, so a crash before commit only causes a
// redelivery.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	registry         registryResolver
	publisherFactory publisherFactory
	settings         settings
}

func NewService(params ServiceParams) (*Service, error) {
	var missing []string
	for name, ok := range map[string]bool{
		"logger":            params.Logger != nil,
		"database client":   params.DB != nil,
		"pubsub client":     params.PubSub != nil,
		"outbox repository": params.Repository != nil,
		"event registry":    params.Registry != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("outbox publisher: missing %v", missing)
	}

	svc := &Service{
		logg:             params.Logger,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		registry:         params.Registry,
		publisherFactory: params.PublisherFactory,
		settings:         settingsFrom(params.Config),
	}
	if svc.publisherFactory == nil {
		svc.publisherFactory = gcpPublisherFactory(params.PubSub)
	}
	return svc, nil
}

func (s *Service) checkReady(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}
	return nil
}

// Run polls until ctx ends. A full batch is followed immediately by another;
// errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkReady(ctx); err != nil {
		s.logg.Error(ctx, "outbox publisher not ready", err)
		return err
	}

	delay := s.settings.pollInterval
	for ctx.Err() == nil {
		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			delay = nextBackoff(delay, s.settings.pollInterval, maxBackoff)
		case processed >= s.settings.batchSize:
			delay = s.settings.pollInterval
			continue
		default:
			delay = s.settings.pollInterval
		}
		if err := sleep(ctx, withJitter(delay)); err != nil {
			break
		}
	}
	s.logg.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < ceiling {
		return next
	}
	return ceiling
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

var errNilResult = errors.New("publish result is nil")
