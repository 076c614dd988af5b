package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultStaleAfter = 24 * time.Hour
	defaultStaleBatch = 200
	staleReason       = "expired without provider confirmation"
)

// StaleIntentJobParams configure the abandoned intent sweep.
type StaleIntentJobParams struct {
	Logger     *logger.Logger
	Intents    staleIntentStore
	StaleAfter time.Duration
	Batch      int
}

type staleIntentStore interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentIntent, error)
	MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error)
}

// NewStaleIntentJob builds the job that cancels intents no provider ever
// confirmed. Cancelling touches neither wallets nor orders, so an order left
// pending can be paid again.
func NewStaleIntentJob(params StaleIntentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleIntentJob{
		logg:       params.Logger,
		intents:    params.Intents,
		staleAfter: staleAfter,
		batch:      batch,
	}, nil
}

type staleIntentJob struct {
	logg       *logger.Logger
	intents    staleIntentStore
	staleAfter time.Duration
	batch      int
}

func (j *staleIntentJob) Name() string { return "stale-intents" }

func (j *staleIntentJob) Run(ctx context.Context) error {
	stale, err := j.intents.ListStale(ctx, j.staleAfter, j.batch)
	if err != nil {
		return fmt.Errorf("list stale intents: %w", err)
	}

	var (
		errs      error
		cancelled int
	)
	for _, intent := range stale {
		changed, err := j.intents.MarkCancelled(ctx, nil, intent.ID, staleReason)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("intent %s: %w", intent.ID, err))
			continue
		}
		if changed {
			cancelled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined":    len(stale),
		"cancelled":   cancelled,
		"failed":      len(multierr.Errors(errs)),
		"stale_after": j.staleAfter.String(),
	})
	j.logg.Info(logCtx, "stale intent sweep complete")
	return errs
}
