package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 14 * 24 * time.Hour
	defaultPurgeBatch      = 500
	defaultMaxAttempts     = 10
)

// OutboxRetentionJobParams configure the published-event purge.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	Repository    outboxRetentionRepo
	RetentionDays int
	BatchSize     int
	MaxAttempts   int
}

type outboxRetentionRepo interface {
	DeletePublishedBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	CountParked(ctx context.Context, maxAttempts int) (int64, error)
}

// NewOutboxRetentionJob purges published outbox rows past retention. Parked
// rows stay until an operator deals with them; the job only reports them.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   defaultOutboxRetention,
		batch:       defaultPurgeBatch,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	if params.RetentionDays > 0 {
		job.retention = time.Duration(params.RetentionDays) * 24 * time.Hour
	}
	if params.BatchSize > 0 {
		job.batch = params.BatchSize
	}
	if params.MaxAttempts > 0 {
		job.maxAttempts = params.MaxAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxRetentionRepo
	retention   time.Duration
	batch       int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.repo.DeletePublishedBatch(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("purge published outbox rows: %w", err)
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	parked, err := j.repo.CountParked(ctx, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("count parked outbox rows: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"rows_parked":  parked,
	})
	if parked > 0 {
		j.logg.Warn(logCtx, "outbox has parked events awaiting operator review")
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
