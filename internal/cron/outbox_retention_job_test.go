package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

var retentionNow = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func TestOutboxRetentionUsesDefaultWindow(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{})

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.cutoffs, 1)
	require.True(t, repo.cutoffs[0].Equal(retentionNow.Add(-defaultOutboxRetention)))
}

func TestOutboxRetentionHonoursConfiguredDays(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{RetentionDays: 3})

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.cutoffs[0].Equal(retentionNow.Add(-72*time.Hour)))
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{pending: 25}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{BatchSize: 10})

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.cutoffs, 3)
	require.Zero(t, repo.pending)
}

func TestOutboxRetentionReportsParkedRows(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{parked: 2}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{MaxAttempts: 4})

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 4, repo.maxAttempts)
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{})

	require.ErrorContains(t, job.Run(context.Background()), "boom")
}

func TestOutboxRetentionStopsOnCancel(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{pending: 100}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{BatchSize: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	require.Empty(t, repo.cutoffs)
}

func newRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.Repository = repo
	built, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := built.(*outboxRetentionJob)
	require.True(t, ok, "unexpected job type %T", built)
	job.now = func() time.Time { return retentionNow }
	return job
}

type fakeOutboxRetentionRepo struct {
	cutoffs     []time.Time
	pending     int64
	parked      int64
	maxAttempts int
	err         error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBatch(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	n := f.pending
	if n > int64(limit) {
		n = int64(limit)
	}
	f.pending -= n
	return n, nil
}

func (f *fakeOutboxRetentionRepo) CountParked(_ context.Context, maxAttempts int) (int64, error) {
	f.maxAttempts = maxAttempts
	return f.parked, nil
}
