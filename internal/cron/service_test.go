package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/metrics"
)

type fakeLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newCronService(t *testing.T, lock Lock, m *metrics.CronJobMetrics, timeout time.Duration, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   registry,
		Lock:       lock,
		Metrics:    m,
		JobTimeout: timeout,
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "auto-release"}
	failing := &testJob{name: "stale-intents", err: errors.New("boom")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	service := newCronService(t, lock, m, 0, failing, ok)

	report, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, failing.runs)
	require.Equal(t, 2, report.Ran)
	require.Equal(t, []string{"stale-intents"}, report.Failed)
	require.ErrorContains(t, report.Err, "stale-intents: boom")
	require.Equal(t, 1, lock.releases)
	require.False(t, ok.deadline)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, mf := range mfs {
		if mf.GetName() != "vendorlution_cron_job_runs_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["job"] == "stale_intents" && labels["result"] == "failure" {
				failures = metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), failures)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "auto-release"}
	service := newCronService(t, &fakeLock{acquired: true}, nil, 0, job)

	report, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Zero(t, job.runs)
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	service := newCronService(t, &fakeLock{acquireErr: errors.New("redis down")}, nil, 0)
	_, err := service.RunOnce(context.Background())
	require.ErrorContains(t, err, "redis down")
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	service := newCronService(t, &fakeLock{}, nil, time.Minute, job)

	_, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, job.deadline)
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	job := &testJob{name: "auto-release"}
	service := newCronService(t, &fakeLock{}, nil, 0, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := service.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, job.runs)
	require.ErrorIs(t, report.Err, context.Canceled)
}
