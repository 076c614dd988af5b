package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type fakeReleaser struct {
	opts   escrow.AutoReleaseOptions
	report *escrow.AutoReleaseReport
	err    error
}

func (f *fakeReleaser) AutoRelease(_ context.Context, opts escrow.AutoReleaseOptions) (*escrow.AutoReleaseReport, error) {
	f.opts = opts
	return f.report, f.err
}

func TestAutoReleaseJobPassesBatchAndDryRun(t *testing.T) {
	releaser := &fakeReleaser{report: &escrow.AutoReleaseReport{Examined: 2, DryRun: true}}
	job, err := NewAutoReleaseJob(AutoReleaseJobParams{Logger: logger.Nop(), Escrow: releaser, DryRun: true})
	if err != nil {
		t.Fatalf("NewAutoReleaseJob: %v", err)
	}
	if job.Name() != "auto-release" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !releaser.opts.DryRun || releaser.opts.Limit != defaultAutoReleaseBatch {
		t.Fatalf("unexpected options %+v", releaser.opts)
	}
}

func TestAutoReleaseJobReportsPartialFailure(t *testing.T) {
	releaser := &fakeReleaser{
		report: &escrow.AutoReleaseReport{Examined: 3, Released: 2, Failed: 1},
		err:    errors.New("order lock timeout"),
	}
	job, err := NewAutoReleaseJob(AutoReleaseJobParams{Logger: logger.Nop(), Escrow: releaser, Batch: 5})
	if err != nil {
		t.Fatalf("NewAutoReleaseJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}
	if releaser.opts.Limit != 5 {
		t.Fatalf("expected batch 5, got %d", releaser.opts.Limit)
	}
}

type fakeIntentStore struct {
	stale      []models.PaymentIntent
	olderThan  time.Duration
	cancelled  []uuid.UUID
	failFor    uuid.UUID
	terminalID uuid.UUID
}

func (f *fakeIntentStore) ListStale(_ context.Context, olderThan time.Duration, _ int) ([]models.PaymentIntent, error) {
	f.olderThan = olderThan
	return f.stale, nil
}

func (f *fakeIntentStore) MarkCancelled(_ context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	if tx != nil {
		return false, errors.New("sweep must not open a transaction")
	}
	if reason == "" {
		return false, errors.New("reason required")
	}
	if id == f.failFor {
		return false, errors.New("db unavailable")
	}
	if id == f.terminalID {
		return false, nil
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func TestStaleIntentJobCancelsAndAggregatesErrors(t *testing.T) {
	ok, broken, settled := uuid.New(), uuid.New(), uuid.New()
	store := &fakeIntentStore{
		stale:      []models.PaymentIntent{{ID: ok}, {ID: broken}, {ID: settled}},
		failFor:    broken,
		terminalID: settled,
	}
	job, err := NewStaleIntentJob(StaleIntentJobParams{Logger: logger.Nop(), Intents: store, StaleAfter: 2 * time.Hour})
	if err != nil {
		t.Fatalf("NewStaleIntentJob: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Fatalf("expected 1 error, got %d", n)
	}
	if len(store.cancelled) != 1 || store.cancelled[0] != ok {
		t.Fatalf("expected only %s cancelled, got %v", ok, store.cancelled)
	}
	if store.olderThan != 2*time.Hour {
		t.Fatalf("expected stale window 2h, got %s", store.olderThan)
	}
}

func TestStaleIntentJobDefaults(t *testing.T) {
	store := &fakeIntentStore{}
	job, err := NewStaleIntentJob(StaleIntentJobParams{Logger: logger.Nop(), Intents: store})
	if err != nil {
		t.Fatalf("NewStaleIntentJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.olderThan != defaultStaleAfter {
		t.Fatalf("expected default window, got %s", store.olderThan)
	}
}
