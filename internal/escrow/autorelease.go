package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type AutoReleaseOptions struct {
	DryRun bool
	Limit  int
	Now    time.Time
}

// AutoReleaseReport summarizes one sweep. Candidates lists the orders a dry
// run would release.
type AutoReleaseReport struct {
	Examined   int         `json:"examined"`
	Released   int         `json:"released"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	DryRun     bool        `json:"dry_run"`
	Candidates []uuid.UUID `json:"candidates,omitempty"`
}

// AutoRelease settles held orders whose grace window has elapsed and which
// carry no active dispute. Per-order failures are collected and the sweep
// continues.
func (e *engine) AutoRelease(ctx context.Context, opts AutoReleaseOptions) (*AutoReleaseReport, error) {
	now := opts.Now
	if now.IsZero() {
		now = e.now()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.AutoReleaseBatch
	}
	report := &AutoReleaseReport{DryRun: opts.DryRun || e.cfg.AutoReleaseDryRun}

	cutoff := now.UTC().Add(-e.cfg.AutoReleaseAfter())
	candidates, err := e.orders.ListReleaseCandidates(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list release candidates: %w", err)
	}

	var errs error
	for _, candidate := range candidates {
		report.Examined++
		if report.DryRun {
			active, err := e.hasActiveDispute(ctx, nil, candidate.ID)
			if err != nil {
				report.Failed++
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", candidate.ID, err))
				continue
			}
			if active {
				report.Skipped++
				continue
			}
			report.Candidates = append(report.Candidates, candidate.ID)
			continue
		}

		released, err := e.releaseOne(ctx, candidate.ID)
		switch {
		case err != nil:
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", candidate.ID, err))
			e.logg.Error(e.logg.WithField(ctx, "order_id", candidate.ID.String()), "auto release failed", err)
		case released:
			report.Released++
		default:
			report.Skipped++
		}
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"examined": report.Examined,
		"released": report.Released,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"dry_run":  report.DryRun,
	}), "auto release sweep finished")
	return report, errs
}

// releaseOne re-checks the order under its lock; it may have been confirmed,
// disputed or refunded since the candidate query ran.
func (e *engine) releaseOne(ctx context.Context, orderID uuid.UUID) (bool, error) {
	released := false
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := e.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.HoldsFunds() {
			return nil
		}
		active, err := e.hasActiveDispute(ctx, tx, order.ID)
		if err != nil || active {
			return err
		}
		if _, err := e.settle(ctx, tx, order, triggerAuto, orderReference(order.ID)+"-AUTO-RELEASE"); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		e.metrics.IncSettlement(triggerAuto.name)
	}
	return released, nil
}
