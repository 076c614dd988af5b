package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

const defaultAutoReleaseBatch = 200

// AutoReleaseJobParams configure the delivered-order release sweep.
type AutoReleaseJobParams struct {
	Logger *logger.Logger
	Escrow autoReleaser
	Batch  int
	DryRun bool
}

type autoReleaser interface {
	AutoRelease(ctx context.Context, opts escrow.AutoReleaseOptions) (*escrow.AutoReleaseReport, error)
}

// NewAutoReleaseJob builds the job that settles delivered orders the buyer
// never confirmed.
func NewAutoReleaseJob(params AutoReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow engine required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultAutoReleaseBatch
	}
	return &autoReleaseJob{
		logg:   params.Logger,
		escrow: params.Escrow,
		batch:  batch,
		dryRun: params.DryRun,
	}, nil
}

type autoReleaseJob struct {
	logg   *logger.Logger
	escrow autoReleaser
	batch  int
	dryRun bool
}

func (j *autoReleaseJob) Name() string { return "auto-release" }

func (j *autoReleaseJob) Run(ctx context.Context) error {
	report, err := j.escrow.AutoRelease(ctx, escrow.AutoReleaseOptions{DryRun: j.dryRun, Limit: j.batch})
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"examined": report.Examined,
			"released": report.Released,
			"skipped":  report.Skipped,
			"failed":   report.Failed,
			"dry_run":  report.DryRun,
		})
		if report.DryRun {
			logCtx = j.logg.WithField(logCtx, "candidates", len(report.Candidates))
		}
		j.logg.Info(logCtx, "auto-release sweep complete")
	}
	if err != nil {
		return fmt.Errorf("auto release: %w", err)
	}
	return nil
}
