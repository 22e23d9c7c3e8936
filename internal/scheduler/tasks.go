package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"adintel/internal/config"
	"adintel/internal/domain/presence"
	"adintel/internal/domain/serp"
)

// PresenceSampler samples every tracked target
type PresenceSampler interface {
	SampleAllEnabled(ctx context.Context) (presence.BatchResult, error)
}

// CreativePoller polls the whole watchlist
type CreativePoller interface {
	PollAll(ctx context.Context) (int, error)
}

// BrandScanner scans one job's ads
type BrandScanner interface {
	Scan(ctx context.Context, jobID string) (int, error)
}

// JobLister lists every job
type JobLister interface {
	ListJobs(ctx context.Context) ([]serp.Job, error)
}

// Tasks builds the periodic operations from their cron specs
func Tasks(cfg config.SchedulerConfig, sampler PresenceSampler, poller CreativePoller, scanner BrandScanner, jobs JobLister, logger *zap.Logger) []Task {
	if logger == nil {
		logger = zap.NewNop()
	}

	return []Task{
		{
			Name: "presence_sampling",
			Spec: cfg.PresenceSpec,
			Run: func(ctx context.Context) error {
				_, err := sampler.SampleAllEnabled(ctx)
				return err
			},
		},
		{
			Name: "creative_polling",
			Spec: cfg.CreativePollSpec,
			Run: func(ctx context.Context) error {
				_, err := poller.PollAll(ctx)
				return err
			},
		},
		{
			Name: "brand_scan",
			Spec: cfg.BrandScanSpec,
			Run: func(ctx context.Context) error {
				return scanAllJobs(ctx, scanner, jobs, logger)
			},
		},
	}
}

// scanAllJobs scans each job in turn; one failing job does not stop the rest
func scanAllJobs(ctx context.Context, scanner BrandScanner, jobs JobLister, logger *zap.Logger) error {
	list, err := jobs.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("error listing jobs: %w", err)
	}

	failed := 0
	for _, job := range list {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := scanner.Scan(ctx, job.ID); err != nil {
			failed++
			logger.Warn("Brand scan failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	if failed > 0 {
		return fmt.Errorf("brand scan failed for %d of %d jobs", failed, len(list))
	}
	return nil
}
