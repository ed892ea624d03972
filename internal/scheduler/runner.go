package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner wraps a cron scheduler with the process base context. Scheduled
// jobs receive that context so a shutdown cancels runs between pages.
type Runner struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	baseCtx context.Context
}

// New creates a runner; specs use the six-field form with seconds
func New(logger *logrus.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules a job. Overlapping fires are tolerated because the sync
// engine's in_progress gate collapses them into skips.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// Start begins scheduling
func (r *Runner) Start() {
	r.logger.Info("Scheduler started")
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Scheduler stopped")
}
