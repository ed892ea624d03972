package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
	"github.com/fieldops/fieldsync/internal/notify"
	"github.com/fieldops/fieldsync/internal/platform"
)

// Orchestrator runs the entity sync loop for every registered entity type of
// a tenant. Entity loops touch disjoint tables, so they run concurrently up
// to a bounded worker count; one entity's terminal failure never prevents
// the others from running.
type Orchestrator struct {
	registry *platform.Registry
	tracker  *Tracker
	loop     *Loop
	notifier notify.Notifier
	channel  string
	cfg      *config.SyncConfig
	logger   *logrus.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(registry *platform.Registry, tracker *Tracker, loop *Loop, notifier notify.Notifier, channel string, cfg *config.SyncConfig, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		tracker:  tracker,
		loop:     loop,
		notifier: notifier,
		channel:  channel,
		cfg:      cfg,
		logger:   logger,
	}
}

// SyncTenant runs one orchestration pass for a tenant. An empty entities
// slice means every registered entity type.
func (o *Orchestrator) SyncTenant(ctx context.Context, tenantID string, entities []string) (*models.PassSummary, error) {
	if tenantID == "" {
		return nil, errors.NewValidationError("tenant id cannot be empty", nil)
	}

	if len(entities) == 0 {
		entities = o.registry.Names()
	}

	summary := &models.PassSummary{
		RunID:     uuid.NewString(),
		TenantID:  tenantID,
		StartedAt: time.Now().UTC(),
		Results:   make([]models.EntitySyncResult, len(entities)),
	}

	logger := o.logger.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"tenant":   tenantID,
		"entities": entities,
	})
	logger.Info("Starting orchestration pass")

	workers := o.cfg.MaxConcurrentEntities
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, name := range entities {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, entity string) {
			defer wg.Done()
			defer func() { <-sem }()
			summary.Results[idx] = o.syncEntity(ctx, tenantID, entity)
		}(i, name)
	}
	wg.Wait()

	summary.FinishedAt = time.Now().UTC()
	logger.WithField("failed", summary.Failed()).Info("Orchestration pass finished")

	o.notifyBestEffort(summary)
	return summary, nil
}

// syncEntity runs one entity type end to end, translating every outcome
// into a result rather than letting it escape the entity boundary.
func (o *Orchestrator) syncEntity(ctx context.Context, tenantID, entity string) models.EntitySyncResult {
	started := time.Now()
	result := models.EntitySyncResult{Entity: entity}

	desc, err := o.registry.Get(entity)
	if err != nil {
		result.Status = models.EntityRunFailed
		result.Error = err.Error()
		result.Duration = time.Since(started)
		return result
	}

	if err := o.tracker.BeginRun(ctx, tenantID, entity); err != nil {
		if errors.IsSyncInProgress(err) {
			result.Status = models.EntityRunSkipped
			result.Duration = time.Since(started)
			return result
		}
		result.Status = models.EntityRunFailed
		result.Error = err.Error()
		result.Duration = time.Since(started)
		return result
	}

	runResult, runErr := o.loop.Run(ctx, tenantID, desc)
	result.Mode = runResult.Mode
	result.RecordsFetched = runResult.Records
	result.Pages = runResult.Pages
	result.Duration = time.Since(started)

	if runErr != nil {
		result.Status = models.EntityRunFailed
		result.Error = runErr.Error()
		if err := o.tracker.FailRun(ctx, tenantID, entity, runErr.Error()); err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{
				"tenant": tenantID,
				"entity": entity,
			}).Error("Failed to record run failure")
		}
		return result
	}

	result.Status = models.EntityRunCompleted
	return result
}

// notifyBestEffort reports the pass outcome; delivery failures are logged
// and dropped, never surfaced to the caller.
func (o *Orchestrator) notifyBestEffort(summary *models.PassSummary) {
	if o.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.NotifyTimeout)
	defer cancel()

	if err := o.notifier.Notify(ctx, o.channel, summaryText(summary)); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"run_id": summary.RunID,
			"tenant": summary.TenantID,
		}).Warn("Failed to deliver pass notification")
	}
}

func summaryText(summary *models.PassSummary) string {
	var completed, failed, skipped int
	var records int64
	for _, r := range summary.Results {
		switch r.Status {
		case models.EntityRunCompleted:
			completed++
			records += r.RecordsFetched
		case models.EntityRunFailed:
			failed++
		case models.EntityRunSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("sync pass %s for tenant %s: %d completed, %d failed, %d skipped, %d records in %s",
		summary.RunID, summary.TenantID, completed, failed, skipped, records,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
}
