package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldops/fieldsync/internal/db"
	"github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
)

// Tracker reads and writes sync bookkeeping rows. It deliberately carries no
// in-memory cache: the in_progress gate is only correct if every decision is
// made against the store.
type Tracker struct {
	store  db.Store
	logger *logrus.Logger
}

// NewTracker creates a new sync state tracker
func NewTracker(store db.Store, logger *logrus.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// State returns the sync state for one (tenant, entity), nil if never synced
func (t *Tracker) State(ctx context.Context, tenantID, entity string) (*models.SyncState, error) {
	if tenantID == "" {
		return nil, errors.NewValidationError("tenant id cannot be empty", nil)
	}
	if entity == "" {
		return nil, errors.NewValidationError("entity cannot be empty", nil)
	}
	return t.store.GetSyncState(ctx, tenantID, entity)
}

// ListStates returns all sync states for a tenant
func (t *Tracker) ListStates(ctx context.Context, tenantID string) ([]*models.SyncState, error) {
	if tenantID == "" {
		return nil, errors.NewValidationError("tenant id cannot be empty", nil)
	}
	return t.store.ListSyncStates(ctx, tenantID)
}

// BeginRun claims the (tenant, entity) run slot. A SyncInProgressError means
// another run holds it and the caller must skip, not fail.
func (t *Tracker) BeginRun(ctx context.Context, tenantID, entity string) error {
	claimed, err := t.store.ClaimSyncRun(ctx, tenantID, entity)
	if err != nil {
		return fmt.Errorf("failed to claim sync run: %w", err)
	}
	if !claimed {
		t.logger.WithFields(logrus.Fields{
			"tenant": tenantID,
			"entity": entity,
		}).Warn("Sync already in progress, skipping")
		return errors.NewSyncInProgressError(tenantID, entity)
	}
	return nil
}

// CheckpointPage advances the observable record count of the run in flight
func (t *Tracker) CheckpointPage(ctx context.Context, tenantID, entity string, cumulativeCount int64) error {
	return t.store.CheckpointRecordCount(ctx, tenantID, entity, cumulativeCount)
}

// CompleteRun is the only path that advances a watermark, and only forward
// in time. The mode selects which watermark column the run owns.
func (t *Tracker) CompleteRun(ctx context.Context, tenantID, entity string, mode models.SyncMode, watermark time.Time, recordCount int64) error {
	if err := t.store.CompleteSyncRun(ctx, tenantID, entity, mode, watermark, recordCount); err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	t.logger.WithFields(logrus.Fields{
		"tenant":       tenantID,
		"entity":       entity,
		"mode":         mode,
		"record_count": recordCount,
	}).Info("Sync run completed")
	return nil
}

// FailRun records the failure, leaving the prior watermark untouched
func (t *Tracker) FailRun(ctx context.Context, tenantID, entity, errSummary string) error {
	if err := t.store.FailSyncRun(ctx, tenantID, entity, errSummary); err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}
	t.logger.WithFields(logrus.Fields{
		"tenant": tenantID,
		"entity": entity,
		"error":  errSummary,
	}).Error("Sync run failed")
	return nil
}
