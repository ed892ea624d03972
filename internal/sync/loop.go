package sync

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/db"
	"github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
	"github.com/fieldops/fieldsync/internal/platform"
)

// RunResult is what one entity run produced, whether it finished or not
type RunResult struct {
	Mode    models.SyncMode
	Records int64
	Pages   int
}

// Loop drives pagination for one entity type to completion or failure. One
// page is held in memory at a time; page N+1 is requested only after page
// N's upsert has committed.
type Loop struct {
	fetcher platform.Fetcher
	store   db.Store
	tracker *Tracker
	creds   platform.CredentialProvider
	cfg     *config.SyncConfig
	logger  *logrus.Logger
}

// NewLoop creates a new entity sync loop
func NewLoop(fetcher platform.Fetcher, store db.Store, tracker *Tracker, creds platform.CredentialProvider, cfg *config.SyncConfig, logger *logrus.Logger) *Loop {
	return &Loop{
		fetcher: fetcher,
		store:   store,
		tracker: tracker,
		creds:   creds,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run synchronizes one entity type for one tenant. The caller must already
// hold the in_progress gate via Tracker.BeginRun. On success the watermark
// for the run's mode is advanced to the run completion time; the overlap
// window applied on the next read covers records modified mid-run.
func (l *Loop) Run(ctx context.Context, tenantID string, desc *platform.Descriptor) (*RunResult, error) {
	logger := l.logger.WithFields(logrus.Fields{
		"tenant": tenantID,
		"entity": desc.Name,
	})

	state, err := l.tracker.State(ctx, tenantID, desc.Name)
	if err != nil {
		return &RunResult{}, err
	}

	result := &RunResult{Mode: models.SyncModeFull}
	var modifiedSince *time.Time
	if state != nil {
		if watermark := state.Watermark(); watermark != nil {
			since := watermark.Add(-l.cfg.WatermarkOverlap)
			modifiedSince = &since
			result.Mode = models.SyncModeIncremental
		}
	}
	logger.WithFields(logrus.Fields{
		"mode":           result.Mode,
		"modified_since": modifiedSince,
	}).Info("Starting entity sync run")

	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return result, errors.WithContext(errors.NewTransientError("run cancelled", err), desc.Name, "run")
		}

		page, err := l.fetchWithRetry(ctx, desc, platform.PageRequest{
			ModifiedSince: modifiedSince,
			Cursor:        cursor,
		})
		if err != nil {
			return result, err
		}

		if err := l.upsertWithRetry(ctx, tenantID, desc, page.Records); err != nil {
			return result, err
		}

		result.Records += int64(len(page.Records))
		result.Pages++

		if err := l.tracker.CheckpointPage(ctx, tenantID, desc.Name, result.Records); err != nil {
			return result, err
		}

		logger.WithFields(logrus.Fields{
			"page":     result.Pages,
			"records":  len(page.Records),
			"total":    result.Records,
			"has_more": page.HasMore,
		}).Info("Committed page")

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor

		if err := sleepContext(ctx, l.cfg.PageDelay); err != nil {
			return result, errors.WithContext(errors.NewTransientError("run cancelled", err), desc.Name, "run")
		}
	}

	if err := l.tracker.CompleteRun(ctx, tenantID, desc.Name, result.Mode, time.Now().UTC(), result.Records); err != nil {
		return result, err
	}
	return result, nil
}

// fetchWithRetry applies the retry policy to one page fetch: transient
// errors back off exponentially up to the attempt limit, a credential
// error earns exactly one refresh-and-retry, validation errors fail at once.
func (l *Loop) fetchWithRetry(ctx context.Context, desc *platform.Descriptor, req platform.PageRequest) (*models.Page, error) {
	backoff := l.cfg.InitialBackoff
	refreshed := false
	var lastErr error

	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		page, err := l.fetcher.FetchPage(ctx, desc, req)
		if err == nil {
			return page, nil
		}
		lastErr = err

		switch {
		case errors.IsCredential(err):
			if refreshed {
				return nil, err
			}
			l.logger.WithField("entity", desc.Name).Warn("Credential rejected, refreshing and retrying once")
			l.creds.Invalidate()
			refreshed = true
		case errors.IsTransient(err):
			l.logger.WithFields(logrus.Fields{
				"entity":  desc.Name,
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Warnf("Transient fetch failure: %v", err)
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, lastErr
			}
			backoff = nextBackoff(backoff, l.cfg.MaxBackoff)
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// upsertWithRetry retries the specific failed write a bounded number of
// times; pages committed by earlier iterations are never rolled back.
func (l *Loop) upsertWithRetry(ctx context.Context, tenantID string, desc *platform.Descriptor, records []models.NormalizedRecord) error {
	backoff := l.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		err := l.store.UpsertRecords(ctx, tenantID, desc, records)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsStore(err) {
			return err
		}
		l.logger.WithFields(logrus.Fields{
			"entity":  desc.Name,
			"attempt": attempt + 1,
		}).Warnf("Store write failure: %v", err)
		if err := sleepContext(ctx, backoff); err != nil {
			return lastErr
		}
		backoff = nextBackoff(backoff, l.cfg.MaxBackoff)
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	return time.Duration(math.Min(float64(current*2), float64(max)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
