package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
)

const syncStateColumns = `tenant_id, entity, last_full_sync_at, last_incremental_sync_at, record_count, status, last_error, updated_at`

func scanSyncState(scan func(...interface{}) error) (*models.SyncState, error) {
	var state models.SyncState
	var lastFull, lastIncr sql.NullTime
	var lastError sql.NullString
	if err := scan(
		&state.TenantID,
		&state.Entity,
		&lastFull,
		&lastIncr,
		&state.RecordCount,
		&state.Status,
		&lastError,
		&state.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastFull.Valid {
		state.LastFullSyncAt = &lastFull.Time
	}
	if lastIncr.Valid {
		state.LastIncrementalSyncAt = &lastIncr.Time
	}
	state.LastError = lastError.String
	return &state, nil
}

// GetSyncState retrieves the sync state for one (tenant, entity). Returns
// nil without error when the entity has never been synced.
func (s *PostgresStore) GetSyncState(ctx context.Context, tenantID, entity string) (*models.SyncState, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM sync_state
		WHERE tenant_id = $1 AND entity = $2
	`, syncStateColumns), tenantID, entity)

	state, err := scanSyncState(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, apperrors.WithContext(apperrors.NewStoreError("failed to get sync state", err), entity, "get_state")
	}
	return state, nil
}

// ListSyncStates retrieves all sync states for a tenant
func (s *PostgresStore) ListSyncStates(ctx context.Context, tenantID string) ([]*models.SyncState, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM sync_state
		WHERE tenant_id = $1
		ORDER BY entity
	`, syncStateColumns), tenantID)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to query sync states", err)
	}
	defer rows.Close()

	var states []*models.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows.Scan)
		if err != nil {
			return nil, apperrors.NewStoreError("failed to scan sync state row", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("error iterating sync state rows", err)
	}
	return states, nil
}

// ClaimSyncRun atomically transitions the (tenant, entity) row to
// in_progress, creating it on first sync. Returns false when another run
// already holds the row, which is the single-writer gate for the engine.
func (s *PostgresStore) ClaimSyncRun(ctx context.Context, tenantID, entity string) (bool, error) {
	var claimed string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sync_state (tenant_id, entity, record_count, status, updated_at)
		VALUES ($1, $2, 0, $3, NOW())
		ON CONFLICT (tenant_id, entity) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
		WHERE sync_state.status <> $3
		RETURNING entity
	`, tenantID, entity, models.SyncStatusInProgress).Scan(&claimed)

	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, apperrors.WithContext(apperrors.NewStoreError("failed to claim sync run", err), entity, "claim_run")
	}
	return true, nil
}

// CheckpointRecordCount records the cumulative record count of the run in
// flight so progress is observable mid-run. The watermark is deliberately
// not touched here.
func (s *PostgresStore) CheckpointRecordCount(ctx context.Context, tenantID, entity string, count int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_state
		SET record_count = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND entity = $2
	`, tenantID, entity, count)
	if err != nil {
		return apperrors.WithContext(apperrors.NewStoreError("failed to checkpoint record count", err), entity, "checkpoint")
	}
	return nil
}

// CompleteSyncRun marks the run completed and advances the watermark for
// the mode that ran. GREATEST keeps the watermark monotonic even if an
// out-of-order completion slips through.
func (s *PostgresStore) CompleteSyncRun(ctx context.Context, tenantID, entity string, mode models.SyncMode, watermark time.Time, count int64) error {
	column := "last_incremental_sync_at"
	if mode == models.SyncModeFull {
		column = "last_full_sync_at"
	}

	query := fmt.Sprintf(`
		UPDATE sync_state
		SET status = $3,
			record_count = $4,
			%s = GREATEST(COALESCE(%s, 'epoch'::timestamptz), $5),
			last_error = '',
			updated_at = NOW()
		WHERE tenant_id = $1 AND entity = $2
	`, column, column)

	result, err := s.db.ExecContext(ctx, query, tenantID, entity, models.SyncStatusCompleted, count, watermark)
	if err != nil {
		return apperrors.WithContext(apperrors.NewStoreError("failed to complete sync run", err), entity, "complete_run")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.WithContext(apperrors.NewStoreError("no sync state row to complete", nil), entity, "complete_run")
	}
	return nil
}

// FailSyncRun marks the run failed, preserving the prior watermark untouched
func (s *PostgresStore) FailSyncRun(ctx context.Context, tenantID, entity, errSummary string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_state
		SET status = $3, last_error = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND entity = $2
	`, tenantID, entity, models.SyncStatusFailed, errSummary)
	if err != nil {
		return apperrors.WithContext(apperrors.NewStoreError("failed to mark sync run failed", err), entity, "fail_run")
	}
	return nil
}
