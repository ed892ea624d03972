package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncStatusValue is the lifecycle state of a (tenant, entity) sync
type SyncStatusValue string

const (
	SyncStatusIdle       SyncStatusValue = "idle"
	SyncStatusInProgress SyncStatusValue = "in_progress"
	SyncStatusCompleted  SyncStatusValue = "completed"
	SyncStatusFailed     SyncStatusValue = "failed"
)

// SyncMode distinguishes a full collection fetch from a watermark-filtered one
type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

// SyncState tracks the sync bookkeeping for one entity type of one tenant.
// Watermarks only move forward, and only on successful run completion.
type SyncState struct {
	TenantID              string          `json:"tenant_id"`
	Entity                string          `json:"entity"`
	LastFullSyncAt        *time.Time      `json:"last_full_sync_at,omitempty"`
	LastIncrementalSyncAt *time.Time      `json:"last_incremental_sync_at,omitempty"`
	RecordCount           int64           `json:"record_count"`
	Status                SyncStatusValue `json:"status"`
	LastError             string          `json:"last_error,omitempty"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Watermark returns the most recent successful sync timestamp, or nil if
// this entity has never completed a run (forcing a full sync).
func (s *SyncState) Watermark() *time.Time {
	switch {
	case s.LastIncrementalSyncAt != nil && s.LastFullSyncAt != nil:
		if s.LastIncrementalSyncAt.After(*s.LastFullSyncAt) {
			return s.LastIncrementalSyncAt
		}
		return s.LastFullSyncAt
	case s.LastIncrementalSyncAt != nil:
		return s.LastIncrementalSyncAt
	default:
		return s.LastFullSyncAt
	}
}

// String returns the JSON string representation of the sync state
func (s *SyncState) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal sync state: %v"}`, err)
	}
	return string(data)
}
