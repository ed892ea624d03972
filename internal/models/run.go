package models

import "time"

// EntityRunStatus is the terminal outcome of one entity's run in a pass
type EntityRunStatus string

const (
	EntityRunCompleted EntityRunStatus = "completed"
	EntityRunFailed    EntityRunStatus = "failed"
	EntityRunSkipped   EntityRunStatus = "skipped"
)

// EntitySyncResult summarizes one entity type's run within an orchestration pass
type EntitySyncResult struct {
	Entity         string          `json:"entity"`
	Status         EntityRunStatus `json:"status"`
	Mode           SyncMode        `json:"mode,omitempty"`
	RecordsFetched int64           `json:"records_fetched"`
	Pages          int             `json:"pages"`
	Duration       time.Duration   `json:"duration_ms"`
	Error          string          `json:"error,omitempty"`
}

// PassSummary is the result of one orchestration pass over a tenant
type PassSummary struct {
	RunID      string             `json:"run_id"`
	TenantID   string             `json:"tenant_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []EntitySyncResult `json:"results"`
}

// Failed reports whether any entity in the pass ended in failure
func (p *PassSummary) Failed() bool {
	for _, r := range p.Results {
		if r.Status == EntityRunFailed {
			return true
		}
	}
	return false
}
