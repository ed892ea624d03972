package models

import (
	"encoding/json"
	"time"
)

// NormalizedRecord is one external object mapped through an entity
// descriptor's field map. Fields holds the typed projection values in the
// descriptor's column order; Payload is the untouched external object.
type NormalizedRecord struct {
	ExternalID string          `json:"external_id"`
	Fields     []interface{}   `json:"fields"`
	Payload    json.RawMessage `json:"payload"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// Page is one bounded response from the external platform
type Page struct {
	Records    []NormalizedRecord `json:"records"`
	HasMore    bool               `json:"has_more"`
	NextCursor string             `json:"next_cursor,omitempty"`
}
