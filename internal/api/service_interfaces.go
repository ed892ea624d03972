package api

import (
	"context"

	"github.com/fieldops/fieldsync/internal/models"
)

// SyncService defines the interface for triggering orchestration passes
type SyncService interface {
	// SyncTenant runs one orchestration pass for a tenant; an empty entity
	// slice means all registered entity types
	SyncTenant(ctx context.Context, tenantID string, entities []string) (*models.PassSummary, error)
}

// StatusService defines the interface for reading sync bookkeeping
type StatusService interface {
	// ListStates returns the sync state rows for a tenant
	ListStates(ctx context.Context, tenantID string) ([]*models.SyncState, error)
}

// EntityCatalog defines the interface for listing registered entity types
type EntityCatalog interface {
	// Names returns the registered entity type names
	Names() []string
}
