package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/fieldops/fieldsync/internal/models"
	"github.com/fieldops/fieldsync/internal/platform"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store defines the interface for database operations
type Store interface {
	// Raw entity operations
	UpsertRecords(ctx context.Context, tenantID string, desc *platform.Descriptor, records []models.NormalizedRecord) error
	CountRecords(ctx context.Context, tenantID string, desc *platform.Descriptor) (int64, error)

	// Sync state operations
	GetSyncState(ctx context.Context, tenantID, entity string) (*models.SyncState, error)
	ListSyncStates(ctx context.Context, tenantID string) ([]*models.SyncState, error)
	ClaimSyncRun(ctx context.Context, tenantID, entity string) (bool, error)
	CheckpointRecordCount(ctx context.Context, tenantID, entity string, count int64) error
	CompleteSyncRun(ctx context.Context, tenantID, entity string, mode models.SyncMode, watermark time.Time, count int64) error
	FailSyncRun(ctx context.Context, tenantID, entity, errSummary string) error
}

// PostgresStore implements Store over a process-wide connection pool. The
// pool is opened once at startup and shared by all entity loops; each
// logical write is a single atomic statement, so no pool-level locking is
// needed beyond the per-(tenant, entity) run gate.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
