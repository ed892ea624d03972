package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
	"github.com/fieldops/fieldsync/internal/platform"
)

// UpsertRecords merges one page of normalized records into the entity's raw
// table as a single set-based statement keyed by (tenant_id, external_id).
// Re-applying the same page leaves the table unchanged except fetched_at.
func (s *PostgresStore) UpsertRecords(ctx context.Context, tenantID string, desc *platform.Descriptor, records []models.NormalizedRecord) error {
	records = dedupeByExternalID(records)
	if len(records) == 0 {
		return nil
	}

	cols := desc.Columns()
	query := buildUpsertQuery(desc.Table, cols, len(records))

	fetchedAt := time.Now().UTC()
	argsPerRow := 2 + len(cols) + 2
	args := make([]interface{}, 0, len(records)*argsPerRow)
	for _, rec := range records {
		args = append(args, tenantID, rec.ExternalID)
		args = append(args, rec.Fields...)
		args = append(args, []byte(rec.Payload), fetchedAt)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.WithContext(
			apperrors.NewStoreError(fmt.Sprintf("failed to upsert %d records into %s", len(records), desc.Table), err),
			desc.Name, "upsert")
	}

	return nil
}

// dedupeByExternalID keeps the last occurrence of each external id, in page
// order. Postgres rejects a multi-row ON CONFLICT statement that touches the
// same row twice, and the platform can repeat a record within one page.
func dedupeByExternalID(records []models.NormalizedRecord) []models.NormalizedRecord {
	seen := make(map[string]int, len(records))
	deduped := records[:0:0]
	for _, rec := range records {
		if i, ok := seen[rec.ExternalID]; ok {
			deduped[i] = rec
			continue
		}
		seen[rec.ExternalID] = len(deduped)
		deduped = append(deduped, rec)
	}
	return deduped
}

// buildUpsertQuery renders the multi-row INSERT .. ON CONFLICT statement for
// an entity table. Table and column names come from the entity registry,
// never from external input.
func buildUpsertQuery(table string, cols []string, rows int) string {
	quotedCols := make([]string, 0, len(cols)+4)
	quotedCols = append(quotedCols, pq.QuoteIdentifier("tenant_id"), pq.QuoteIdentifier("external_id"))
	for _, c := range cols {
		quotedCols = append(quotedCols, pq.QuoteIdentifier(c))
	}
	quotedCols = append(quotedCols, pq.QuoteIdentifier("payload"), pq.QuoteIdentifier("fetched_at"))

	argsPerRow := len(quotedCols)
	values := make([]string, rows)
	for row := 0; row < rows; row++ {
		placeholders := make([]string, argsPerRow)
		for i := 0; i < argsPerRow; i++ {
			placeholders[i] = fmt.Sprintf("$%d", row*argsPerRow+i+1)
		}
		values[row] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	updates := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		qc := pq.QuoteIdentifier(c)
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", qc, qc))
	}
	updates = append(updates,
		`"payload" = EXCLUDED."payload"`,
		`"fetched_at" = EXCLUDED."fetched_at"`,
	)

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (tenant_id, external_id) DO UPDATE SET %s",
		pq.QuoteIdentifier(table),
		strings.Join(quotedCols, ", "),
		strings.Join(values, ", "),
		strings.Join(updates, ", "),
	)
}

// CountRecords returns the number of distinct synchronized rows for a tenant
func (s *PostgresStore) CountRecords(ctx context.Context, tenantID string, desc *platform.Descriptor) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE tenant_id = $1", pq.QuoteIdentifier(desc.Table))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, apperrors.WithContext(
			apperrors.NewStoreError(fmt.Sprintf("failed to count records in %s", desc.Table), err),
			desc.Name, "count")
	}
	return count, nil
}
