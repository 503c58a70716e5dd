// Package postgres provides a PostgreSQL-backed [audit.Sink].
//
// Entries live in a single audit_entries table. Scalar summary fields are
// stored as columns so that the trail can be queried with plain SQL; the full
// correction result is kept as JSONB. [Migrate] creates the table and its
// index idempotently.
//
// Usage:
//
//	sink, err := postgres.NewSink(ctx, dsn, postgres.WithRetention(500))
//	if err != nil { … }
//	store := audit.NewStore(audit.WithPrimary(sink))
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlAuditEntries = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id              TEXT             PRIMARY KEY,
    recorded_at     TIMESTAMPTZ      NOT NULL,
    input_length    INTEGER          NOT NULL,
    output_length   INTEGER          NOT NULL,
    model_used      TEXT             NOT NULL,
    requested_types TEXT[]           NOT NULL DEFAULT '{}',
    confidence      DOUBLE PRECISION NOT NULL,
    degraded        BOOLEAN          NOT NULL DEFAULT false,
    result          JSONB            NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_recorded_at
    ON audit_entries (recorded_at DESC, id DESC);
`

// Migrate creates the audit schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlAuditEntries); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
