// Package sqlite provides an embedded, file-backed [audit.Sink] using the
// pure-Go modernc.org/sqlite driver. It suits single-node deployments that
// want an audit trail surviving restarts without running PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/pkg/types"
)

var _ audit.Sink = (*Sink)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id              TEXT    PRIMARY KEY,
	recorded_at_ns  INTEGER NOT NULL,
	input_length    INTEGER NOT NULL,
	output_length   INTEGER NOT NULL,
	model_used      TEXT    NOT NULL,
	requested_types TEXT    NOT NULL,
	confidence      REAL    NOT NULL,
	degraded        INTEGER NOT NULL DEFAULT 0,
	result          TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_recorded
	ON audit_entries(recorded_at_ns DESC, id DESC);
`

// Option configures a [Sink].
type Option func(*Sink)

// WithRetention deletes all but the newest n entries after each append.
// Zero keeps everything.
func WithRetention(n int) Option {
	return func(s *Sink) { s.retention = n }
}

// Sink stores audit entries in a SQLite database file.
type Sink struct {
	db        *sql.DB
	retention int
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite audit: open: %w", err)
	}
	// One connection keeps an in-memory database coherent and serialises
	// writers on a file database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite audit: ping: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite audit: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite audit: busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite audit: migrate: %w", err)
	}

	s := &Sink{db: db}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Append implements [audit.Sink].
func (s *Sink) Append(ctx context.Context, e types.AuditEntry) error {
	result, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("sqlite audit: encode result: %w", err)
	}
	requested := e.RequestedTypes
	if requested == nil {
		requested = []string{}
	}
	reqJSON, err := json.Marshal(requested)
	if err != nil {
		return fmt.Errorf("sqlite audit: encode types: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite audit: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries
		    (id, recorded_at_ns, input_length, output_length, model_used,
		     requested_types, confidence, degraded, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixNano(), e.InputLength, e.OutputLength, e.ModelUsed,
		string(reqJSON), e.Confidence, e.Degraded, string(result),
	); err != nil {
		return fmt.Errorf("sqlite audit: append: %w", err)
	}

	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM audit_entries
			WHERE id NOT IN (
				SELECT id FROM audit_entries
				ORDER BY recorded_at_ns DESC, id DESC
				LIMIT ?)`, s.retention); err != nil {
			return fmt.Errorf("sqlite audit: prune: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite audit: commit: %w", err)
	}
	return nil
}

// Recent implements [audit.Sink].
func (s *Sink) Recent(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at_ns, input_length, output_length, model_used,
		       requested_types, confidence, degraded, result
		FROM audit_entries
		ORDER BY recorded_at_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite audit: recent: %w", err)
	}
	defer rows.Close()

	out := make([]types.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e                 types.AuditEntry
			ns                int64
			requested, result string
		)
		if err := rows.Scan(&e.ID, &ns, &e.InputLength, &e.OutputLength, &e.ModelUsed,
			&requested, &e.Confidence, &e.Degraded, &result); err != nil {
			return nil, fmt.Errorf("sqlite audit: scan: %w", err)
		}
		e.Timestamp = time.Unix(0, ns).UTC()
		if err := json.Unmarshal([]byte(requested), &e.RequestedTypes); err != nil {
			return nil, fmt.Errorf("sqlite audit: decode types %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(result), &e.Result); err != nil {
			return nil, fmt.Errorf("sqlite audit: decode result %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite audit: rows: %w", err)
	}
	return out, nil
}

// Ping implements [audit.Sink].
func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [audit.Sink].
func (s *Sink) Close() error {
	return s.db.Close()
}
