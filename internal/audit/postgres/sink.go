package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/pkg/types"
)

var _ audit.Sink = (*Sink)(nil)

// Option configures a [Sink].
type Option func(*Sink)

// WithRetention deletes all but the newest n entries after each append.
// Zero keeps everything.
func WithRetention(n int) Option {
	return func(s *Sink) { s.retention = n }
}

// txStarter opens the transaction an append runs in. *pgxpool.Pool
// satisfies it.
type txStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Sink writes audit entries to PostgreSQL. It is safe for concurrent use.
type Sink struct {
	pool      *pgxpool.Pool
	tx        txStarter
	retention int
}

// NewSink connects to dsn, verifies the connection and runs [Migrate].
func NewSink(ctx context.Context, dsn string, opts ...Option) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres audit: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres audit: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres audit: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres audit: %w", err)
	}

	s := &Sink{pool: pool, tx: pool}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Append implements [audit.Sink].
func (s *Sink) Append(ctx context.Context, e types.AuditEntry) error {
	result, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("postgres audit: encode result: %w", err)
	}
	requested := e.RequestedTypes
	if requested == nil {
		requested = []string{}
	}

	tx, err := s.tx.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres audit: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insert = `
		INSERT INTO audit_entries
		    (id, recorded_at, input_length, output_length, model_used,
		     requested_types, confidence, degraded, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.Exec(ctx, insert,
		e.ID, e.Timestamp, e.InputLength, e.OutputLength, e.ModelUsed,
		requested, e.Confidence, e.Degraded, result,
	); err != nil {
		return fmt.Errorf("postgres audit: append: %w", err)
	}

	if s.retention > 0 {
		const prune = `
			DELETE FROM audit_entries
			WHERE  id NOT IN (
			    SELECT id FROM audit_entries
			    ORDER  BY recorded_at DESC, id DESC
			    LIMIT  $1)`
		if _, err := tx.Exec(ctx, prune, s.retention); err != nil {
			return fmt.Errorf("postgres audit: prune: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres audit: commit: %w", err)
	}
	return nil
}

// Recent implements [audit.Sink].
func (s *Sink) Recent(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	const q = `
		SELECT id, recorded_at, input_length, output_length, model_used,
		       requested_types, confidence, degraded, result
		FROM   audit_entries
		ORDER  BY recorded_at DESC, id DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres audit: recent: %w", err)
	}
	defer rows.Close()

	out := make([]types.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e      types.AuditEntry
			result []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.InputLength, &e.OutputLength, &e.ModelUsed,
			&e.RequestedTypes, &e.Confidence, &e.Degraded, &result,
		); err != nil {
			return nil, fmt.Errorf("postgres audit: scan: %w", err)
		}
		if err := json.Unmarshal(result, &e.Result); err != nil {
			return nil, fmt.Errorf("postgres audit: decode result %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres audit: rows: %w", err)
	}
	return out, nil
}

// Ping implements [audit.Sink].
func (s *Sink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [audit.Sink].
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}
