// Package audit keeps the trail of completed corrections.
//
// A [Store] writes every entry to a bounded local secondary (an in-memory
// [Ring] by default) and to an optional durable primary [Sink]. Recording fails only when both writes fail. Reads prefer
// the primary and fall back to the secondary, reporting which one answered.
// The two destinations are eventually consistent: an entry that only reached
// the secondary is invisible to a later read served by the primary.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/pkg/types"
)

// ErrPersistence is returned by [Store.Record] when neither destination
// accepted the entry.
var ErrPersistence = errors.New("audit: persistence failed")

// Sink is one audit destination.
type Sink interface {
	// Append stores e. Implementations must not retain references into e.
	Append(ctx context.Context, e types.AuditEntry) error

	// Recent returns at most limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]types.AuditEntry, error)

	// Ping reports whether the sink is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Source names the destination that served a read.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Ack reports where an entry landed.
type Ack struct {
	// Remote is true when the primary accepted the entry.
	Remote bool

	// Local is true when the secondary accepted the entry.
	Local bool

	// RemoteErr is the primary's failure, nil when it succeeded or when no
	// primary is configured.
	RemoteErr error
}

// Degraded reports whether a configured primary missed the entry while the
// secondary kept it.
func (a Ack) Degraded() bool { return a.RemoteErr != nil && a.Local }

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithPrimary sets the durable sink written first and read preferentially.
func WithPrimary(s Sink) Option {
	return func(st *Store) { st.primary = s }
}

// WithSecondary replaces the default in-memory ring.
func WithSecondary(s Sink) Option {
	return func(st *Store) { st.secondary = s }
}

// WithRetention bounds the number of entries kept and returned.
// Default: [DefaultRetention].
func WithRetention(n int) Option {
	return func(st *Store) {
		if n > 0 {
			st.retention = n
		}
	}
}

// WithPrimaryTimeout bounds each call to the primary sink. Default: 5s.
func WithPrimaryTimeout(d time.Duration) Option {
	return func(st *Store) {
		if d > 0 {
			st.primaryTimeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// Store is the dual-destination audit trail. It is safe for concurrent use.
// Stamping is serialised so that timestamps never decrease in append order.
type Store struct {
	primary        Sink
	secondary      Sink
	retention      int
	primaryTimeout time.Duration
	now            func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewStore creates a Store. Without [WithPrimary] the secondary is the only
// destination.
func NewStore(opts ...Option) *Store {
	s := &Store{
		retention:      DefaultRetention,
		primaryTimeout: 5 * time.Second,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.secondary == nil {
		s.secondary = NewRing(s.retention)
	}
	return s
}

// Retention returns the configured bound.
func (s *Store) Retention() int { return s.retention }

// HasPrimary reports whether a durable sink is configured.
func (s *Store) HasPrimary() bool { return s.primary != nil }

// Record stamps e with a fresh ID and timestamp and writes it to both
// destinations. The stamped entry is returned even on error.
//
// Stamping and the secondary write happen under the store lock, so the local
// view is always in timestamp order. The primary write runs outside it; a slow
// primary delays only its own caller.
func (s *Store) Record(ctx context.Context, e types.AuditEntry) (types.AuditEntry, Ack, error) {
	s.mu.Lock()
	id, err := uuid.NewV7()
	if err != nil {
		s.mu.Unlock()
		return e, Ack{}, fmt.Errorf("audit: generate id: %w", err)
	}
	ts := s.now().UTC()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	e.ID = id.String()
	e.Timestamp = ts
	localErr := s.secondary.Append(ctx, e)
	s.mu.Unlock()

	ack := Ack{Local: localErr == nil}
	if localErr != nil {
		observe.Logger(ctx).Warn("audit: local write failed", "id", e.ID, "err", localErr)
	}

	if s.primary != nil {
		pctx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
		ack.RemoteErr = s.primary.Append(pctx, e)
		cancel()
		ack.Remote = ack.RemoteErr == nil
		if ack.RemoteErr != nil {
			observe.Logger(ctx).Warn("audit: primary write failed", "id", e.ID, "err", ack.RemoteErr)
		}
	}

	if !ack.Remote && !ack.Local {
		return e, ack, fmt.Errorf("%w: %w", ErrPersistence, errors.Join(ack.RemoteErr, localErr))
	}
	return e, ack, nil
}

// List returns up to limit entries, newest first, never more than the
// retention bound. A non-positive limit means the bound itself.
func (s *Store) List(ctx context.Context, limit int) ([]types.AuditEntry, Source, error) {
	if limit <= 0 || limit > s.retention {
		limit = s.retention
	}

	if s.primary != nil {
		pctx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
		entries, err := s.primary.Recent(pctx, limit)
		cancel()
		if err == nil {
			return entries, SourceRemote, nil
		}
		observe.Logger(ctx).Warn("audit: primary read failed, serving local view", "err", err)
	}

	entries, err := s.secondary.Recent(ctx, limit)
	if err != nil {
		return nil, SourceLocal, fmt.Errorf("audit: list: %w", err)
	}
	return entries, SourceLocal, nil
}

// Ping checks the primary. Without a primary it checks the secondary.
func (s *Store) Ping(ctx context.Context) error {
	if s.primary != nil {
		return s.primary.Ping(ctx)
	}
	return s.secondary.Ping(ctx)
}

// Close closes both destinations.
func (s *Store) Close() error {
	var errs []error
	if s.primary != nil {
		errs = append(errs, s.primary.Close())
	}
	errs = append(errs, s.secondary.Close())
	return errors.Join(errs...)
}
