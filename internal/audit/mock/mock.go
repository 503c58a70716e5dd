// Package mock provides a configurable [audit.Sink] test double.
//
// The sink keeps appended entries in memory (so Recent behaves like a real
// store) unless an error field is set, and records every call.
//
//	sink := &mock.Sink{AppendErr: errors.New("db down")}
//	store := audit.NewStore(audit.WithPrimary(sink))
//
//	if sink.CallCount("Append") != 1 { … }
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/pkg/types"
)

var _ audit.Sink = (*Sink)(nil)

// Call records the name of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Sink is an in-memory [audit.Sink]. The zero value is ready to use.
type Sink struct {
	mu    sync.Mutex
	calls []Call

	entries []types.AuditEntry

	// AppendErr is returned by Append when non-nil; the entry is not stored.
	AppendErr error

	// RecentErr is returned by Recent when non-nil.
	RecentErr error

	// PingErr is returned by Ping.
	PingErr error

	// CloseErr is returned by Close.
	CloseErr error
}

func (s *Sink) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// Append implements [audit.Sink].
func (s *Sink) Append(_ context.Context, e types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Append", e.ID)
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.entries = append(s.entries, e.Clone())
	return nil
}

// Recent implements [audit.Sink].
func (s *Sink) Recent(_ context.Context, limit int) ([]types.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Recent", limit)
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	out := slices.Clone(s.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements [audit.Sink].
func (s *Sink) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Ping")
	return s.PingErr
}

// Close implements [audit.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Close")
	return s.CloseErr
}

// Entries returns a copy of the stored entries in append order.
func (s *Sink) Entries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// SetAppendErr changes AppendErr under the lock.
func (s *Sink) SetAppendErr(err error) {
	s.mu.Lock()
	s.AppendErr = err
	s.mu.Unlock()
}

// Calls returns a copy of all recorded invocations.
func (s *Sink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how many times the named method was invoked.
func (s *Sink) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
