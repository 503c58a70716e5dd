package audit

import (
	"context"
	"sync"

	"github.com/MrWong99/reportfix/pkg/types"
)

// DefaultRetention is the ring capacity used when none is configured.
const DefaultRetention = 500

var _ Sink = (*Ring)(nil)

// Ring is a fixed-capacity in-memory [Sink]. Once full, each append evicts
// the oldest entry. Entries are copied on the way in and on the way out.
type Ring struct {
	mu    sync.Mutex
	buf   []types.AuditEntry
	head  int // next write slot
	count int
}

// NewRing returns a ring holding at most capacity entries. A non-positive
// capacity selects [DefaultRetention].
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &Ring{buf: make([]types.AuditEntry, capacity)}
}

// Append stores a copy of e.
func (r *Ring) Append(_ context.Context, e types.AuditEntry) error {
	e = e.Clone()
	r.mu.Lock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything held.
func (r *Ring) Recent(_ context.Context, limit int) ([]types.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.AuditEntry, n)
	size := len(r.buf)
	for i := range n {
		out[i] = r.buf[(r.head-1-i+size)%size].Clone()
	}
	return out, nil
}

// Ping always succeeds.
func (r *Ring) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Ring) Close() error { return nil }

// Len returns the number of entries held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }
