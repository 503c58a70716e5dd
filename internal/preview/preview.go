// Package preview computes cheap, debounced correction previews while a
// report is being typed.
//
// Each logical session (an editor, a WebSocket connection) owns at most one
// pending preview. Scheduling again within the quiet period replaces the
// pending one, so only the latest text of a burst is ever processed. A
// preview runs the local engine over the head of the text only; it never
// calls a remote backend, scores quality or writes to the audit trail.
package preview

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/pkg/types"
)

const (
	// DefaultQuietPeriod is how long a session must stay idle before its
	// latest text is previewed.
	DefaultQuietPeriod = 400 * time.Millisecond

	// DefaultHeadChars bounds the number of runes a preview processes.
	DefaultHeadChars = 500
)

// ErrClosed is returned by [Scheduler.Schedule] after [Scheduler.Close].
var ErrClosed = errors.New("preview: scheduler closed")

// Result is a computed preview.
type Result struct {
	Session string `json:"session,omitempty"`

	// Text is the corrected head of the submitted text.
	Text string `json:"text"`

	// Truncated reports whether the submitted text was longer than the head.
	Truncated bool `json:"truncated"`

	AppliedCorrections []types.AppliedCorrection `json:"applied_corrections"`
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithQuietPeriod sets the debounce window. Non-positive values are ignored.
func WithQuietPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.quiet = d
		}
	}
}

// WithHeadChars sets the preview head length in runes. Non-positive values
// are ignored.
func WithHeadChars(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.headChars = n
		}
	}
}

// WithMetrics overrides the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler debounces preview requests per session. All methods are safe for
// concurrent use.
type Scheduler struct {
	engine     *correction.Engine
	strategies []correction.Strategy
	quiet      time.Duration
	headChars  int
	metrics    *observe.Metrics

	mu      sync.Mutex
	pending map[string]*pending
	gen     uint64 // monotonic; a timer only fires if its generation is current
	closed  bool
}

// New creates a Scheduler applying strategies, in order, to each preview.
func New(strategies []correction.Strategy, opts ...Option) *Scheduler {
	s := &Scheduler{
		// Previews of partial input never switch to the report template.
		engine:     correction.NewEngine(correction.WithSyntheticMinLength(0)),
		strategies: strategies,
		quiet:      DefaultQuietPeriod,
		headChars:  DefaultHeadChars,
		pending:    make(map[string]*pending),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// QuietPeriod returns the debounce window.
func (s *Scheduler) QuietPeriod() time.Duration { return s.quiet }

// Schedule replaces any pending preview of session with one for text that
// fires after the quiet period. deliver is called from a timer goroutine
// with the computed result and must not block for long.
func (s *Scheduler) Schedule(session, text string, deliver func(Result)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	ctx := context.Background()
	if p, ok := s.pending[session]; ok {
		if p.timer.Stop() {
			s.metrics.RecordPreview(ctx, "superseded")
		}
	} else {
		s.metrics.PreviewSessions.Add(ctx, 1)
	}

	s.gen++
	gen := s.gen
	s.pending[session] = &pending{
		gen: gen,
		timer: time.AfterFunc(s.quiet, func() {
			s.fire(session, gen, text, deliver)
		}),
	}
	return nil
}

// fire computes and delivers a preview unless it was superseded or cancelled
// after its timer had already started.
func (s *Scheduler) fire(session string, gen uint64, text string, deliver func(Result)) {
	s.mu.Lock()
	p, ok := s.pending[session]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, session)
	s.mu.Unlock()

	ctx := context.Background()
	s.metrics.PreviewSessions.Add(ctx, -1)

	start := time.Now()
	res := s.Compute(text)
	res.Session = session
	s.metrics.PreviewDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordPreview(ctx, "delivered")

	deliver(res)
}

// Cancel drops the pending preview of session. It reports whether one was
// pending.
func (s *Scheduler) Cancel(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(session)
}

func (s *Scheduler) cancelLocked(session string) bool {
	p, ok := s.pending[session]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, session)
	ctx := context.Background()
	s.metrics.PreviewSessions.Add(ctx, -1)
	s.metrics.RecordPreview(ctx, "cancelled")
	return true
}

// Pending returns the number of sessions with a preview waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels every pending preview. Later calls to Schedule fail with
// [ErrClosed]. Close is idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for session := range s.pending {
		s.cancelLocked(session)
	}
	return nil
}

// Compute runs the preview synchronously, without debouncing.
func (s *Scheduler) Compute(text string) Result {
	head, truncated := headOf(text, s.headChars)
	out, applied := s.engine.Apply(head, s.strategies)
	return Result{Text: out, Truncated: truncated, AppliedCorrections: applied}
}

// headOf returns the first n runes of text.
func headOf(text string, n int) (string, bool) {
	if utf8.RuneCountInString(text) <= n {
		return text, false
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos], true
		}
		i++
	}
	return text, false
}
