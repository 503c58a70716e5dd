// Package correction implements the in-process report correction engine.
//
// A [Strategy] is one correction pass (terminology, accuracy, clarity, ...).
// The [Engine] applies an ordered list of strategies to a report and reports
// one [types.AppliedCorrection] per strategy that changed something. Every
// built-in strategy is deterministic and idempotent: running it on its own
// output finds nothing new to change.
//
// The engine is also the fallback used when every remote correction backend
// is unavailable, so it never performs I/O.
package correction

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/reportfix/pkg/types"
)

// SyntheticTemplateType is the AppliedCorrection.Type reported when a very short
// input was replaced by the structured report template.
const SyntheticTemplateType = "synthetic_template"

const defaultSyntheticMinLength = 20

// Strategy is a single correction pass.
//
// Implementations must be pure, deterministic and safe for concurrent use.
type Strategy interface {
	// ID returns the correction type identifier this strategy implements.
	ID() string

	// Apply returns the corrected text and the number of edits made. A count of
	// zero means text is returned unchanged.
	Apply(text string) (string, int)

	// Describe returns a human-readable summary for count edits.
	Describe(count int) string
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithSyntheticMinLength sets the trimmed rune length below which a report is
// replaced by the structured template before the other passes run. Zero
// disables the synthetic path. Default: 20.
func WithSyntheticMinLength(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.syntheticMinLength = n
		}
	}
}

// Engine applies strategies in order. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	syntheticMinLength int
}

// NewEngine returns an [Engine] configured with opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{syntheticMinLength: defaultSyntheticMinLength}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Apply runs strategies against text strictly in the given order. Strategies
// that change nothing are omitted from the returned list. An empty strategy
// list returns text unchanged with an empty, non-nil list.
func (e *Engine) Apply(text string, strategies []Strategy) (string, []types.AppliedCorrection) {
	applied := make([]types.AppliedCorrection, 0, len(strategies)+1)
	if len(strategies) == 0 {
		return text, applied
	}

	if out, ok := e.synthesize(text); ok {
		text = out
		applied = append(applied, types.AppliedCorrection{
			Type:        SyntheticTemplateType,
			Count:       1,
			Description: "input too short for word-level correction; replaced with structured report template",
		})
	}

	for _, s := range strategies {
		out, n := s.Apply(text)
		if n <= 0 {
			continue
		}
		text = out
		applied = append(applied, types.AppliedCorrection{
			Type:        s.ID(),
			Count:       n,
			Description: s.Describe(n),
		})
	}
	return text, applied
}

// IsSynthetic reports whether applied contains the synthetic template marker.
func IsSynthetic(applied []types.AppliedCorrection) bool {
	for _, a := range applied {
		if a.Type == SyntheticTemplateType {
			return true
		}
	}
	return false
}

func (e *Engine) synthesize(text string) (string, bool) {
	if e.syntheticMinLength <= 0 {
		return text, false
	}
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 || n >= e.syntheticMinLength {
		return text, false
	}
	return findingsHeader + "\n" + trimmed + "\n\n" + impressionHeader + "\n" + syntheticImpression, true
}
