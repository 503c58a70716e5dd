// Package types defines the shared types used across all reportfix packages.
//
// These types form the lingua franca between the correction engine, the remote
// correction backends, the quality calculator, the knowledge ranker, the audit
// trail and the orchestrator. Each package keeps its own internal types; the
// cross-cutting records live here to avoid circular imports.
package types

import (
	"maps"
	"slices"
	"time"
)

// CorrectionType describes one configurable correction strategy.
type CorrectionType struct {
	// ID is the stable identifier referenced by requests (e.g. "terminology").
	ID string `json:"id"`

	// Name is the human-readable label.
	Name string `json:"name"`

	// Description explains what the strategy changes.
	Description string `json:"description"`

	// Enabled reports whether requests may select this type.
	Enabled bool `json:"enabled"`

	// Priority orders application; lower values run first. Ties break on ID.
	Priority int `json:"priority"`
}

// AIModelConfig describes a correction model the orchestrator can select.
type AIModelConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Provider labels the backend serving this model. LocalProvider means the
	// in-process rule engine; anything else is a remote backend.
	Provider string `json:"provider"`

	// MaxInputTokens caps the prompt size sent to a remote backend. Zero disables
	// the check.
	MaxInputTokens int `json:"max_input_tokens"`

	Temperature float64 `json:"temperature"`
	Enabled     bool    `json:"enabled"`

	// Primary marks the preferred default model.
	Primary bool `json:"primary"`

	// Fallbacks lists remote model IDs tried, in order, after this one fails.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// LocalProvider is the AIModelConfig.Provider value of the in-process engine.
const LocalProvider = "local"

// IsLocal reports whether the model is served by the in-process engine.
func (m AIModelConfig) IsLocal() bool { return m.Provider == LocalProvider }

// KnowledgeSource is a reference document candidate for retrieval.
type KnowledgeSource struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Weight      float64   `json:"weight"`
	Enabled     bool      `json:"enabled"`
	LastUpdated time.Time `json:"last_updated"`
}

// RankedSource is a KnowledgeSource scored against a specific report.
type RankedSource struct {
	KnowledgeSource

	// Relevance is in [0, 1].
	Relevance float64 `json:"relevance"`

	// Excerpt is a short passage shown alongside the reference.
	Excerpt string `json:"excerpt,omitempty"`
}

// CorrectionRequest is the input of one correction run.
type CorrectionRequest struct {
	Text              string   `json:"text"`
	CorrectionTypeIDs []string `json:"correction_type_ids"`
	ModelID           string   `json:"model_id,omitempty"`
}

// AppliedCorrection summarises what one strategy changed. Count is always > 0;
// strategies that changed nothing are omitted from results.
type AppliedCorrection struct {
	Type        string `json:"type"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Quality metric names.
const (
	MetricConfidence   = "confidence"
	MetricCompleteness = "completeness"
	MetricReadability  = "readability"
	MetricAccuracy     = "accuracy"
)

// QualityMetrics maps metric names to scores in [0, 1].
type QualityMetrics map[string]float64

// Confidence returns the overall confidence score.
func (q QualityMetrics) Confidence() float64 { return q[MetricConfidence] }

// CorrectionResult is the full outcome of a correction run.
type CorrectionResult struct {
	OriginalText       string              `json:"original_text"`
	CorrectedText      string              `json:"corrected_text"`
	AppliedCorrections []AppliedCorrection `json:"applied_corrections"`
	Quality            QualityMetrics      `json:"quality_metrics"`
	Sources            []RankedSource      `json:"ranked_sources"`
	ModelUsed          AIModelConfig       `json:"model_used"`

	// Degraded is set when the remote backend failed and the local engine
	// produced the result.
	Degraded bool `json:"degraded"`

	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// AuditEntry is one immutable record in the audit trail.
type AuditEntry struct {
	// ID is time-ordered; it is assigned by the audit store.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	InputLength    int      `json:"input_length"`
	OutputLength   int      `json:"output_length"`
	ModelUsed      string   `json:"model_used"`
	RequestedTypes []string `json:"requested_types"`
	Confidence     float64  `json:"confidence"`
	Degraded       bool     `json:"degraded"`

	// Result is a copy of the correction outcome.
	Result CorrectionResult `json:"result"`
}

// Clone returns a deep copy of r.
func (r CorrectionResult) Clone() CorrectionResult {
	r.AppliedCorrections = slices.Clone(r.AppliedCorrections)
	r.Quality = maps.Clone(r.Quality)
	r.Sources = slices.Clone(r.Sources)
	for i := range r.Sources {
		r.Sources[i].Keywords = slices.Clone(r.Sources[i].Keywords)
	}
	r.ModelUsed.Fallbacks = slices.Clone(r.ModelUsed.Fallbacks)
	return r
}

// Clone returns a deep copy of e.
func (e AuditEntry) Clone() AuditEntry {
	e.RequestedTypes = slices.Clone(e.RequestedTypes)
	e.Result = e.Result.Clone()
	return e
}

// WarningCode classifies a non-fatal degradation attached to a response.
type WarningCode string

const (
	WarnModelUnavailable        WarningCode = "model_unavailable"
	WarnRemoteCorrectionFailure WarningCode = "remote_correction_failure"
	WarnPersistenceDegraded     WarningCode = "persistence_degraded"
	WarnPersistenceFailure      WarningCode = "persistence_failure"
)

// Warning is a non-fatal condition surfaced to the caller.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can be asked for a JSON-only reply.
	SupportsJSONMode bool
}
