// Package config provides the configuration schema, loader, hot-reload watcher
// and remote backend registry for reportfix.
//
// Every catalog (correction types, models, knowledge sources, export formats)
// is optional; omitted catalogs fall back to built-in defaults in
// [ApplyDefaults]. Catalogs are read once at startup and stay read-only.
package config

import (
	"time"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/export"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server           ServerConfig            `yaml:"server"`
	Pipeline         PipelineConfig          `yaml:"pipeline"`
	CorrectionTypes  []CorrectionTypeConfig  `yaml:"correction_types"`
	Terminology      []TermRuleConfig        `yaml:"terminology"`
	Accuracy         AccuracyConfig          `yaml:"accuracy"`
	Models           []ModelConfig           `yaml:"models"`
	KnowledgeSources []KnowledgeSourceConfig `yaml:"knowledge_sources"`
	Retrieval        RetrievalConfig         `yaml:"retrieval"`
	Quality          QualityConfig           `yaml:"quality"`
	Audit            AuditConfig             `yaml:"audit"`
	Preview          PreviewConfig           `yaml:"preview"`
	Export           ExportConfig            `yaml:"export"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on. Default: ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info. It is the only setting
	// applied on hot reload.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	// MaxInputChars bounds the report length in characters. Default: 20000.
	MaxInputChars int `yaml:"max_input_chars"`

	// RemoteTimeout bounds the remote correction chain. Default: 10s.
	RemoteTimeout time.Duration `yaml:"remote_timeout"`

	// FallbackModel names the local model reported when the rule engine
	// replaces a failed remote. Default: "local".
	FallbackModel string `yaml:"fallback_model"`

	// SyntheticMinLength is the trimmed length below which input is replaced
	// by the report template. 0 disables the template. Default: 20.
	SyntheticMinLength *int `yaml:"synthetic_min_length"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of every remote backend.
// Zero values take the breaker's own defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// CorrectionTypeConfig describes one correction type. The ID selects the
// built-in strategy implementing it.
type CorrectionTypeConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Enabled defaults to true when omitted.
	Enabled  *bool `yaml:"enabled"`
	Priority int   `yaml:"priority"`
}

// TermRuleConfig adds a terminology rule on top of the built-in table.
type TermRuleConfig struct {
	Term          string `yaml:"term"`
	Replacement   string `yaml:"replacement"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

// AccuracyConfig tunes the spelling strategy.
type AccuracyConfig struct {
	// Lexicon replaces the built-in clinical word list when non-empty.
	Lexicon []string `yaml:"lexicon"`
}

// ModelConfig describes one selectable correction model.
type ModelConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Enabled        *bool    `yaml:"enabled"`
	Primary        bool     `yaml:"primary"`
	MaxInputTokens int      `yaml:"max_input_tokens"`
	Temperature    float64  `yaml:"temperature"`
	Fallbacks      []string `yaml:"fallbacks"`

	// Backend selects the remote implementation. An empty or "local" name
	// means the in-process rule engine.
	Backend BackendEntry `yaml:"backend"`
}

// IsLocal reports whether the model is served by the rule engine.
func (m ModelConfig) IsLocal() bool {
	return m.Backend.Name == "" || m.Backend.Name == types.LocalProvider
}

// BackendEntry is the configuration block of a remote backend. Name is used
// to look up the constructor in the [Registry].
type BackendEntry struct {
	// Name selects the registered backend (e.g. "openai", "anthropic", "http").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint. Required for "http".
	BaseURL string `yaml:"base_url"`

	// Model selects the model within the backend (e.g. "gpt-4o").
	Model string `yaml:"model"`

	// Options holds backend-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// KnowledgeSourceConfig describes one reference source.
type KnowledgeSourceConfig struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Keywords    []string  `yaml:"keywords"`
	Weight      float64   `yaml:"weight"`
	Enabled     *bool     `yaml:"enabled"`
	LastUpdated time.Time `yaml:"last_updated"`
}

// RetrievalConfig controls knowledge retrieval.
type RetrievalConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	// TopK is the number of sources returned. Default: 3.
	TopK int `yaml:"top_k"`

	// HalfLife is the age at which a source's freshness halves. Default: 365 days.
	HalfLife time.Duration `yaml:"half_life"`
}

// QualityConfig holds the band threshold table.
type QualityConfig struct {
	// Thresholds maps a metric name, or "default", to its band thresholds.
	Thresholds map[string]quality.Thresholds `yaml:"thresholds"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Retention bounds both the local ring and the durable store. Default: 500.
	Retention int `yaml:"retention"`

	// Timeout bounds each durable write. Default: 5s.
	Timeout time.Duration `yaml:"timeout"`

	// PostgresDSN selects PostgreSQL as the durable store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLitePath selects an SQLite file as the durable store.
	SQLitePath string `yaml:"sqlite_path"`
}

// PreviewConfig tunes the debounced live preview.
type PreviewConfig struct {
	QuietPeriod time.Duration `yaml:"quiet_period"`
	HeadChars   int           `yaml:"head_chars"`
}

// ExportConfig lists the export formats.
type ExportConfig struct {
	Formats []export.Format `yaml:"formats"`
}

func enabled(b *bool) bool { return b == nil || *b }

// CorrectionTypeDefs converts the correction type catalog.
func (c *Config) CorrectionTypeDefs() []types.CorrectionType {
	out := make([]types.CorrectionType, len(c.CorrectionTypes))
	for i, t := range c.CorrectionTypes {
		out[i] = types.CorrectionType{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Enabled:     enabled(t.Enabled),
			Priority:    t.Priority,
		}
	}
	return out
}

// BuiltinConfig returns the parameters of the built-in strategies.
func (c *Config) BuiltinConfig() correction.BuiltinConfig {
	bc := correction.BuiltinConfig{Lexicon: c.Accuracy.Lexicon}
	for _, r := range c.Terminology {
		bc.ExtraTermRules = append(bc.ExtraTermRules, correction.TermRule{
			Term:          r.Term,
			Replacement:   r.Replacement,
			CaseSensitive: r.CaseSensitive,
		})
	}
	return bc
}

// AIModels converts the model catalog.
func (c *Config) AIModels() []types.AIModelConfig {
	out := make([]types.AIModelConfig, len(c.Models))
	for i, m := range c.Models {
		provider := m.Backend.Name
		if m.IsLocal() {
			provider = types.LocalProvider
		}
		out[i] = types.AIModelConfig{
			ID:             m.ID,
			Name:           m.Name,
			Provider:       provider,
			MaxInputTokens: m.MaxInputTokens,
			Temperature:    m.Temperature,
			Enabled:        enabled(m.Enabled),
			Primary:        m.Primary,
			Fallbacks:      append([]string(nil), m.Fallbacks...),
		}
	}
	return out
}

// Sources converts the knowledge source catalog.
func (c *Config) Sources() []types.KnowledgeSource {
	out := make([]types.KnowledgeSource, len(c.KnowledgeSources))
	for i, s := range c.KnowledgeSources {
		out[i] = types.KnowledgeSource{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Keywords:    append([]string(nil), s.Keywords...),
			Weight:      s.Weight,
			Enabled:     enabled(s.Enabled),
			LastUpdated: s.LastUpdated,
		}
	}
	return out
}

// QualityOptions converts the threshold table into calculator options.
func (c *Config) QualityOptions() []quality.Option {
	var opts []quality.Option
	for metric, t := range c.Quality.Thresholds {
		if metric == DefaultThresholdsKey {
			opts = append(opts, quality.WithDefaultThresholds(t))
			continue
		}
		opts = append(opts, quality.WithThresholds(metric, t))
	}
	return opts
}

// RetrievalEnabled reports whether knowledge retrieval runs.
func (c *Config) RetrievalEnabled() bool { return enabled(c.Retrieval.Enabled) }

// DefaultThresholdsKey is the quality.thresholds key applying to every metric
// without its own entry.
const DefaultThresholdsKey = "default"
