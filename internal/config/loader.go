package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/export"
	"github.com/MrWong99/reportfix/internal/knowledge"
	"github.com/MrWong99/reportfix/pkg/types"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultShutdownTimeout    = 15 * time.Second
	DefaultMaxInputChars      = 20000
	DefaultRemoteTimeout      = 10 * time.Second
	DefaultFallbackModel      = types.LocalProvider
	DefaultSyntheticMinLength = 20
	DefaultTopK               = 3
	DefaultHalfLife           = 365 * 24 * time.Hour
	DefaultAuditTimeout       = 5 * time.Second
	DefaultPreviewQuietPeriod = 400 * time.Millisecond
	DefaultPreviewHeadChars   = 500
)

// ValidBackendNames lists the backend names registered by default.
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
	"llamacpp", "llamafile", "openai-compatible", "http",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := LoadFromReader(bytes.NewReader(nil))
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults are invalid: %v", err))
	}
	return cfg
}

// ApplyDefaults fills zero values with their defaults. Empty catalogs are
// replaced by the built-in ones, and a local model named after
// pipeline.fallback_model is added when the catalog lacks it.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	p := &cfg.Pipeline
	if p.MaxInputChars == 0 {
		p.MaxInputChars = DefaultMaxInputChars
	}
	if p.RemoteTimeout == 0 {
		p.RemoteTimeout = DefaultRemoteTimeout
	}
	if p.FallbackModel == "" {
		p.FallbackModel = DefaultFallbackModel
	}
	if p.SyntheticMinLength == nil {
		n := DefaultSyntheticMinLength
		p.SyntheticMinLength = &n
	}

	if len(cfg.CorrectionTypes) == 0 {
		for _, t := range correction.DefaultTypes {
			on := t.Enabled
			cfg.CorrectionTypes = append(cfg.CorrectionTypes, CorrectionTypeConfig{
				ID:          t.ID,
				Name:        t.Name,
				Description: t.Description,
				Enabled:     &on,
				Priority:    t.Priority,
			})
		}
	}

	if !slices.ContainsFunc(cfg.Models, func(m ModelConfig) bool { return m.ID == p.FallbackModel }) {
		cfg.Models = append(cfg.Models, ModelConfig{
			ID:      p.FallbackModel,
			Name:    "Local rule engine",
			Primary: len(cfg.Models) == 0,
			Backend: BackendEntry{Name: types.LocalProvider},
		})
	}

	if len(cfg.KnowledgeSources) == 0 {
		for _, s := range knowledge.DefaultSources {
			on := s.Enabled
			cfg.KnowledgeSources = append(cfg.KnowledgeSources, KnowledgeSourceConfig{
				ID:          s.ID,
				Name:        s.Name,
				Description: s.Description,
				Keywords:    append([]string(nil), s.Keywords...),
				Weight:      s.Weight,
				Enabled:     &on,
				LastUpdated: s.LastUpdated,
			})
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.HalfLife == 0 {
		cfg.Retrieval.HalfLife = DefaultHalfLife
	}

	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = audit.DefaultRetention
	}
	if cfg.Audit.Timeout == 0 {
		cfg.Audit.Timeout = DefaultAuditTimeout
	}

	if cfg.Preview.QuietPeriod == 0 {
		cfg.Preview.QuietPeriod = DefaultPreviewQuietPeriod
	}
	if cfg.Preview.HeadChars == 0 {
		cfg.Preview.HeadChars = DefaultPreviewHeadChars
	}

	if len(cfg.Export.Formats) == 0 {
		cfg.Export.Formats = append([]export.Format(nil), export.DefaultFormats...)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Pipeline
	p := cfg.Pipeline
	if p.MaxInputChars < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_input_chars %d must not be negative", p.MaxInputChars))
	}
	if p.RemoteTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.remote_timeout %s must not be negative", p.RemoteTimeout))
	}
	if p.SyntheticMinLength != nil && *p.SyntheticMinLength < 0 {
		errs = append(errs, fmt.Errorf("pipeline.synthetic_min_length %d must not be negative", *p.SyntheticMinLength))
	}
	if p.Breaker.MaxFailures < 0 || p.Breaker.HalfOpenMax < 0 || p.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("pipeline.breaker values must not be negative"))
	}

	// Correction types
	typeSeen := make(map[string]int, len(cfg.CorrectionTypes))
	builtin := make(map[string]bool, len(correction.DefaultTypes))
	for _, t := range correction.DefaultTypes {
		builtin[t.ID] = true
	}
	for i, t := range cfg.CorrectionTypes {
		prefix := fmt.Sprintf("correction_types[%d]", i)
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := typeSeen[t.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of correction_types[%d]", prefix, t.ID, prev))
		}
		typeSeen[t.ID] = i
		if enabled(t.Enabled) && !builtin[t.ID] {
			errs = append(errs, fmt.Errorf("%s.id %q has no built-in strategy; disable it or use one of %s", prefix, t.ID, builtinIDs()))
		}
	}

	// Terminology
	for i, r := range cfg.Terminology {
		if strings.TrimSpace(r.Term) == "" || strings.TrimSpace(r.Replacement) == "" {
			errs = append(errs, fmt.Errorf("terminology[%d] requires term and replacement", i))
		}
	}

	// Models
	errs = append(errs, validateModels(cfg)...)

	// Knowledge sources
	srcSeen := make(map[string]int, len(cfg.KnowledgeSources))
	for i, s := range cfg.KnowledgeSources {
		prefix := fmt.Sprintf("knowledge_sources[%d]", i)
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := srcSeen[s.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of knowledge_sources[%d]", prefix, s.ID, prev))
		}
		srcSeen[s.ID] = i
		if s.Weight < 0 || s.Weight > 1 {
			errs = append(errs, fmt.Errorf("%s.weight %.2f is out of range [0, 1]", prefix, s.Weight))
		}
	}
	if cfg.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d must not be negative", cfg.Retrieval.TopK))
	}

	// Quality
	for metric, t := range cfg.Quality.Thresholds {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("quality.thresholds[%s]: %w", metric, err))
		}
	}

	// Audit
	if cfg.Audit.Retention < 0 {
		errs = append(errs, fmt.Errorf("audit.retention %d must not be negative", cfg.Audit.Retention))
	}
	if cfg.Audit.PostgresDSN != "" && cfg.Audit.SQLitePath != "" {
		errs = append(errs, errors.New("audit.postgres_dsn and audit.sqlite_path are mutually exclusive"))
	}

	// Preview
	if cfg.Preview.QuietPeriod < 0 || cfg.Preview.HeadChars < 0 {
		errs = append(errs, errors.New("preview values must not be negative"))
	}

	// Export
	fmtSeen := make(map[string]int, len(cfg.Export.Formats))
	for i, f := range cfg.Export.Formats {
		prefix := fmt.Sprintf("export.formats[%d]", i)
		if f.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := fmtSeen[f.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of export.formats[%d]", prefix, f.ID, prev))
		}
		fmtSeen[f.ID] = i
	}

	return errors.Join(errs...)
}

func validateModels(cfg *Config) []error {
	var errs []error
	seen := make(map[string]int, len(cfg.Models))
	byID := make(map[string]ModelConfig, len(cfg.Models))
	primaries := 0

	for i, m := range cfg.Models {
		prefix := fmt.Sprintf("models[%d]", i)
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := seen[m.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of models[%d]", prefix, m.ID, prev))
		}
		seen[m.ID] = i
		byID[m.ID] = m
		if m.Primary && enabled(m.Enabled) {
			primaries++
		}
		if m.Temperature < 0 || m.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 2]", prefix, m.Temperature))
		}
		if m.MaxInputTokens < 0 {
			errs = append(errs, fmt.Errorf("%s.max_input_tokens %d must not be negative", prefix, m.MaxInputTokens))
		}
		if m.Backend.Name == "http" && m.Backend.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.backend.base_url is required when backend is http", prefix))
		}
		validateBackendName(m.ID, m.Backend.Name)
	}

	if primaries > 1 {
		errs = append(errs, fmt.Errorf("models: %d enabled models are marked primary; at most one is allowed", primaries))
	}

	for i, m := range cfg.Models {
		for _, fb := range m.Fallbacks {
			target, ok := byID[fb]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("models[%d].fallbacks: unknown model %q", i, fb))
			case fb == m.ID:
				errs = append(errs, fmt.Errorf("models[%d].fallbacks: model %q lists itself", i, fb))
			case target.IsLocal():
				errs = append(errs, fmt.Errorf("models[%d].fallbacks: %q is local; the rule engine is always the final fallback", i, fb))
			}
		}
	}

	if fb, ok := byID[cfg.Pipeline.FallbackModel]; ok && !fb.IsLocal() {
		errs = append(errs, fmt.Errorf("pipeline.fallback_model %q must name a local model", cfg.Pipeline.FallbackModel))
	}
	return errs
}

// validateBackendName logs a warning if name is non-empty, not local and not
// found in [ValidBackendNames].
func validateBackendName(model, name string) {
	if name == "" || name == types.LocalProvider || slices.Contains(ValidBackendNames, name) {
		return
	}
	slog.Warn("unknown backend name, may be a typo or a custom registration",
		"model", model,
		"backend", name,
		"known", ValidBackendNames,
	)
}

func builtinIDs() string {
	ids := make([]string, len(correction.DefaultTypes))
	for i, t := range correction.DefaultTypes {
		ids[i] = t.ID
	}
	return strings.Join(ids, ", ")
}
