package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/reportfix/internal/config"
	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/export"
	"github.com/MrWong99/reportfix/internal/knowledge"
	"github.com/MrWong99/reportfix/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

pipeline:
  max_input_chars: 5000
  remote_timeout: 3s
  fallback_model: rules
  synthetic_min_length: 0
  breaker:
    max_failures: 3
    reset_timeout: 1m

correction_types:
  - id: terminology
    name: Terminology
    priority: 1
  - id: clarity
    name: Clarity
    enabled: false
    priority: 2

terminology:
  - term: mass
    replacement: lesion

models:
  - id: gpt
    name: GPT-4o
    primary: true
    temperature: 0.2
    fallbacks: [claude]
    backend:
      name: openai
      api_key: sk-test
      model: gpt-4o
  - id: claude
    name: Claude
    backend:
      name: anthropic
      model: claude-sonnet
  - id: rules
    name: Rules
    backend:
      name: local

knowledge_sources:
  - id: fleischner
    name: Fleischner
    keywords: [nodule, lung]
    weight: 0.9
    last_updated: 2024-01-15

retrieval:
  top_k: 2

quality:
  thresholds:
    default: {excellent: 0.95, good: 0.8, acceptable: 0.6}
    accuracy: {excellent: 0.99, good: 0.9, acceptable: 0.7}

audit:
  retention: 100
  sqlite_path: /tmp/audit.db

export:
  formats:
    - {id: json, enabled: true}
    - {id: pdf, enabled: false}
`

func mustLoad(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Pipeline.RemoteTimeout != 3*time.Second {
		t.Errorf("remote_timeout = %s, want 3s", cfg.Pipeline.RemoteTimeout)
	}
	if got := *cfg.Pipeline.SyntheticMinLength; got != 0 {
		t.Errorf("synthetic_min_length = %d, want explicit 0", got)
	}
	if cfg.Pipeline.Breaker.ResetTimeout != time.Minute {
		t.Errorf("breaker.reset_timeout = %s, want 1m", cfg.Pipeline.Breaker.ResetTimeout)
	}
	if len(cfg.Models) != 3 {
		t.Errorf("models = %d, want 3 (no implicit local model added)", len(cfg.Models))
	}
	if cfg.Audit.SQLitePath != "/tmp/audit.db" || cfg.Audit.Retention != 100 {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if got := cfg.KnowledgeSources[0].LastUpdated; !got.Equal(want) {
		t.Errorf("last_updated = %s, want %s", got, want)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Pipeline.MaxInputChars != config.DefaultMaxInputChars {
		t.Errorf("max_input_chars = %d", cfg.Pipeline.MaxInputChars)
	}
	if got := *cfg.Pipeline.SyntheticMinLength; got != config.DefaultSyntheticMinLength {
		t.Errorf("synthetic_min_length = %d", got)
	}
	if len(cfg.CorrectionTypes) != len(correction.DefaultTypes) {
		t.Errorf("correction_types = %d, want built-ins", len(cfg.CorrectionTypes))
	}
	if len(cfg.KnowledgeSources) != len(knowledge.DefaultSources) {
		t.Errorf("knowledge_sources = %d, want built-ins", len(cfg.KnowledgeSources))
	}
	if len(cfg.Export.Formats) != len(export.DefaultFormats) {
		t.Errorf("export.formats = %d, want built-ins", len(cfg.Export.Formats))
	}
	if len(cfg.Models) != 1 {
		t.Fatalf("models = %d, want the implicit local model", len(cfg.Models))
	}
	m := cfg.Models[0]
	if m.ID != config.DefaultFallbackModel || !m.IsLocal() || !m.Primary {
		t.Errorf("implicit model = %+v", m)
	}
	if !cfg.RetrievalEnabled() {
		t.Error("retrieval should default to enabled")
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if cfg.Audit.Timeout != config.DefaultAuditTimeout {
		t.Errorf("audit.timeout = %s", cfg.Audit.Timeout)
	}
}

// ── conversions ───────────────────────────────────────────────────────────────

func TestConfig_Conversions(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	defs := cfg.CorrectionTypeDefs()
	if len(defs) != 2 || !defs[0].Enabled || defs[1].Enabled {
		t.Errorf("CorrectionTypeDefs = %+v", defs)
	}

	models := cfg.AIModels()
	byID := make(map[string]types.AIModelConfig, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	if byID["gpt"].Provider != "openai" || !byID["gpt"].Primary || byID["gpt"].Fallbacks[0] != "claude" {
		t.Errorf("gpt = %+v", byID["gpt"])
	}
	if !byID["rules"].IsLocal() {
		t.Errorf("rules should be local: %+v", byID["rules"])
	}
	if !byID["claude"].Enabled {
		t.Error("enabled should default to true")
	}

	bc := cfg.BuiltinConfig()
	if len(bc.ExtraTermRules) != 1 || bc.ExtraTermRules[0].Replacement != "lesion" {
		t.Errorf("ExtraTermRules = %+v", bc.ExtraTermRules)
	}
	if _, err := correction.Builtins(bc); err != nil {
		t.Errorf("Builtins: %v", err)
	}

	if got := len(cfg.QualityOptions()); got != 2 {
		t.Errorf("QualityOptions = %d, want 2", got)
	}

	src := cfg.Sources()
	if len(src) != 1 || src[0].Weight != 0.9 || !src[0].Enabled {
		t.Errorf("Sources = %+v", src)
	}
}

// ── backend registry ──────────────────────────────────────────────────────────

func TestRegistry_Create(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.BackendEntry
	reg.Register("fake", func(e config.BackendEntry, m types.AIModelConfig) (correction.Remote, error) {
		gotEntry = e
		return correction.RemoteFunc(func(_ context.Context, text string, _ []types.CorrectionType) (string, []types.AppliedCorrection, error) {
			return text, nil, nil
		}), nil
	})
	reg.Register("broken", func(config.BackendEntry, types.AIModelConfig) (correction.Remote, error) {
		return nil, errors.New("missing key")
	})

	if _, err := reg.Create(config.BackendEntry{Name: "fake", Model: "m1"}, types.AIModelConfig{ID: "x"}); err != nil {
		t.Fatalf("Create(fake): %v", err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received %+v", gotEntry)
	}

	_, err := reg.Create(config.BackendEntry{Name: "broken"}, types.AIModelConfig{ID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing key") {
		t.Errorf("Create(broken) error = %v", err)
	}

	_, err = reg.Create(config.BackendEntry{Name: "nope"}, types.AIModelConfig{ID: "x"})
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("Create(nope) error = %v, want ErrBackendNotRegistered", err)
	}

	if names := reg.Names(); len(names) != 2 || names[0] != "broken" || names[1] != "fake" {
		t.Errorf("Names = %v", names)
	}
}
