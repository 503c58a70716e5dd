package app

import (
	"fmt"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/reportfix/internal/config"
	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/correction/httpremote"
	"github.com/MrWong99/reportfix/internal/correction/llmcorrect"
	"github.com/MrWong99/reportfix/pkg/provider/llm"
	"github.com/MrWong99/reportfix/pkg/provider/llm/anyllm"
	"github.com/MrWong99/reportfix/pkg/provider/llm/openai"
	"github.com/MrWong99/reportfix/pkg/types"
)

// RegisterBuiltinBackends wires every backend that ships with reportfix into
// reg. LLM backends are wrapped in an [llmcorrect.Corrector] carrying the
// model's temperature and token budget.
//
// Recognised backend options:
//
//	openai:  organization (string), timeout (duration string)
//	http:    rate_interval (duration string), rate_burst (int), timeout (duration string)
func RegisterBuiltinBackends(reg *config.Registry) {
	// ── openai-go ─────────────────────────────────────────────────────────────
	reg.Register("openai", func(entry config.BackendEntry, model types.AIModelConfig) (correction.Remote, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		d, err := optDuration(entry.Options, "timeout")
		if err != nil {
			return nil, err
		}
		if d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		p, err := openai.New(entry.APIKey, modelName(entry, model), opts...)
		if err != nil {
			return nil, err
		}
		return llmCorrector(p, model), nil
	})

	// ── any-llm-go ────────────────────────────────────────────────────────────
	// Hosted backends take an API key; self-hosted ones (ollama, llamacpp,
	// llamafile) only need BaseURL.
	for _, name := range anyllm.Backends {
		reg.Register(name, func(entry config.BackendEntry, model types.AIModelConfig) (correction.Remote, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(name, modelName(entry, model), opts...)
			if err != nil {
				return nil, err
			}
			return llmCorrector(p, model), nil
		})
	}

	// ── generic HTTP correction service ───────────────────────────────────────
	reg.Register("http", func(entry config.BackendEntry, model types.AIModelConfig) (correction.Remote, error) {
		var opts []httpremote.Option
		if entry.APIKey != "" {
			opts = append(opts, httpremote.WithAPIKey(entry.APIKey))
		}
		interval, err := optDuration(entry.Options, "rate_interval")
		if err != nil {
			return nil, err
		}
		if interval > 0 {
			opts = append(opts, httpremote.WithRateLimit(interval, max(optInt(entry.Options, "rate_burst"), 1)))
		}
		return httpremote.New(entry.BaseURL, modelName(entry, model), opts...)
	})
}

func llmCorrector(p llm.Provider, model types.AIModelConfig) *llmcorrect.Corrector {
	return llmcorrect.New(p,
		llmcorrect.WithTemperature(model.Temperature),
		llmcorrect.WithMaxInputTokens(model.MaxInputTokens),
	)
}

// modelName prefers the backend's own model name over the catalog ID.
func modelName(entry config.BackendEntry, model types.AIModelConfig) string {
	if entry.Model != "" {
		return entry.Model
	}
	return model.ID
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a backend Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a backend Options map. YAML decodes
// integers as int; 0 is returned for anything else.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a duration string such as "250ms" from a backend Options
// map. A missing key yields 0.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return d, nil
}
