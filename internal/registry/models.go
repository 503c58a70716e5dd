package registry

import (
	"errors"

	"github.com/MrWong99/reportfix/pkg/types"
)

const modelCatalog = "model"

var (
	// ErrModelUnavailable is returned at intake for a disabled model.
	ErrModelUnavailable = errors.New("registry: model unavailable")

	// ErrNoModel is returned by Default when no model is enabled.
	ErrNoModel = errors.New("registry: no enabled model")
)

type modelEntry struct{ types.AIModelConfig }

func (e modelEntry) EntryID() string { return e.ID }
func (e modelEntry) IsEnabled() bool { return e.Enabled }

// Models is the model registry.
type Models struct {
	cat *Catalog[modelEntry]
}

// NewModels builds the registry. Fallback IDs must reference registered models.
func NewModels(models []types.AIModelConfig) (*Models, error) {
	entries := make([]modelEntry, len(models))
	for i, m := range models {
		entries[i] = modelEntry{m}
	}
	cat, err := NewCatalog(modelCatalog, entries)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		for _, fb := range m.Fallbacks {
			if _, err := cat.Get(fb); err != nil {
				return nil, err
			}
		}
	}
	return &Models{cat: cat}, nil
}

// Get returns the model for id, enabled or not, or a *ConfigurationError
// wrapping ErrNotFound.
func (r *Models) Get(id string) (types.AIModelConfig, error) {
	e, err := r.cat.Get(id)
	return e.AIModelConfig, err
}

// Resolve returns the model for id if it may serve requests. Unknown IDs
// fail with ErrNotFound, disabled ones with ErrModelUnavailable.
func (r *Models) Resolve(id string) (types.AIModelConfig, error) {
	m, err := r.Get(id)
	if err != nil {
		return m, err
	}
	if !m.Enabled {
		return types.AIModelConfig{}, &ConfigurationError{Catalog: modelCatalog, ID: id, Err: ErrModelUnavailable}
	}
	return m, nil
}

// Default returns the first enabled model flagged primary, otherwise the
// first enabled model in registration order.
func (r *Models) Default() (types.AIModelConfig, error) {
	enabled := r.cat.Enabled()
	for _, e := range enabled {
		if e.Primary {
			return e.AIModelConfig, nil
		}
	}
	if len(enabled) > 0 {
		return enabled[0].AIModelConfig, nil
	}
	return types.AIModelConfig{}, ErrNoModel
}

// List returns every model in registration order.
func (r *Models) List() []types.AIModelConfig {
	entries := r.cat.List()
	out := make([]types.AIModelConfig, len(entries))
	for i, e := range entries {
		out[i] = e.AIModelConfig
	}
	return out
}

// RemoteChain returns the remote models to try for m: m itself followed by its
// enabled remote fallbacks, without duplicates. A local m yields an empty chain.
func (r *Models) RemoteChain(m types.AIModelConfig) []types.AIModelConfig {
	if m.IsLocal() {
		return nil
	}
	chain := []types.AIModelConfig{m}
	seen := map[string]bool{m.ID: true}
	for _, id := range m.Fallbacks {
		fb, err := r.Resolve(id)
		if err != nil || fb.IsLocal() || seen[fb.ID] {
			continue
		}
		seen[fb.ID] = true
		chain = append(chain, fb)
	}
	return chain
}
