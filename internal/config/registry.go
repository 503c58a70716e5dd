package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/pkg/types"
)

// ErrBackendNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// BackendFactory builds the remote corrector for one model.
type BackendFactory func(entry BackendEntry, model types.AIModelConfig) (correction.Remote, error)

// Registry maps backend names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BackendFactory)}
}

// Register registers a backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Create instantiates the remote corrector for model using the factory
// registered under entry.Name.
func (r *Registry) Create(entry BackendEntry, model types.AIModelConfig) (correction.Remote, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, entry.Name)
	}
	remote, err := factory(entry, model)
	if err != nil {
		return nil, fmt.Errorf("config: create backend %q for model %q: %w", entry.Name, model.ID, err)
	}
	return remote, nil
}
