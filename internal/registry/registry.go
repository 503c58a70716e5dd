// Package registry holds the read-only catalogs the correction pipeline is
// configured with: correction types bound to their strategies, and correction
// models. Catalogs are built once at startup and never mutated afterwards, so
// every method is safe for concurrent use without locking.
package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an identifier is not registered.
	ErrNotFound = errors.New("registry: not found")

	// ErrDisabled is returned when an identifier is registered but disabled.
	ErrDisabled = errors.New("registry: disabled")

	// ErrDuplicate is returned when two entries share an identifier.
	ErrDuplicate = errors.New("registry: duplicate id")
)

// ConfigurationError reports a lookup against a catalog that failed because
// of how the catalog is configured.
type ConfigurationError struct {
	// Catalog names the catalog ("correction type", "model").
	Catalog string

	// ID is the identifier that was looked up.
	ID string

	// Err is ErrNotFound, ErrDisabled or another cause.
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Catalog, e.ID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Entry is implemented by catalog items.
type Entry interface {
	EntryID() string
	IsEnabled() bool
}

// Catalog is an insertion-ordered, immutable set of entries keyed by ID.
type Catalog[T Entry] struct {
	name  string
	items []T
	index map[string]int
}

// NewCatalog builds a catalog from items. Duplicate or empty IDs are errors.
func NewCatalog[T Entry](name string, items []T) (*Catalog[T], error) {
	c := &Catalog[T]{
		name:  name,
		items: make([]T, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, it := range items {
		id := it.EntryID()
		if id == "" {
			return nil, fmt.Errorf("registry: %s: empty id", name)
		}
		if _, dup := c.index[id]; dup {
			return nil, &ConfigurationError{Catalog: name, ID: id, Err: ErrDuplicate}
		}
		c.index[id] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

// Get returns the entry for id, enabled or not.
func (c *Catalog[T]) Get(id string) (T, error) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, &ConfigurationError{Catalog: c.name, ID: id, Err: ErrNotFound}
	}
	return c.items[i], nil
}

// GetEnabled returns the entry for id, failing with ErrDisabled when it exists
// but is disabled.
func (c *Catalog[T]) GetEnabled(id string) (T, error) {
	it, err := c.Get(id)
	if err != nil {
		return it, err
	}
	if !it.IsEnabled() {
		var zero T
		return zero, &ConfigurationError{Catalog: c.name, ID: id, Err: ErrDisabled}
	}
	return it, nil
}

// List returns every entry in registration order.
func (c *Catalog[T]) List() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Enabled returns the enabled entries in registration order.
func (c *Catalog[T]) Enabled() []T {
	out := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if it.IsEnabled() {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog[T]) Len() int { return len(c.items) }
