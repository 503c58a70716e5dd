package registry

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/pkg/types"
)

const correctionTypeCatalog = "correction type"

// CorrectionTypeEntry binds a correction type descriptor to its strategy.
type CorrectionTypeEntry struct {
	types.CorrectionType
	Strategy correction.Strategy
}

// EntryID implements [Entry].
func (e CorrectionTypeEntry) EntryID() string { return e.ID }

// IsEnabled implements [Entry].
func (e CorrectionTypeEntry) IsEnabled() bool { return e.Enabled }

// SelectionError reports which element of a requested ID list is invalid.
type SelectionError struct {
	Index int
	Err   error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("correction_type_ids[%d]: %v", e.Index, e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// CorrectionTypes is the correction type registry.
type CorrectionTypes struct {
	cat *Catalog[CorrectionTypeEntry]
}

// NewCorrectionTypes builds the registry from descriptors and the strategies
// implementing them. Every enabled type must have a strategy.
func NewCorrectionTypes(defs []types.CorrectionType, strategies map[string]correction.Strategy) (*CorrectionTypes, error) {
	entries := make([]CorrectionTypeEntry, 0, len(defs))
	for _, d := range defs {
		s, ok := strategies[d.ID]
		if !ok && d.Enabled {
			return nil, &ConfigurationError{Catalog: correctionTypeCatalog, ID: d.ID, Err: fmt.Errorf("no strategy implements this type")}
		}
		entries = append(entries, CorrectionTypeEntry{CorrectionType: d, Strategy: s})
	}
	cat, err := NewCatalog(correctionTypeCatalog, entries)
	if err != nil {
		return nil, err
	}
	return &CorrectionTypes{cat: cat}, nil
}

// Get returns the descriptor for id, or a *ConfigurationError wrapping
// ErrNotFound.
func (r *CorrectionTypes) Get(id string) (types.CorrectionType, error) {
	e, err := r.cat.Get(id)
	return e.CorrectionType, err
}

// List returns all descriptors in registration order.
func (r *CorrectionTypes) List() []types.CorrectionType {
	return descriptors(r.cat.List())
}

// ListEnabled returns enabled descriptors ordered by priority, then ID.
func (r *CorrectionTypes) ListEnabled() []types.CorrectionType {
	return descriptors(r.EnabledEntries())
}

// EnabledEntries returns enabled entries ordered by priority, then ID.
func (r *CorrectionTypes) EnabledEntries() []CorrectionTypeEntry {
	entries := r.cat.Enabled()
	sortByPriority(entries)
	return entries
}

// Resolve validates a requested ID list and returns the matching entries in
// application order (priority, then ID). Duplicate IDs collapse. The first
// unknown or disabled ID fails with a *SelectionError.
func (r *CorrectionTypes) Resolve(ids []string) ([]CorrectionTypeEntry, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]CorrectionTypeEntry, 0, len(ids))
	for i, id := range ids {
		e, err := r.cat.GetEnabled(id)
		if err != nil {
			return nil, &SelectionError{Index: i, Err: err}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, e)
	}
	sortByPriority(out)
	return out, nil
}

// Strategies extracts the strategies from entries, preserving order.
func Strategies(entries []CorrectionTypeEntry) []correction.Strategy {
	out := make([]correction.Strategy, len(entries))
	for i, e := range entries {
		out[i] = e.Strategy
	}
	return out
}

// Descriptors extracts the descriptors from entries, preserving order.
func Descriptors(entries []CorrectionTypeEntry) []types.CorrectionType {
	return descriptors(entries)
}

func descriptors(entries []CorrectionTypeEntry) []types.CorrectionType {
	out := make([]types.CorrectionType, len(entries))
	for i, e := range entries {
		out[i] = e.CorrectionType
	}
	return out
}

func sortByPriority(entries []CorrectionTypeEntry) {
	slices.SortStableFunc(entries, func(a, b CorrectionTypeEntry) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
