// Package knowledge ranks reference sources against a report.
//
// Relevance blends three scores, each in [0, 1]:
//
//	relevance = 0.60·coverage + 0.25·weight + 0.15·freshness
//
// coverage is the mean keyword credit: a keyword (or phrase) found verbatim in
// the report earns 1.0, a single-word keyword within Jaro-Winkler 0.90 of a
// report word earns 0.5. freshness decays exponentially with the source's age
// relative to the newest source in the catalog. The reference instant is fixed
// when the ranker is built, so relevance depends only on the report text and
// the source.
package knowledge

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/reportfix/internal/registry"
	"github.com/MrWong99/reportfix/pkg/types"
)

const (
	coverageWeight  = 0.60
	staticWeight    = 0.25
	freshnessWeight = 0.15

	fuzzyThreshold  = 0.90
	fuzzyCredit     = 0.5
	defaultHalfLife = 365 * 24 * time.Hour
	excerptRunes    = 160
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

type sourceEntry struct{ types.KnowledgeSource }

func (e sourceEntry) EntryID() string { return e.ID }
func (e sourceEntry) IsEnabled() bool { return e.Enabled }

// Option is a functional option for configuring a [Ranker].
type Option func(*Ranker)

// WithHalfLife sets the age at which a source's freshness halves.
// Default: 365 days.
func WithHalfLife(d time.Duration) Option {
	return func(r *Ranker) {
		if d > 0 {
			r.halfLife = d
		}
	}
}

// Ranker scores and orders knowledge sources. It is read-only after
// construction and safe for concurrent use.
type Ranker struct {
	catalog   *registry.Catalog[sourceEntry]
	keywords  map[string][]string
	reference time.Time
	halfLife  time.Duration
}

// NewRanker builds a Ranker over sources. Weights must lie in [0, 1] and IDs
// must be unique.
func NewRanker(sources []types.KnowledgeSource, opts ...Option) (*Ranker, error) {
	entries := make([]sourceEntry, len(sources))
	r := &Ranker{
		keywords: make(map[string][]string, len(sources)),
		halfLife: defaultHalfLife,
	}
	for i, s := range sources {
		if s.Weight < 0 || s.Weight > 1 || math.IsNaN(s.Weight) {
			return nil, fmt.Errorf("knowledge: source %q: weight %v out of range [0,1]", s.ID, s.Weight)
		}
		entries[i] = sourceEntry{s}
		if s.LastUpdated.After(r.reference) {
			r.reference = s.LastUpdated
		}
	}
	cat, err := registry.NewCatalog("knowledge source", entries)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	r.catalog = cat
	for _, s := range sources {
		r.keywords[s.ID] = normalizedKeywords(s)
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Sources returns every source in registration order.
func (r *Ranker) Sources() []types.KnowledgeSource {
	entries := r.catalog.List()
	out := make([]types.KnowledgeSource, len(entries))
	for i, e := range entries {
		out[i] = e.KnowledgeSource
	}
	return out
}

// Rank returns at most topK enabled sources ordered by relevance descending,
// then weight descending, then ID ascending. topK <= 0 yields an empty list.
func (r *Ranker) Rank(text string, topK int) []types.RankedSource {
	if topK <= 0 {
		return []types.RankedSource{}
	}

	tokens := tokenize(text)
	joined := " " + strings.Join(tokens, " ") + " "

	enabled := r.catalog.Enabled()
	ranked := make([]types.RankedSource, 0, len(enabled))
	for _, e := range enabled {
		ranked = append(ranked, types.RankedSource{
			KnowledgeSource: e.KnowledgeSource,
			Relevance:       r.relevance(tokens, joined, e.KnowledgeSource),
			Excerpt:         excerpt(e.Description),
		})
	}

	slices.SortFunc(ranked, func(a, b types.RankedSource) int {
		if c := cmp.Compare(b.Relevance, a.Relevance); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Relevance scores a single source against text.
func (r *Ranker) Relevance(text string, src types.KnowledgeSource) float64 {
	tokens := tokenize(text)
	kw, ok := r.keywords[src.ID]
	if !ok {
		kw = normalizedKeywords(src)
	}
	return r.score(tokens, " "+strings.Join(tokens, " ")+" ", kw, src)
}

func (r *Ranker) relevance(tokens []string, joined string, src types.KnowledgeSource) float64 {
	return r.score(tokens, joined, r.keywords[src.ID], src)
}

func (r *Ranker) score(tokens []string, joined string, keywords []string, src types.KnowledgeSource) float64 {
	v := coverageWeight*coverage(tokens, joined, keywords) +
		staticWeight*src.Weight +
		freshnessWeight*r.freshness(src.LastUpdated)
	return min(max(v, 0), 1)
}

func coverage(tokens []string, joined string, keywords []string) float64 {
	if len(keywords) == 0 || len(tokens) == 0 {
		return 0
	}
	total := 0.0
	for _, kw := range keywords {
		if strings.Contains(joined, " "+kw+" ") {
			total++
			continue
		}
		if strings.Contains(kw, " ") {
			continue
		}
		for _, tok := range tokens {
			if matchr.JaroWinkler(tok, kw, false) >= fuzzyThreshold {
				total += fuzzyCredit
				break
			}
		}
	}
	return total / float64(len(keywords))
}

func (r *Ranker) freshness(updated time.Time) float64 {
	if updated.IsZero() {
		return 0
	}
	age := r.reference.Sub(updated)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(r.halfLife))
}

// normalizedKeywords lower-cases and re-tokenises the source keywords. Sources
// without keywords fall back to the words of their name.
func normalizedKeywords(s types.KnowledgeSource) []string {
	raw := s.Keywords
	if len(raw) == 0 {
		raw = tokenize(s.Name)
	}
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if norm := strings.Join(tokenize(k), " "); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func tokenize(s string) []string {
	raw := tokenPattern.FindAllString(s, -1)
	for i, w := range raw {
		raw[i] = strings.ToLower(w)
	}
	return raw
}

// excerpt truncates desc to excerptRunes on a word boundary.
func excerpt(desc string) string {
	desc = strings.Join(strings.Fields(desc), " ")
	if utf8.RuneCountInString(desc) <= excerptRunes {
		return desc
	}
	cut := string([]rune(desc)[:excerptRunes])
	if i := strings.LastIndexByte(cut, ' '); i > excerptRunes/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
