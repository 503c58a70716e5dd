// Package quality scores corrected reports.
//
// Four metrics are produced, each a deterministic function of the corrected
// text and the applied corrections, clamped to [0, 1]:
//
//   - completeness: share of the four expected report elements present
//     (FINDINGS section, IMPRESSION section, comparison, technique).
//   - readability: 1 while the average sentence stays at or below 20 words,
//     falling linearly to 0 at 50 words.
//   - accuracy: 1 minus 0.15 per hedging marker per sentence and 0.1 per
//     unexpanded abbreviation.
//   - confidence: 0.4·accuracy + 0.3·completeness + 0.3·readability, scaled by
//     0.6 when the synthetic template replaced the input.
//
// Bands are derived from a per-metric threshold table and never stored.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/pkg/types"
)

// Band is a qualitative grade for a metric value.
type Band string

const (
	BandExcellent  Band = "excellent"
	BandGood       Band = "good"
	BandAcceptable Band = "acceptable"
	BandPoor       Band = "poor"
)

// Thresholds are the lower bounds of each band. Values below Acceptable are poor.
type Thresholds struct {
	Excellent  float64 `yaml:"excellent"`
	Good       float64 `yaml:"good"`
	Acceptable float64 `yaml:"acceptable"`
}

// DefaultThresholds apply to metrics without an explicit entry.
var DefaultThresholds = Thresholds{Excellent: 0.90, Good: 0.75, Acceptable: 0.50}

// Validate checks that thresholds lie in [0,1] and descend.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Excellent, t.Good, t.Acceptable} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %v out of range [0,1]", v)
		}
	}
	if t.Excellent < t.Good || t.Good < t.Acceptable {
		return fmt.Errorf("thresholds must satisfy excellent >= good >= acceptable")
	}
	return nil
}

const (
	idealSentenceWords = 20.0
	sentenceWordSpan   = 30.0
	syntheticPenalty   = 0.6
	hedgePenalty       = 0.15
	abbrevPenalty      = 0.1
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+|\n+`)
	wordToken     = regexp.MustCompile(`[\p{L}\p{N}]+(?:[-'][\p{L}\p{N}]+)*`)
	hedgePattern  = regexp.MustCompile(`(?i)\b(?:possibl[ey]|probabl[ey]|may|might|questionable|cannot be excluded|not excluded|suspicious for|equivocal)\b`)
)

// Option is a functional option for configuring a [Calculator].
type Option func(*Calculator)

// WithThresholds sets the threshold table for metric.
func WithThresholds(metric string, t Thresholds) Option {
	return func(c *Calculator) { c.thresholds[metric] = t }
}

// WithDefaultThresholds replaces [DefaultThresholds].
func WithDefaultThresholds(t Thresholds) Option {
	return func(c *Calculator) { c.defaults = t }
}

// WithAbbreviations sets the abbreviations penalised by the accuracy metric.
func WithAbbreviations(abbrevs ...string) Option {
	return func(c *Calculator) {
		c.abbrevs = make(map[string]struct{}, len(abbrevs))
		for _, a := range abbrevs {
			c.abbrevs[a] = struct{}{}
		}
	}
}

// Calculator computes [types.QualityMetrics]. It is read-only after
// construction and safe for concurrent use.
type Calculator struct {
	thresholds map[string]Thresholds
	defaults   Thresholds
	abbrevs    map[string]struct{}
}

// New returns a Calculator. Abbreviations default to the case-sensitive
// terms of [correction.DefaultTermRules].
func New(opts ...Option) *Calculator {
	c := &Calculator{
		thresholds: make(map[string]Thresholds),
		defaults:   DefaultThresholds,
		abbrevs:    make(map[string]struct{}),
	}
	for _, r := range correction.DefaultTermRules {
		if r.CaseSensitive {
			c.abbrevs[r.Term] = struct{}{}
		}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Score computes all metrics for correctedText.
func (c *Calculator) Score(correctedText string, applied []types.AppliedCorrection) types.QualityMetrics {
	words := wordToken.FindAllString(correctedText, -1)
	if len(words) == 0 {
		return types.QualityMetrics{
			types.MetricConfidence:   0,
			types.MetricCompleteness: 0,
			types.MetricReadability:  0,
			types.MetricAccuracy:     0,
		}
	}

	sentences := countSentences(correctedText)
	completeness := completenessOf(correctedText)
	readability := 1 - (float64(len(words))/float64(sentences)-idealSentenceWords)/sentenceWordSpan
	accuracy := 1 -
		hedgePenalty*float64(len(hedgePattern.FindAllStringIndex(correctedText, -1)))/float64(sentences) -
		abbrevPenalty*float64(c.countAbbrevs(words))

	readability = clamp(readability)
	accuracy = clamp(accuracy)
	confidence := 0.4*accuracy + 0.3*completeness + 0.3*readability
	if correction.IsSynthetic(applied) {
		confidence *= syntheticPenalty
	}

	return types.QualityMetrics{
		types.MetricConfidence:   clamp(confidence),
		types.MetricCompleteness: clamp(completeness),
		types.MetricReadability:  readability,
		types.MetricAccuracy:     accuracy,
	}
}

// Band maps value to a band using the thresholds configured for metric.
func (c *Calculator) Band(metric string, value float64) Band {
	t, ok := c.thresholds[metric]
	if !ok {
		t = c.defaults
	}
	switch {
	case value >= t.Excellent:
		return BandExcellent
	case value >= t.Good:
		return BandGood
	case value >= t.Acceptable:
		return BandAcceptable
	default:
		return BandPoor
	}
}

// Bands maps every metric in m to its band.
func (c *Calculator) Bands(m types.QualityMetrics) map[string]Band {
	out := make(map[string]Band, len(m))
	for k, v := range m {
		out[k] = c.Band(k, v)
	}
	return out
}

func (c *Calculator) countAbbrevs(words []string) int {
	n := 0
	for _, w := range words {
		if _, ok := c.abbrevs[w]; ok {
			n++
		}
	}
	return n
}

func completenessOf(text string) float64 {
	present := 0
	for _, ok := range []bool{
		correction.HasFindings(text),
		correction.HasImpression(text),
		correction.MentionsComparison(text),
		correction.MentionsTechnique(text),
	} {
		if ok {
			present++
		}
	}
	return float64(present) / 4
}

func countSentences(text string) int {
	n := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if wordToken.MatchString(strings.TrimSpace(s)) {
			n++
		}
	}
	return max(n, 1)
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
