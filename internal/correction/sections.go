package correction

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	findingsHeader      = "FINDINGS:"
	impressionHeader    = "IMPRESSION:"
	defaultImpression   = "See findings above."
	syntheticImpression = "Limited report provided; clinical correlation recommended."
	comparisonNote      = "Comparison: None available."
	techniqueNote       = "Technique: Not specified."
	fleischnerNote      = "Recommendation: Follow-up per Fleischner Society guidelines."
)

var (
	findingsPattern   = regexp.MustCompile(`(?mi)^[ \t]*findings[ \t]*:`)
	impressionPattern = regexp.MustCompile(`(?mi)^[ \t]*impression[ \t]*:`)
	comparisonPattern = regexp.MustCompile(`(?i)\bcomparison\b`)
	techniquePattern  = regexp.MustCompile(`(?i)\btechnique\b`)
	nodulePattern     = regexp.MustCompile(`(?i)\bnodules?\b`)
	followUpPattern   = regexp.MustCompile(`(?i)fleischner|follow[- ]?up`)
)

// templateVocabulary lists the words the engine itself inserts.
func templateVocabulary() []string {
	return wordsOf(strings.Join([]string{
		findingsHeader, impressionHeader, defaultImpression, syntheticImpression,
		comparisonNote, techniqueNote, fleischnerNote,
	}, " "))
}

// HasFindings reports whether text carries a FINDINGS section header.
func HasFindings(text string) bool { return findingsPattern.MatchString(text) }

// HasImpression reports whether text carries an IMPRESSION section header.
func HasImpression(text string) bool { return impressionPattern.MatchString(text) }

// MentionsComparison reports whether text references a comparison study.
func MentionsComparison(text string) bool { return comparisonPattern.MatchString(text) }

// MentionsTechnique reports whether text documents the imaging technique.
func MentionsTechnique(text string) bool { return techniquePattern.MatchString(text) }

// Structure ensures the FINDINGS and IMPRESSION sections exist.
type Structure struct{}

// ID implements [Strategy].
func (Structure) ID() string { return "structure" }

// Describe implements [Strategy].
func (Structure) Describe(count int) string {
	return fmt.Sprintf("added %d missing report section(s)", count)
}

// Apply implements [Strategy].
func (Structure) Apply(text string) (string, int) {
	n := 0
	if !HasFindings(text) {
		text = findingsHeader + "\n" + text
		n++
	}
	if !HasImpression(text) {
		text = appendBlock(text, impressionHeader+"\n"+defaultImpression)
		n++
	}
	return text, n
}

// Completeness documents missing comparison and technique statements. Notes
// go directly before the IMPRESSION section when there is one.
type Completeness struct{}

// ID implements [Strategy].
func (Completeness) ID() string { return "completeness" }

// Describe implements [Strategy].
func (Completeness) Describe(count int) string {
	return fmt.Sprintf("documented %d missing report element(s)", count)
}

// Apply implements [Strategy].
func (Completeness) Apply(text string) (string, int) {
	var notes []string
	if !MentionsComparison(text) {
		notes = append(notes, comparisonNote)
	}
	if !MentionsTechnique(text) {
		notes = append(notes, techniqueNote)
	}
	if len(notes) == 0 {
		return text, 0
	}

	block := strings.Join(notes, "\n")
	if loc := impressionPattern.FindStringIndex(text); loc != nil {
		return text[:loc[0]] + block + "\n\n" + text[loc[0]:], len(notes)
	}
	return appendBlock(text, block), len(notes)
}

// GuidelineCompliance adds a follow-up recommendation to reports mentioning a
// nodule without any follow-up guidance.
type GuidelineCompliance struct{}

// ID implements [Strategy].
func (GuidelineCompliance) ID() string { return "guideline_compliance" }

// Describe implements [Strategy].
func (GuidelineCompliance) Describe(int) string {
	return "added Fleischner Society follow-up recommendation for nodule"
}

// Apply implements [Strategy].
func (GuidelineCompliance) Apply(text string) (string, int) {
	if !nodulePattern.MatchString(text) || followUpPattern.MatchString(text) {
		return text, 0
	}
	return appendBlock(text, fleischnerNote), 1
}

// appendBlock appends block as a new paragraph.
func appendBlock(text, block string) string {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if trimmed == "" {
		return block
	}
	return trimmed + "\n\n" + block
}
