package correction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TermRule maps a lay term or abbreviation to its standard clinical phrasing.
type TermRule struct {
	Term          string
	Replacement   string
	CaseSensitive bool
}

// DefaultTermRules is the built-in terminology table.
var DefaultTermRules = []TermRule{
	{Term: "nodule", Replacement: "well-circumscribed nodule"},
	{Term: "heart attack", Replacement: "myocardial infarction"},
	{Term: "high blood pressure", Replacement: "hypertension"},
	{Term: "SOB", Replacement: "shortness of breath", CaseSensitive: true},
	{Term: "MI", Replacement: "myocardial infarction", CaseSensitive: true},
	{Term: "HTN", Replacement: "hypertension", CaseSensitive: true},
	{Term: "CHF", Replacement: "congestive heart failure", CaseSensitive: true},
	{Term: "DM", Replacement: "diabetes mellitus", CaseSensitive: true},
}

type compiledRule struct {
	TermRule
	term *regexp.Regexp
}

// Terminology standardises terminology according to a rule table.
//
// Occurrences of a term that already sit inside the replacement text of any
// rule are left alone, so "well-circumscribed nodule" is never expanded twice.
type Terminology struct {
	rules        []compiledRule
	replacements []*regexp.Regexp
}

// NewTerminology compiles rules. Rules are applied in the given order.
func NewTerminology(rules []TermRule) (*Terminology, error) {
	t := &Terminology{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]bool)
	for i, r := range rules {
		if strings.TrimSpace(r.Term) == "" {
			return nil, fmt.Errorf("terminology: rule %d: term is required", i)
		}
		if strings.TrimSpace(r.Replacement) == "" {
			return nil, fmt.Errorf("terminology: rule %d: replacement is required", i)
		}
		flags := "(?i)"
		if r.CaseSensitive {
			flags = ""
		}
		term, err := regexp.Compile(flags + `\b` + regexp.QuoteMeta(r.Term) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("terminology: rule %d: %w", i, err)
		}
		t.rules = append(t.rules, compiledRule{TermRule: r, term: term})

		key := strings.ToLower(r.Replacement)
		if !seen[key] {
			seen[key] = true
			t.replacements = append(t.replacements, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(r.Replacement)))
		}
	}
	return t, nil
}

// ID implements [Strategy].
func (t *Terminology) ID() string { return "terminology" }

// Describe implements [Strategy].
func (t *Terminology) Describe(count int) string {
	return fmt.Sprintf("standardized %d clinical term(s)", count)
}

// Apply implements [Strategy].
func (t *Terminology) Apply(text string) (string, int) {
	total := 0
	for _, r := range t.rules {
		var n int
		text, n = r.apply(text, t.replacements)
		total += n
	}
	return text, total
}

// Vocabulary returns every word introduced by the rule replacements.
func (t *Terminology) Vocabulary() []string {
	var words []string
	for _, r := range t.rules {
		words = append(words, wordsOf(r.Replacement)...)
	}
	return words
}

func (r compiledRule) apply(text string, replacements []*regexp.Regexp) (string, int) {
	matches := r.term.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}
	var covered [][]int
	for _, re := range replacements {
		covered = append(covered, re.FindAllStringIndex(text, -1)...)
	}

	var b strings.Builder
	last, n := 0, 0
	for _, m := range matches {
		if within(m, covered) {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(r.replacementFor(text[m[0]:m[1]]))
		last = m[1]
		n++
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), n
}

// replacementFor carries a leading capital over for case-insensitive rules so
// sentence-initial terms stay capitalised.
func (r compiledRule) replacementFor(matched string) string {
	if r.CaseSensitive {
		return r.Replacement
	}
	first, _ := utf8.DecodeRuneInString(matched)
	if !unicode.IsUpper(first) {
		return r.Replacement
	}
	rep, size := utf8.DecodeRuneInString(r.Replacement)
	return string(unicode.ToUpper(rep)) + r.Replacement[size:]
}

func within(span []int, covering [][]int) bool {
	for _, c := range covering {
		if c[0] <= span[0] && span[1] <= c[1] {
			return true
		}
	}
	return false
}
