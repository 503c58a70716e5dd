package correction

import (
	"fmt"

	"github.com/MrWong99/reportfix/pkg/types"
)

// DefaultTypes is the built-in correction type catalog used when
// configuration does not supply one.
var DefaultTypes = []types.CorrectionType{
	{ID: "accuracy", Name: "Accuracy", Description: "Fix misspelled clinical terms.", Enabled: true, Priority: 10},
	{ID: "terminology", Name: "Terminology", Description: "Standardize lay terms and abbreviations.", Enabled: true, Priority: 20},
	{ID: "clarity", Name: "Clarity", Description: "Normalize spacing and sentence capitalization.", Enabled: true, Priority: 30},
	{ID: "structure", Name: "Structure", Description: "Ensure FINDINGS and IMPRESSION sections.", Enabled: true, Priority: 40},
	{ID: "completeness", Name: "Completeness", Description: "Document comparison and technique.", Enabled: true, Priority: 50},
	{ID: "guideline_compliance", Name: "Guideline compliance", Description: "Add follow-up recommendations required by guidelines.", Enabled: true, Priority: 60},
}

// BuiltinConfig parameterises [Builtins].
type BuiltinConfig struct {
	// TermRules replaces DefaultTermRules when non-empty.
	TermRules []TermRule

	// ExtraTermRules are appended after the base rule table.
	ExtraTermRules []TermRule

	// Lexicon replaces DefaultLexicon when non-empty.
	Lexicon []string
}

// Builtins returns every built-in strategy keyed by ID.
func Builtins(cfg BuiltinConfig) (map[string]Strategy, error) {
	rules := cfg.TermRules
	if len(rules) == 0 {
		rules = DefaultTermRules
	}
	rules = append(append([]TermRule(nil), rules...), cfg.ExtraTermRules...)
	term, err := NewTerminology(rules)
	if err != nil {
		return nil, fmt.Errorf("correction: builtins: %w", err)
	}

	lexicon := cfg.Lexicon
	if len(lexicon) == 0 {
		lexicon = DefaultLexicon
	}
	acc := NewAccuracy(lexicon, WithKnownWords(term.Vocabulary()...))

	all := []Strategy{acc, term, Clarity{}, Structure{}, Completeness{}, GuidelineCompliance{}}
	out := make(map[string]Strategy, len(all))
	for _, s := range all {
		out[s.ID()] = s
	}
	return out, nil
}
