package correction

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultAccuracyThreshold = 0.90
	minAccuracyWordLength    = 5

	// maxAccuracyEdits bounds both the Damerau-Levenshtein distance and the
	// length difference between a word and its replacement.
	maxAccuracyEdits = 2
)

// DefaultLexicon is the built-in list of clinical terms the accuracy pass
// corrects misspellings towards.
var DefaultLexicon = []string{
	"aneurysm", "atelectasis", "bilateral", "calcification", "cardiomegaly",
	"consolidation", "effusion", "embolism", "emphysema", "fracture",
	"hemorrhage", "hepatomegaly", "infiltrate", "lymphadenopathy", "mediastinum",
	"opacity", "parenchyma", "pleural", "pneumonia", "pneumothorax",
	"splenomegaly", "stenosis", "thrombosis", "unremarkable",
}

// DefaultKnownWords are correctly spelled relatives of lexicon terms. They sit
// close enough to a lexicon entry to pass the similarity gates but carry a
// different clinical meaning, so they are never rewritten.
var DefaultKnownWords = []string{
	"aneurysmal", "atelectatic", "bilaterally", "calcific", "calcified",
	"consolidated", "consolidative", "embolic", "emboli", "embolus",
	"emphysematous", "fractured", "hemorrhagic", "infiltrated", "infiltrative",
	"mediastinal", "opacified", "parenchymal", "pleura", "pleurae",
	"plural", "pneumonic", "stenoses", "stenotic", "thrombi",
	"thrombosed", "thrombotic", "thrombus",
}

var wordPattern = regexp.MustCompile(`[A-Za-z]+`)

type lexEntry struct {
	word  string
	codes map[string]struct{}
}

// Accuracy fixes misspelled clinical terms against a lexicon.
//
// A word is a candidate when it is at least five letters long and is not
// already a known word. It must share its first letter and a Double Metaphone
// code with a lexicon entry, lie within two edits of it, and score at or above
// the Jaro-Winkler threshold against it.
// The highest scoring entry wins; ties go to the alphabetically first entry.
// Acronyms (all upper case) are never touched.
type Accuracy struct {
	lexicon   []lexEntry
	known     map[string]struct{}
	threshold float64
}

// AccuracyOption is a functional option for configuring [Accuracy].
type AccuracyOption func(*Accuracy)

// WithAccuracyThreshold sets the minimum Jaro-Winkler score. Default: 0.90.
func WithAccuracyThreshold(threshold float64) AccuracyOption {
	return func(a *Accuracy) { a.threshold = threshold }
}

// WithKnownWords registers words that are correct as written and must never
// be rewritten, such as vocabulary introduced by other passes.
func WithKnownWords(words ...string) AccuracyOption {
	return func(a *Accuracy) {
		for _, w := range words {
			a.known[strings.ToLower(w)] = struct{}{}
		}
	}
}

// NewAccuracy returns an [Accuracy] strategy for lexicon.
func NewAccuracy(lexicon []string, opts ...AccuracyOption) *Accuracy {
	sorted := make([]string, 0, len(lexicon))
	for _, w := range lexicon {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			sorted = append(sorted, w)
		}
	}
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	a := &Accuracy{
		known:     make(map[string]struct{}, len(sorted)),
		threshold: defaultAccuracyThreshold,
	}
	for _, w := range sorted {
		a.lexicon = append(a.lexicon, lexEntry{word: w, codes: codesFor(w)})
		a.known[w] = struct{}{}
	}
	for _, w := range DefaultKnownWords {
		a.known[w] = struct{}{}
	}
	for _, w := range templateVocabulary() {
		a.known[w] = struct{}{}
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ID implements [Strategy].
func (a *Accuracy) ID() string { return "accuracy" }

// Describe implements [Strategy].
func (a *Accuracy) Describe(count int) string {
	return fmt.Sprintf("corrected %d misspelled clinical term(s)", count)
}

// Apply implements [Strategy].
func (a *Accuracy) Apply(text string) (string, int) {
	n := 0
	out := wordPattern.ReplaceAllStringFunc(text, func(word string) string {
		fixed, ok := a.correct(word)
		if !ok {
			return word
		}
		n++
		return fixed
	})
	if n == 0 {
		return text, 0
	}
	return out, n
}

func (a *Accuracy) correct(word string) (string, bool) {
	if len(word) < minAccuracyWordLength || strings.ToUpper(word) == word {
		return word, false
	}
	lower := strings.ToLower(word)
	if a.isKnown(lower) {
		return word, false
	}

	codes := codesFor(lower)
	best, bestScore := "", 0.0
	for _, e := range a.lexicon {
		if e.word[0] != lower[0] || !overlap(codes, e.codes) {
			continue
		}
		if abs(len(lower)-len(e.word)) > maxAccuracyEdits ||
			matchr.DamerauLevenshtein(lower, e.word) > maxAccuracyEdits {
			continue
		}
		if s := matchr.JaroWinkler(lower, e.word, false); s >= a.threshold && s > bestScore {
			best, bestScore = e.word, s
		}
	}
	if best == "" {
		return word, false
	}
	return matchCase(word, best), true
}

// isKnown accepts known words, their simple plurals and their -d/-ed forms.
func (a *Accuracy) isKnown(lower string) bool {
	if _, ok := a.known[lower]; ok {
		return true
	}
	for _, suffix := range []string{"s", "es", "d", "ed"} {
		if stem, ok := strings.CutSuffix(lower, suffix); ok {
			if _, ok := a.known[stem]; ok {
				return true
			}
		}
	}
	if stem, ok := strings.CutSuffix(lower, "ies"); ok {
		if _, ok := a.known[stem+"y"]; ok {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// matchCase capitalises repl when original starts with an upper-case letter.
func matchCase(original, repl string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(first) {
		return repl
	}
	r, size := utf8.DecodeRuneInString(repl)
	return string(unicode.ToUpper(r)) + repl[size:]
}

// wordsOf returns the lower-cased alphabetic words in s.
func wordsOf(s string) []string {
	raw := wordPattern.FindAllString(s, -1)
	out := make([]string, len(raw))
	for i, w := range raw {
		out[i] = strings.ToLower(w)
	}
	return out
}
