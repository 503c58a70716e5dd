package correction

import (
	"fmt"
	"regexp"
	"unicode"
)

var (
	repeatedBlanks   = regexp.MustCompile(`[ \t]{2,}`)
	trailingBlanks   = regexp.MustCompile(`[ \t]+(\n|$)`)
	blankBeforePunct = regexp.MustCompile(`[ \t]+([,.;:!?])`)
)

// Clarity normalises whitespace and sentence capitalisation. Line breaks are
// preserved so section layout survives.
type Clarity struct{}

// ID implements [Strategy].
func (Clarity) ID() string { return "clarity" }

// Describe implements [Strategy].
func (Clarity) Describe(count int) string {
	return fmt.Sprintf("fixed %d spacing or capitalization issue(s)", count)
}

// Apply implements [Strategy].
func (Clarity) Apply(text string) (string, int) {
	n := 0
	replace := func(re *regexp.Regexp, repl string) {
		if m := re.FindAllStringIndex(text, -1); len(m) > 0 {
			n += len(m)
			text = re.ReplaceAllString(text, repl)
		}
	}
	replace(repeatedBlanks, " ")
	replace(blankBeforePunct, "$1")
	replace(trailingBlanks, "$1")

	var c int
	text, c = capitalizeSentences(text)
	return text, n + c
}

// capitalizeSentences upper-cases the first letter of the text, of every line
// and of every sentence following terminal punctuation and whitespace.
func capitalizeSentences(text string) (string, int) {
	runes := []rune(text)
	n := 0
	capNext, sawTerminal := true, false
	for i, r := range runes {
		switch {
		case r == '\n':
			capNext, sawTerminal = true, false
		case r == '.' || r == '!' || r == '?':
			sawTerminal = true
		case unicode.IsSpace(r):
			if sawTerminal {
				capNext = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if capNext && unicode.IsLower(r) {
				runes[i] = unicode.ToUpper(r)
				n++
			}
			capNext, sawTerminal = false, false
		default:
			sawTerminal = false
		}
	}
	if n == 0 {
		return text, 0
	}
	return string(runes), n
}
