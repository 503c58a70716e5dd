package export

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/MrWong99/reportfix/pkg/types"
)

// Encoder serialises a result into one export format.
type Encoder interface {
	ContentType() string
	Extension() string
	Encode(w io.Writer, r types.CorrectionResult) error
}

var (
	_ Encoder = JSON{}
	_ Encoder = Text{}
	_ Encoder = Markdown{}
)

// JSON writes the full result as indented JSON.
type JSON struct{}

func (JSON) ContentType() string { return "application/json" }
func (JSON) Extension() string   { return "json" }

func (JSON) Encode(w io.Writer, r types.CorrectionResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Text writes the corrected report followed by a short provenance footer.
type Text struct{}

func (Text) ContentType() string { return "text/plain; charset=utf-8" }
func (Text) Extension() string   { return "txt" }

func (Text) Encode(w io.Writer, r types.CorrectionResult) error {
	var b strings.Builder
	b.WriteString(strings.TrimRight(r.CorrectedText, "\n"))
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "Model: %s\n", modelLabel(r.ModelUsed))
	if r.Degraded {
		b.WriteString("Degraded: produced by the local fallback engine\n")
	}
	for _, a := range r.AppliedCorrections {
		fmt.Fprintf(&b, "- %s (%d): %s\n", a.Type, a.Count, a.Description)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown writes a reviewable document with the report, corrections,
// quality scores and references.
type Markdown struct{}

func (Markdown) ContentType() string { return "text/markdown; charset=utf-8" }
func (Markdown) Extension() string   { return "md" }

func (Markdown) Encode(w io.Writer, r types.CorrectionResult) error {
	var b strings.Builder
	b.WriteString("# Corrected report\n\n")
	b.WriteString(strings.TrimRight(r.CorrectedText, "\n"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "_Model: %s", modelLabel(r.ModelUsed))
	if r.Degraded {
		b.WriteString(" (fallback)")
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, ", %s", r.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("_\n")

	if len(r.AppliedCorrections) > 0 {
		b.WriteString("\n## Corrections\n\n| Type | Count | Description |\n|---|---|---|\n")
		for _, a := range r.AppliedCorrections {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", a.Type, a.Count, escapeCell(a.Description))
		}
	}

	if len(r.Quality) > 0 {
		b.WriteString("\n## Quality\n\n")
		names := make([]string, 0, len(r.Quality))
		for k := range r.Quality {
			names = append(names, k)
		}
		slices.Sort(names)
		for _, k := range names {
			fmt.Fprintf(&b, "- %s: %.2f\n", k, r.Quality[k])
		}
	}

	if len(r.Sources) > 0 {
		b.WriteString("\n## References\n\n")
		for i, s := range r.Sources {
			fmt.Fprintf(&b, "%d. **%s** (relevance %.2f)", i+1, s.Name, s.Relevance)
			if s.Excerpt != "" {
				fmt.Fprintf(&b, ": %s", s.Excerpt)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func modelLabel(m types.AIModelConfig) string {
	if m.Name != "" && m.Name != m.ID {
		return fmt.Sprintf("%s (%s)", m.Name, m.ID)
	}
	return m.ID
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
