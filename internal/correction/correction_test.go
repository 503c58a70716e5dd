package correction_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/pkg/types"
)

func builtins(t *testing.T) map[string]correction.Strategy {
	t.Helper()
	b, err := correction.Builtins(correction.BuiltinConfig{})
	if err != nil {
		t.Fatalf("Builtins: %v", err)
	}
	return b
}

func ordered(t *testing.T, ids ...string) []correction.Strategy {
	t.Helper()
	b := builtins(t)
	out := make([]correction.Strategy, 0, len(ids))
	for _, id := range ids {
		s, ok := b[id]
		if !ok {
			t.Fatalf("no builtin strategy %q", id)
		}
		out = append(out, s)
	}
	return out
}

func allTypes(t *testing.T) []correction.Strategy {
	t.Helper()
	ids := make([]string, 0, len(correction.DefaultTypes))
	for _, ct := range correction.DefaultTypes {
		ids = append(ids, ct.ID)
	}
	return ordered(t, ids...)
}

// ─── Engine ───────────────────────────────────────────────────────────────────

func TestEngine_EmptyStrategiesPassThrough(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	in := "There is a nodule in the right lung."
	out, applied := e.Apply(in, nil)
	if out != in {
		t.Errorf("expected unchanged text, got %q", out)
	}
	if applied == nil || len(applied) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", applied)
	}
}

func TestEngine_NoduleTerminology(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	out, applied := e.Apply("There is a nodule in the right lung.", ordered(t, "terminology"))

	want := "There is a well-circumscribed nodule in the right lung."
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if len(applied) != 1 {
		t.Fatalf("expected 1 applied correction, got %d: %#v", len(applied), applied)
	}
	if applied[0].Type != "terminology" || applied[0].Count != 1 {
		t.Errorf("unexpected applied correction %#v", applied[0])
	}
}

func TestEngine_OmitsZeroCountTypes(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	in := "FINDINGS:\nComparison: prior study. Technique: PA view. Lungs are clear.\n\nIMPRESSION:\nNormal."
	out, applied := e.Apply(in, allTypes(t))
	if out != in {
		t.Errorf("expected clean report unchanged, got %q", out)
	}
	if len(applied) != 0 {
		t.Errorf("expected no applied corrections, got %#v", applied)
	}
}

func TestEngine_AppliesInGivenOrder(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	_, applied := e.Apply("lungs are  clear . heart size normal", ordered(t, "structure", "clarity"))
	var got []string
	for _, a := range applied {
		got = append(got, a.Type)
	}
	if !reflect.DeepEqual(got, []string{"structure", "clarity"}) {
		t.Errorf("order = %v, want [structure clarity]", got)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	in := "pt has SOB and HTN.  there is a nodule in the rigth lung  .  pnuemonia suspected"
	for _, subset := range [][]string{
		{"terminology"},
		{"accuracy", "clarity"},
		{"structure", "completeness", "guideline_compliance"},
	} {
		out1, a1 := e.Apply(in, ordered(t, subset...))
		out2, a2 := e.Apply(in, ordered(t, subset...))
		if out1 != out2 || !reflect.DeepEqual(a1, a2) {
			t.Errorf("subset %v: results differ between runs", subset)
		}
	}
}

func TestEngine_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"There is a nodule in the right lung.",
		"pt has SOB and HTN.  there is a nodule in the rigth lung  .  pnuemonia suspected",
		"Findings: small left pleural efusion .\nimpression: heart attack history, high blood pressure",
		"nodule",
		"Comparison: none. technique: AP portable.  Cardiomegaly with CHF.",
	}
	e := correction.NewEngine()
	for _, in := range inputs {
		once, _ := e.Apply(in, allTypes(t))
		twice, applied := e.Apply(once, allTypes(t))
		if len(applied) != 0 {
			t.Errorf("input %q: second pass applied %#v", in, applied)
		}
		if twice != once {
			t.Errorf("input %q: second pass changed text\nonce:  %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestEngine_SyntheticTemplate(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	out, applied := e.Apply("nodule", ordered(t, "terminology"))
	if len(applied) == 0 || applied[0].Type != correction.SyntheticTemplateType {
		t.Fatalf("expected synthetic_template first, got %#v", applied)
	}
	if !correction.IsSynthetic(applied) {
		t.Error("IsSynthetic = false")
	}
	if !strings.HasPrefix(out, "FINDINGS:\nwell-circumscribed nodule\n\nIMPRESSION:") {
		t.Errorf("unexpected template output %q", out)
	}
}

func TestEngine_SyntheticDisabled(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine(correction.WithSyntheticMinLength(0))
	out, applied := e.Apply("nodule", ordered(t, "terminology"))
	if out != "well-circumscribed nodule" {
		t.Errorf("got %q", out)
	}
	if correction.IsSynthetic(applied) {
		t.Error("synthetic path must be disabled")
	}
}

func TestEngine_SyntheticNeedsStrategies(t *testing.T) {
	t.Parallel()

	e := correction.NewEngine()
	out, applied := e.Apply("nodule", nil)
	if out != "nodule" || len(applied) != 0 {
		t.Errorf("empty strategy list must pass through, got %q %#v", out, applied)
	}
}

// ─── Strategies ───────────────────────────────────────────────────────────────

func TestStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id        string
		in        string
		want      string
		wantCount int
	}{
		{
			id:        "terminology",
			in:        "Pt with SOB and heart attack history. Nodule noted. sob",
			want:      "Pt with shortness of breath and myocardial infarction history. Well-circumscribed nodule noted. sob",
			wantCount: 3,
		},
		{
			id:        "accuracy",
			in:        "Findings consistent with Pnuemonia. Small effusions. PNA.",
			want:      "Findings consistent with Pneumonia. Small effusions. PNA.",
			wantCount: 1,
		},
		{
			id:        "clarity",
			in:        "the lungs are  clear .  no effusion.",
			want:      "The lungs are clear. No effusion.",
			wantCount: 5,
		},
		{
			id:        "structure",
			in:        "Lungs are clear.",
			want:      "FINDINGS:\nLungs are clear.\n\nIMPRESSION:\nSee findings above.",
			wantCount: 2,
		},
		{
			id:        "completeness",
			in:        "FINDINGS:\nLungs are clear.\n\nIMPRESSION:\nSee findings above.",
			want:      "FINDINGS:\nLungs are clear.\n\nComparison: None available.\nTechnique: Not specified.\n\nIMPRESSION:\nSee findings above.",
			wantCount: 2,
		},
		{
			id:        "completeness",
			in:        "Lungs are clear. Technique: PA.",
			want:      "Lungs are clear. Technique: PA.\n\nComparison: None available.",
			wantCount: 1,
		},
		{
			id:        "guideline_compliance",
			in:        "Small nodule.",
			want:      "Small nodule.\n\nRecommendation: Follow-up per Fleischner Society guidelines.",
			wantCount: 1,
		},
		{
			id:        "guideline_compliance",
			in:        "Small nodule, follow-up CT in 6 months.",
			want:      "Small nodule, follow-up CT in 6 months.",
			wantCount: 0,
		},
	}

	b := builtins(t)
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			got, n := b[tc.id].Apply(tc.in)
			if got != tc.want {
				t.Errorf("got  %q\nwant %q", got, tc.want)
			}
			if n != tc.wantCount {
				t.Errorf("count = %d, want %d", n, tc.wantCount)
			}
			again, n2 := b[tc.id].Apply(got)
			if n2 != 0 || again != got {
				t.Errorf("not idempotent: second pass count %d, text %q", n2, again)
			}
		})
	}
}

func TestAccuracy_LeavesCorrectWordsAlone(t *testing.T) {
	t.Parallel()

	acc := correction.NewAccuracy(correction.DefaultLexicon)
	for _, word := range []string{
		"thrombus", "embolus", "emboli", "fractured", "consolidated",
		"infiltrated", "hemorrhagic", "atelectatic", "plural", "Thrombus",
	} {
		t.Run(word, func(t *testing.T) {
			t.Parallel()
			if got, n := acc.Apply(word); got != word || n != 0 {
				t.Errorf("Apply(%q) = %q (n=%d), want unchanged", word, got, n)
			}
		})
	}
}

func TestAccuracy_FixesMisspellings(t *testing.T) {
	t.Parallel()

	acc := correction.NewAccuracy(correction.DefaultLexicon)
	tests := []struct {
		in   string
		want string
	}{
		{in: "Pnuemonia", want: "Pneumonia"},
		{in: "efusion", want: "effusion"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got, n := acc.Apply(tt.in); got != tt.want || n != 1 {
				t.Errorf("Apply(%q) = %q (n=%d), want %q", tt.in, got, n, tt.want)
			}
		})
	}
}

func TestTerminology_CustomRules(t *testing.T) {
	t.Parallel()

	b, err := correction.Builtins(correction.BuiltinConfig{
		ExtraTermRules: []correction.TermRule{{Term: "GGO", Replacement: "ground-glass opacity", CaseSensitive: true}},
	})
	if err != nil {
		t.Fatalf("Builtins: %v", err)
	}
	got, n := b["terminology"].Apply("Scattered GGO.")
	if got != "Scattered ground-glass opacity." || n != 1 {
		t.Errorf("got %q (%d)", got, n)
	}
}

func TestTerminology_InvalidRule(t *testing.T) {
	t.Parallel()

	if _, err := correction.NewTerminology([]correction.TermRule{{Term: " ", Replacement: "x"}}); err == nil {
		t.Error("expected error for empty term")
	}
	if _, err := correction.NewTerminology([]correction.TermRule{{Term: "x"}}); err == nil {
		t.Error("expected error for empty replacement")
	}
}

func TestIsSynthetic(t *testing.T) {
	t.Parallel()

	if correction.IsSynthetic([]types.AppliedCorrection{{Type: "clarity", Count: 1}}) {
		t.Error("expected false")
	}
}
