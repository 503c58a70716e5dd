package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/audit/mock"
	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/knowledge"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/internal/registry"
	"github.com/MrWong99/reportfix/internal/resilience"
	"github.com/MrWong99/reportfix/pkg/types"
)

const noduleReport = "There is a nodule in the right lung."

// ─── helpers ─────────────────────────────────────────────────────────────────

// countingRemote counts calls and delegates to fn.
type countingRemote struct {
	calls atomic.Int32
	fn    correction.RemoteFunc
}

func (c *countingRemote) Correct(ctx context.Context, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, error) {
	c.calls.Add(1)
	return c.fn(ctx, text, requested)
}

func failing(err error) *countingRemote {
	return &countingRemote{fn: func(context.Context, string, []types.CorrectionType) (string, []types.AppliedCorrection, error) {
		return "", nil, err
	}}
}

func answering(text string, applied ...types.AppliedCorrection) *countingRemote {
	return &countingRemote{fn: func(context.Context, string, []types.CorrectionType) (string, []types.AppliedCorrection, error) {
		return text, applied, nil
	}}
}

func blocking() *countingRemote {
	return &countingRemote{fn: func(ctx context.Context, _ string, _ []types.CorrectionType) (string, []types.AppliedCorrection, error) {
		<-ctx.Done()
		return "", nil, ctx.Err()
	}}
}

func defaultModels() []types.AIModelConfig {
	return []types.AIModelConfig{
		{ID: "primary", Name: "Primary", Provider: "openai", Enabled: true, Primary: true},
		{ID: "backup", Name: "Backup", Provider: "anthropic", Enabled: true},
		{ID: "retired", Name: "Retired", Provider: "openai", Enabled: false},
		{ID: "local", Name: "Local rules", Provider: types.LocalProvider, Enabled: true},
	}
}

type fixture struct {
	orch  *pipeline.Orchestrator
	sink  *mock.Sink
	store *audit.Store

	mu     sync.Mutex
	states []pipeline.State
}

func (f *fixture) seen() []pipeline.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.State(nil), f.states...)
}

type fixtureConfig struct {
	models  []types.AIModelConfig
	remotes map[string]correction.Remote
	store   *audit.Store
	hook    func(context.Context, pipeline.State)
	opts    []pipeline.Option
}

func newFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()

	strategies, err := correction.Builtins(correction.BuiltinConfig{})
	if err != nil {
		t.Fatalf("Builtins: %v", err)
	}
	defs := append([]types.CorrectionType(nil), correction.DefaultTypes...)
	defs = append(defs, types.CorrectionType{ID: "retired_type", Name: "Retired", Enabled: false, Priority: 99})
	ct, err := registry.NewCorrectionTypes(defs, strategies)
	if err != nil {
		t.Fatalf("NewCorrectionTypes: %v", err)
	}

	if fc.models == nil {
		fc.models = defaultModels()
	}
	models, err := registry.NewModels(fc.models)
	if err != nil {
		t.Fatalf("NewModels: %v", err)
	}

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{sink: &mock.Sink{}}
	f.store = fc.store
	if f.store == nil {
		f.store = audit.NewStore(audit.WithPrimary(f.sink))
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(metrics),
		pipeline.WithStateHook(func(ctx context.Context, s pipeline.State) {
			f.mu.Lock()
			f.states = append(f.states, s)
			f.mu.Unlock()
			if fc.hook != nil {
				fc.hook(ctx, s)
			}
		}),
	}
	for id, r := range fc.remotes {
		opts = append(opts, pipeline.WithRemote(id, r))
	}
	opts = append(opts, fc.opts...)

	f.orch, err = pipeline.New(ct, models, correction.NewEngine(), quality.New(), f.store, opts...)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return f
}

func remotesFor(primary correction.Remote) map[string]correction.Remote {
	return map[string]correction.Remote{
		"primary": primary,
		"backup":  failing(errors.New("backup down")),
	}
}

func equalStates(a, b []pipeline.State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestRun_RemoteFailureFallsBackToLocal(t *testing.T) {
	t.Parallel()

	remote := failing(errors.New("connection refused"))
	f := newFixture(t, fixtureConfig{remotes: remotesFor(remote)})

	out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
		Text:              noduleReport,
		CorrectionTypeIDs: []string{"terminology"},
		ModelID:           "primary",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := out.Result
	if !strings.Contains(res.CorrectedText, "well-circumscribed nodule") {
		t.Errorf("CorrectedText = %q, want enhanced nodule description", res.CorrectedText)
	}
	if len(res.AppliedCorrections) != 1 || res.AppliedCorrections[0].Type != "terminology" {
		t.Errorf("AppliedCorrections = %+v, want one terminology entry", res.AppliedCorrections)
	}
	if res.ModelUsed.ID != "local" {
		t.Errorf("ModelUsed = %q, want local", res.ModelUsed.ID)
	}
	if !res.Degraded {
		t.Error("Degraded = false, want true")
	}
	if !out.HasWarning(types.WarnRemoteCorrectionFailure) {
		t.Errorf("Warnings = %+v, want remote_correction_failure", out.Warnings)
	}
	if remote.calls.Load() != 1 {
		t.Errorf("remote calls = %d, want 1", remote.calls.Load())
	}

	want := []pipeline.State{
		pipeline.StateIdle, pipeline.StateValidating, pipeline.StateAttemptingRemote,
		pipeline.StateRemoteFailed, pipeline.StateRunningFallback, pipeline.StateScoring,
		pipeline.StateRetrieving, pipeline.StatePersisting, pipeline.StateDone,
	}
	if got := f.seen(); !equalStates(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}

	entries := f.sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != out.AuditID {
		t.Errorf("audit ID = %q, outcome AuditID = %q", e.ID, out.AuditID)
	}
	if e.ModelUsed != "local" || !e.Degraded {
		t.Errorf("audit entry = {ModelUsed:%q Degraded:%v}, want {local true}", e.ModelUsed, e.Degraded)
	}
	if e.InputLength != len([]rune(noduleReport)) {
		t.Errorf("InputLength = %d, want %d", e.InputLength, len([]rune(noduleReport)))
	}
}

func TestRun_RemoteSuccess(t *testing.T) {
	t.Parallel()

	remote := answering("There is a 5 mm nodule in the right lung.",
		types.AppliedCorrection{Type: "terminology", Count: 1, Description: "added size"})
	f := newFixture(t, fixtureConfig{remotes: remotesFor(remote)})

	out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
		Text:              noduleReport,
		CorrectionTypeIDs: []string{"terminology"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result.ModelUsed.ID != "primary" {
		t.Errorf("ModelUsed = %q, want primary", out.Result.ModelUsed.ID)
	}
	if out.Result.Degraded || len(out.Warnings) != 0 {
		t.Errorf("Degraded = %v, Warnings = %+v, want clean result", out.Result.Degraded, out.Warnings)
	}
	if out.Result.CorrectedText != "There is a 5 mm nodule in the right lung." {
		t.Errorf("CorrectedText = %q", out.Result.CorrectedText)
	}
	if _, ok := out.Result.Quality[types.MetricConfidence]; !ok {
		t.Error("quality metrics missing confidence")
	}
	for _, s := range f.seen() {
		if s == pipeline.StateRunningFallback || s == pipeline.StateRemoteFailed {
			t.Errorf("unexpected state %v on remote success", s)
		}
	}
}

func TestRun_RemoteFallbackChain(t *testing.T) {
	t.Parallel()

	models := defaultModels()
	models[0].Fallbacks = []string{"backup"}
	primary := failing(errors.New("503"))
	backup := answering("Corrected by backup.", types.AppliedCorrection{Type: "clarity", Count: 2})

	f := newFixture(t, fixtureConfig{
		models:  models,
		remotes: map[string]correction.Remote{"primary": primary, "backup": backup},
	})

	out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
		Text:              noduleReport,
		CorrectionTypeIDs: []string{"clarity"},
		ModelID:           "primary",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result.ModelUsed.ID != "backup" {
		t.Errorf("ModelUsed = %q, want backup", out.Result.ModelUsed.ID)
	}
	if out.Result.Degraded || out.HasWarning(types.WarnRemoteCorrectionFailure) {
		t.Errorf("a served remote fallback is not degraded: %+v", out.Warnings)
	}
	if primary.calls.Load() != 1 || backup.calls.Load() != 1 {
		t.Errorf("calls primary=%d backup=%d, want 1 and 1", primary.calls.Load(), backup.calls.Load())
	}
}

func TestRun_InvalidRemoteResponseFallsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		remote *countingRemote
	}{
		{"blank text", answering("   ")},
		{"unrequested type", answering("Fine.", types.AppliedCorrection{Type: "structure", Count: 1})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, fixtureConfig{remotes: remotesFor(tc.remote)})
			out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
				Text:              noduleReport,
				CorrectionTypeIDs: []string{"terminology"},
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.Result.ModelUsed.ID != "local" || !out.HasWarning(types.WarnRemoteCorrectionFailure) {
				t.Errorf("ModelUsed = %q, Warnings = %+v, want local fallback", out.Result.ModelUsed.ID, out.Warnings)
			}
		})
	}
}

func TestRun_RemoteTimeout(t *testing.T) {
	t.Parallel()

	remote := blocking()
	f := newFixture(t, fixtureConfig{
		remotes: remotesFor(remote),
		opts:    []pipeline.Option{pipeline.WithConfig(pipeline.Config{RemoteTimeout: 20 * time.Millisecond})},
	})

	out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
		Text:              noduleReport,
		CorrectionTypeIDs: []string{"terminology"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.HasWarning(types.WarnRemoteCorrectionFailure) {
		t.Errorf("Warnings = %+v, want remote_correction_failure", out.Warnings)
	}
	if out.Result.ModelUsed.ID != "local" {
		t.Errorf("ModelUsed = %q, want local", out.Result.ModelUsed.ID)
	}
}

func TestRun_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		req       types.CorrectionRequest
		wantField string
	}{
		{"empty text", types.CorrectionRequest{Text: ""}, "text"},
		{"whitespace text", types.CorrectionRequest{Text: " \n\t "}, "text"},
		{"invalid utf8", types.CorrectionRequest{Text: "nodule \xff"}, "text"},
		{"too long", types.CorrectionRequest{Text: strings.Repeat("a", 41)}, "text"},
		{
			"unknown type",
			types.CorrectionRequest{Text: noduleReport, CorrectionTypeIDs: []string{"terminology", "magic"}},
			"correction_type_ids[1]",
		},
		{
			"disabled type",
			types.CorrectionRequest{Text: noduleReport, CorrectionTypeIDs: []string{"retired_type"}},
			"correction_type_ids[0]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			remote := failing(errors.New("unused"))
			f := newFixture(t, fixtureConfig{
				remotes: remotesFor(remote),
				opts:    []pipeline.Option{pipeline.WithConfig(pipeline.Config{MaxInputChars: 40})},
			})

			out, err := f.orch.Run(context.Background(), tc.req)
			if out != nil {
				t.Errorf("Run returned outcome %+v on invalid input", out)
			}
			var verr *pipeline.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tc.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tc.wantField)
			}
			if !errors.Is(err, pipeline.ErrValidation) {
				t.Error("errors.Is(err, ErrValidation) = false")
			}
			if n := f.sink.CallCount("Append"); n != 0 {
				t.Errorf("audit appends = %d, want 0", n)
			}
			if remote.calls.Load() != 0 {
				t.Error("remote called for rejected request")
			}
			states := f.seen()
			if last := states[len(states)-1]; last != pipeline.StateRejected {
				t.Errorf("final state = %v, want rejected", last)
			}
		})
	}
}

func TestRun_EmptyTypeListPassesThrough(t *testing.T) {
	t.Parallel()

	remote := answering("should not be used")
	f := newFixture(t, fixtureConfig{remotes: remotesFor(remote)})

	out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
		Text:              noduleReport,
		CorrectionTypeIDs: []string{},
		ModelID:           "primary",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result.CorrectedText != noduleReport {
		t.Errorf("CorrectedText = %q, want input unchanged", out.Result.CorrectedText)
	}
	if out.Result.AppliedCorrections == nil || len(out.Result.AppliedCorrections) != 0 {
		t.Errorf("AppliedCorrections = %#v, want empty non-nil", out.Result.AppliedCorrections)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("Warnings = %+v, want none", out.Warnings)
	}
	if remote.calls.Load() != 0 {
		t.Errorf("remote calls = %d, want 0", remote.calls.Load())
	}
	if out.AuditID == "" {
		t.Error("pass-through run was not audited")
	}
}

func TestRun_ModelSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		modelID     string
		wantModel   string
		wantWarning bool
	}{
		{"default when empty", "", "primary", false},
		{"explicit remote", "primary", "primary", false},
		{"explicit local", "local", "local", false},
		{"unknown model", "ghost", "primary", true},
		{"disabled model", "retired", "primary", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			remote := answering("There is a nodule in the right lung, stable.",
				types.AppliedCorrection{Type: "terminology", Count: 1})
			f := newFixture(t, fixtureConfig{remotes: remotesFor(remote)})

			out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
				Text:              noduleReport,
				CorrectionTypeIDs: []string{"terminology"},
				ModelID:           tc.modelID,
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.Result.ModelUsed.ID != tc.wantModel {
				t.Errorf("ModelUsed = %q, want %q", out.Result.ModelUsed.ID, tc.wantModel)
			}
			if got := out.HasWarning(types.WarnModelUnavailable); got != tc.wantWarning {
				t.Errorf("model_unavailable warning = %v, want %v", got, tc.wantWarning)
			}
			if out.Result.Degraded {
				t.Error("Degraded = true, want false")
			}
		})
	}
}

func TestRun_CancellationBeforePersisting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		modelID  string
		cancelAt pipeline.State
	}{
		{"during validation", "primary", pipeline.StateValidating},
		{"before remote call", "primary", pipeline.StateAttemptingRemote},
		{"during local fallback", "local", pipeline.StateRunningFallback},
		{"during scoring", "local", pipeline.StateScoring},
		{"during retrieval", "local", pipeline.StateRetrieving},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			remote := blocking()
			f := newFixture(t, fixtureConfig{
				remotes: remotesFor(remote),
				hook: func(_ context.Context, s pipeline.State) {
					if s == tc.cancelAt {
						cancel()
					}
				},
			})

			out, err := f.orch.Run(ctx, types.CorrectionRequest{
				Text:              noduleReport,
				CorrectionTypeIDs: []string{"terminology"},
				ModelID:           tc.modelID,
			})
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("err = %v, want context.Canceled", err)
			}
			if out != nil {
				t.Errorf("outcome = %+v, want nil", out)
			}
			if n := f.sink.CallCount("Append"); n != 0 {
				t.Errorf("audit appends = %d, want 0", n)
			}
		})
	}
}

func TestRun_CancellationDuringPersistingCompletes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, fixtureConfig{
		remotes: remotesFor(failing(errors.New("down"))),
		hook: func(_ context.Context, s pipeline.State) {
			if s == pipeline.StatePersisting {
				cancel()
			}
		},
	})

	out, err := f.orch.Run(ctx, types.CorrectionRequest{
		Text:              noduleReport,
		CorrectionTypeIDs: []string{"terminology"},
		ModelID:           "local",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.AuditID == "" || f.sink.CallCount("Append") != 1 {
		t.Errorf("AuditID = %q, appends = %d, want a persisted entry", out.AuditID, f.sink.CallCount("Append"))
	}
	states := f.seen()
	if last := states[len(states)-1]; last != pipeline.StateDone {
		t.Errorf("final state = %v, want done", last)
	}
}

func TestRun_PersistenceWarnings(t *testing.T) {
	t.Parallel()

	dbDown := errors.New("db down")
	tests := []struct {
		name        string
		primaryErr  error
		localErr    error
		wantWarning types.WarningCode
		wantAuditID bool
	}{
		{"both succeed", nil, nil, "", true},
		{"primary fails", dbDown, nil, types.WarnPersistenceDegraded, true},
		{"both fail", dbDown, errors.New("disk full"), types.WarnPersistenceFailure, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			primary := &mock.Sink{AppendErr: tc.primaryErr}
			local := &mock.Sink{AppendErr: tc.localErr}
			store := audit.NewStore(audit.WithPrimary(primary), audit.WithSecondary(local))
			f := newFixture(t, fixtureConfig{
				remotes: remotesFor(answering("unused")),
				store:   store,
			})

			out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
				Text:              noduleReport,
				CorrectionTypeIDs: []string{"terminology"},
				ModelID:           "local",
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.Result.CorrectedText == "" {
				t.Error("result missing despite persistence outcome")
			}
			if got := out.AuditID != ""; got != tc.wantAuditID {
				t.Errorf("AuditID = %q, want present=%v", out.AuditID, tc.wantAuditID)
			}
			switch tc.wantWarning {
			case "":
				if len(out.Warnings) != 0 {
					t.Errorf("Warnings = %+v, want none", out.Warnings)
				}
			default:
				if !out.HasWarning(tc.wantWarning) {
					t.Errorf("Warnings = %+v, want %s", out.Warnings, tc.wantWarning)
				}
			}
		})
	}
}

func TestRun_OpenBreakerSkipsRemote(t *testing.T) {
	t.Parallel()

	remote := failing(errors.New("down"))
	f := newFixture(t, fixtureConfig{
		remotes: remotesFor(remote),
		opts: []pipeline.Option{pipeline.WithConfig(pipeline.Config{
			Breaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		})},
	})
	req := types.CorrectionRequest{Text: noduleReport, CorrectionTypeIDs: []string{"terminology"}}

	for range 3 {
		out, err := f.orch.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !out.HasWarning(types.WarnRemoteCorrectionFailure) {
			t.Errorf("Warnings = %+v, want remote_correction_failure", out.Warnings)
		}
	}
	if n := remote.calls.Load(); n != 1 {
		t.Errorf("remote calls = %d, want 1 (breaker open afterwards)", n)
	}
	if got := f.orch.Breaker("primary").State(); got != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", got)
	}
	if f.orch.Breaker("local") != nil {
		t.Error("local model has a breaker")
	}
}

func TestRun_Retrieval(t *testing.T) {
	t.Parallel()

	ranker, err := knowledge.NewRanker([]types.KnowledgeSource{
		{ID: "fleischner", Name: "Fleischner guidelines", Keywords: []string{"nodule", "lung"}, Weight: 0.9, Enabled: true},
		{ID: "birads", Name: "BI-RADS", Keywords: []string{"breast", "mammography"}, Weight: 0.8, Enabled: true},
		{ID: "lirads", Name: "LI-RADS", Keywords: []string{"liver"}, Weight: 0.7, Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}

	tests := []struct {
		name    string
		opts    []pipeline.Option
		wantLen int
		wantTop string
	}{
		{"disabled", nil, 0, ""},
		{"top 1", []pipeline.Option{pipeline.WithRanker(ranker), pipeline.WithConfig(pipeline.Config{TopK: 1})}, 1, "fleischner"},
		{"default top k", []pipeline.Option{pipeline.WithRanker(ranker)}, 3, "fleischner"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, fixtureConfig{remotes: remotesFor(answering("unused")), opts: tc.opts})

			out, err := f.orch.Run(context.Background(), types.CorrectionRequest{
				Text:              noduleReport,
				CorrectionTypeIDs: []string{"terminology"},
				ModelID:           "local",
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			src := out.Result.Sources
			if src == nil || len(src) != tc.wantLen {
				t.Fatalf("Sources = %#v, want %d entries", src, tc.wantLen)
			}
			if tc.wantTop != "" && src[0].ID != tc.wantTop {
				t.Errorf("top source = %q, want %q", src[0].ID, tc.wantTop)
			}
		})
	}
}

func TestRun_AuditEntriesOrdered(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{remotes: remotesFor(answering("unused"))})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.orch.Run(context.Background(), types.CorrectionRequest{
				Text:              noduleReport,
				CorrectionTypeIDs: []string{"clarity"},
				ModelID:           "local",
			})
		}()
	}
	wg.Wait()

	entries, src, err := f.store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if src != audit.SourceRemote {
		t.Errorf("source = %q, want remote", src)
	}
	if len(entries) != 8 {
		t.Fatalf("entries = %d, want 8", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Errorf("entries not newest first at %d", i)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	strategies, _ := correction.Builtins(correction.BuiltinConfig{})
	ct, err := registry.NewCorrectionTypes(correction.DefaultTypes, strategies)
	if err != nil {
		t.Fatalf("NewCorrectionTypes: %v", err)
	}

	tests := []struct {
		name   string
		models []types.AIModelConfig
		opts   []pipeline.Option
	}{
		{
			"missing fallback model",
			[]types.AIModelConfig{{ID: "rules", Provider: types.LocalProvider, Enabled: true}},
			nil,
		},
		{
			"remote fallback model",
			[]types.AIModelConfig{{ID: "local", Provider: "openai", Enabled: true}},
			[]pipeline.Option{pipeline.WithRemote("local", answering("x"))},
		},
		{
			"remote model without backend",
			[]types.AIModelConfig{
				{ID: "primary", Provider: "openai", Enabled: true},
				{ID: "local", Provider: types.LocalProvider, Enabled: true},
			},
			nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			models, err := registry.NewModels(tc.models)
			if err != nil {
				t.Fatalf("NewModels: %v", err)
			}
			_, err = pipeline.New(ct, models, correction.NewEngine(), quality.New(), audit.NewStore(), tc.opts...)
			if err == nil {
				t.Error("New succeeded, want error")
			}
		})
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	if got := pipeline.StateRemoteFailed.String(); got != "remote_failed" {
		t.Errorf("String() = %q", got)
	}
	if got := pipeline.State(99).String(); got != "state(99)" {
		t.Errorf("String() = %q", got)
	}
}
