// Package pipeline runs one correction request end to end.
//
// An [Orchestrator] validates the request, asks the selected model's remote
// backend (and its configured fallbacks) for a correction, falls back to the
// in-process rule engine when every remote attempt fails, scores the result,
// ranks supporting knowledge sources and records an audit entry. Only invalid
// input and caller cancellation fail a run; every other degradation is
// reported as a [types.Warning] on the returned [Outcome].
//
// The registries, engine, calculator and ranker are read-only and shared
// across concurrent runs. The audit store serialises its own writes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/knowledge"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/internal/registry"
	"github.com/MrWong99/reportfix/internal/resilience"
	"github.com/MrWong99/reportfix/pkg/types"
)

const (
	defaultMaxInputChars = 20000
	defaultRemoteTimeout = 10 * time.Second
	defaultAuditTimeout  = 5 * time.Second
	defaultTopK          = 3
	defaultFallbackModel = types.LocalProvider
)

// Outcome is what a successful run returns.
type Outcome struct {
	Result types.CorrectionResult

	// Warnings lists every degradation of this run in the order it happened.
	Warnings []types.Warning

	// AuditID is empty when the audit entry could not be written anywhere.
	AuditID string

	// RequestedTypes are the resolved correction type IDs in application order.
	RequestedTypes []string
}

// HasWarning reports whether o carries a warning with the given code.
func (o *Outcome) HasWarning(code types.WarningCode) bool {
	for _, w := range o.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Config holds the tunables of an [Orchestrator]. Zero values take defaults.
type Config struct {
	// MaxInputChars bounds the request text in runes. Default: 20000.
	MaxInputChars int

	// RemoteTimeout bounds the whole remote chain of one run. Default: 10s.
	RemoteTimeout time.Duration

	// AuditTimeout bounds the audit write. Default: 5s.
	AuditTimeout time.Duration

	// FallbackModel is the ID of the local model reported when the rule
	// engine stands in for a failed remote. Default: "local".
	FallbackModel string

	// TopK is the number of knowledge sources returned. Default: 3.
	TopK int

	// Breaker is the circuit breaker template for every remote backend.
	Breaker resilience.CircuitBreakerConfig
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithConfig sets the orchestrator tunables.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithRemote registers the backend serving the remote model modelID.
func WithRemote(modelID string, r correction.Remote) Option {
	return func(o *Orchestrator) { o.remotes[modelID] = r }
}

// WithRanker enables knowledge retrieval.
func WithRanker(r *knowledge.Ranker) Option {
	return func(o *Orchestrator) { o.ranker = r }
}

// WithMetrics overrides the metrics instruments. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStateHook registers fn to observe every state change of every run.
// fn is called synchronously on the run's goroutine.
func WithStateHook(fn func(ctx context.Context, s State)) Option {
	return func(o *Orchestrator) { o.hook = fn }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs correction requests. It is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	types    *registry.CorrectionTypes
	models   *registry.Models
	engine   *correction.Engine
	quality  *quality.Calculator
	store    *audit.Store
	ranker   *knowledge.Ranker
	metrics  *observe.Metrics
	hook     func(context.Context, State)
	now      func() time.Time
	remotes  map[string]correction.Remote
	fallback types.AIModelConfig

	// chains maps a remote model ID to the fallback group serving it.
	chains map[string]*resilience.FallbackGroup[backend]
}

// New wires an [Orchestrator]. Every enabled remote model must have a backend
// registered with [WithRemote], and the fallback model must be a registered
// local model.
func New(ct *registry.CorrectionTypes, models *registry.Models, engine *correction.Engine, calc *quality.Calculator, store *audit.Store, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		types:   ct,
		models:  models,
		engine:  engine,
		quality: calc,
		store:   store,
		now:     time.Now,
		remotes: make(map[string]correction.Remote),
		chains:  make(map[string]*resilience.FallbackGroup[backend]),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.applyDefaults()

	fb, err := models.Get(o.cfg.FallbackModel)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fallback model: %w", err)
	}
	if !fb.IsLocal() {
		return nil, fmt.Errorf("pipeline: fallback model %q is served by %q, want %q", fb.ID, fb.Provider, types.LocalProvider)
	}
	o.fallback = fb

	if err := o.buildChains(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) applyDefaults() {
	if o.cfg.MaxInputChars <= 0 {
		o.cfg.MaxInputChars = defaultMaxInputChars
	}
	if o.cfg.RemoteTimeout <= 0 {
		o.cfg.RemoteTimeout = defaultRemoteTimeout
	}
	if o.cfg.AuditTimeout <= 0 {
		o.cfg.AuditTimeout = defaultAuditTimeout
	}
	if o.cfg.FallbackModel == "" {
		o.cfg.FallbackModel = defaultFallbackModel
	}
	if o.cfg.TopK <= 0 {
		o.cfg.TopK = defaultTopK
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.cfg.Breaker.OnStateChange == nil {
		m := o.metrics
		o.cfg.Breaker.OnStateChange = func(name string, _, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}
}

// backend is one remote entry of a fallback chain.
type backend struct {
	id     string
	remote correction.Remote
}

// buildChains creates one fallback group per enabled remote model: the model
// itself followed by its enabled remote fallbacks, each behind its own
// circuit breaker.
func (o *Orchestrator) buildChains() error {
	var missing []error
	for _, m := range o.models.List() {
		if !m.Enabled || m.IsLocal() {
			continue
		}
		if _, ok := o.remotes[m.ID]; !ok {
			missing = append(missing, fmt.Errorf("pipeline: model %q: no remote backend registered", m.ID))
		}
	}
	if len(missing) > 0 {
		return errors.Join(missing...)
	}

	fbCfg := resilience.FallbackConfig{CircuitBreaker: o.cfg.Breaker}
	for _, m := range o.models.List() {
		if !m.Enabled || m.IsLocal() {
			continue
		}
		chain := o.models.RemoteChain(m)
		fg := resilience.NewFallbackGroup(backend{id: m.ID, remote: o.remotes[m.ID]}, m.ID, fbCfg)
		for _, next := range chain[1:] {
			fg.AddFallback(next.ID, backend{id: next.ID, remote: o.remotes[next.ID]})
		}
		o.chains[m.ID] = fg
	}
	return nil
}

// Breaker returns the circuit breaker guarding the remote model id, or nil.
func (o *Orchestrator) Breaker(id string) *resilience.CircuitBreaker {
	fg, ok := o.chains[id]
	if !ok {
		return nil
	}
	return fg.Breaker(id)
}

// run carries the state of a single request.
type run struct {
	o        *Orchestrator
	ctx      context.Context
	span     trace.Span
	warnings []types.Warning
}

func (r *run) enter(s State) {
	observe.Logger(r.ctx).Debug("pipeline state", "state", s.String())
	r.span.AddEvent(s.String())
	if r.o.hook != nil {
		r.o.hook(r.ctx, s)
	}
}

func (r *run) warn(code types.WarningCode, msg string) {
	r.warnings = append(r.warnings, types.Warning{Code: code, Message: msg})
	r.o.metrics.RecordWarning(r.ctx, string(code))
	observe.Logger(r.ctx).Warn("correction degraded", "code", string(code), "detail", msg)
}

// cancelled returns a wrapped context error once the caller gave up.
func (r *run) cancelled() error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// Run processes req. The returned error is a [*ValidationError] for invalid
// input or wraps the context error when ctx ends before persistence starts.
// Once persisting has begun the run completes regardless of ctx.
func (o *Orchestrator) Run(ctx context.Context, req types.CorrectionRequest) (*Outcome, error) {
	start := o.now()
	ctx, span := observe.StartSpan(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("model.requested", req.ModelID),
			attribute.Int("types.requested", len(req.CorrectionTypeIDs)),
		),
	)
	defer span.End()

	o.metrics.InFlightCorrections.Add(ctx, 1)
	defer o.metrics.InFlightCorrections.Add(ctx, -1)

	r := &run{o: o, ctx: ctx, span: span}
	r.enter(StateIdle)

	out, err := o.run(r, req, start)
	switch {
	case err == nil:
		o.metrics.RecordCorrection(ctx, "ok", out.Result.Degraded)
	case errors.Is(err, ErrValidation):
		o.metrics.RecordCorrection(ctx, "rejected", false)
		span.SetStatus(codes.Error, "rejected")
	default:
		o.metrics.RecordCorrection(ctx, "cancelled", false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.metrics.CorrectionDuration.Record(ctx, o.now().Sub(start).Seconds())
	return out, err
}

func (o *Orchestrator) run(r *run, req types.CorrectionRequest, start time.Time) (*Outcome, error) {
	r.enter(StateValidating)
	entries, err := o.validate(req)
	if err != nil {
		r.enter(StateRejected)
		return nil, err
	}
	model := o.selectModel(r, req.ModelID)
	requested := registry.Descriptors(entries)
	ids := make([]string, len(requested))
	for i, t := range requested {
		ids[i] = t.ID
	}

	result := types.CorrectionResult{
		OriginalText: req.Text,
		CreatedAt:    start,
	}

	served := false
	if !model.IsLocal() && len(entries) > 0 {
		if err := r.cancelled(); err != nil {
			return nil, err
		}
		r.enter(StateAttemptingRemote)
		text, applied, usedID, err := o.attemptRemote(r.ctx, model, req.Text, requested)
		if err == nil {
			r.enter(StateRemoteSucceeded)
			used, _ := o.models.Get(usedID)
			result.CorrectedText = text
			result.AppliedCorrections = applied
			result.ModelUsed = used
			served = true
		} else {
			if cerr := r.cancelled(); cerr != nil {
				return nil, cerr
			}
			r.enter(StateRemoteFailed)
			r.warn(types.WarnRemoteCorrectionFailure,
				fmt.Sprintf("remote model %q unavailable, used local fallback %q: %v", model.ID, o.fallback.ID, err))
			result.Degraded = true
		}
	}

	if !served {
		if err := r.cancelled(); err != nil {
			return nil, err
		}
		r.enter(StateRunningFallback)
		result.CorrectedText, result.AppliedCorrections = o.engine.Apply(req.Text, registry.Strategies(entries))
		result.ModelUsed = model
		if !model.IsLocal() || len(entries) == 0 {
			result.ModelUsed = o.fallback
		}
	}

	if err := r.cancelled(); err != nil {
		return nil, err
	}
	r.enter(StateScoring)
	result.Quality = o.quality.Score(result.CorrectedText, result.AppliedCorrections)

	if err := r.cancelled(); err != nil {
		return nil, err
	}
	r.enter(StateRetrieving)
	result.Sources = []types.RankedSource{}
	if o.ranker != nil {
		result.Sources = o.ranker.Rank(result.CorrectedText, o.cfg.TopK)
	}

	if err := r.cancelled(); err != nil {
		return nil, err
	}
	result.Duration = o.now().Sub(start)

	// The caller may no longer cancel from here on.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), o.cfg.AuditTimeout)
	defer cancel()
	r.ctx = pctx
	r.enter(StatePersisting)
	auditID := o.persist(r, result, ids)

	r.enter(StateDone)
	r.span.SetAttributes(
		attribute.String("model.used", result.ModelUsed.ID),
		attribute.Bool("degraded", result.Degraded),
		attribute.Int("warnings", len(r.warnings)),
	)
	return &Outcome{
		Result:         result,
		Warnings:       r.warnings,
		AuditID:        auditID,
		RequestedTypes: ids,
	}, nil
}

func (o *Orchestrator) validate(req types.CorrectionRequest) ([]registry.CorrectionTypeEntry, error) {
	switch {
	case strings.TrimSpace(req.Text) == "":
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	case !utf8.ValidString(req.Text):
		return nil, &ValidationError{Field: "text", Reason: "must be valid UTF-8"}
	case utf8.RuneCountInString(req.Text) > o.cfg.MaxInputChars:
		return nil, &ValidationError{Field: "text", Reason: fmt.Sprintf("exceeds %d characters", o.cfg.MaxInputChars)}
	}

	entries, err := o.types.Resolve(req.CorrectionTypeIDs)
	if err != nil {
		var sel *registry.SelectionError
		if errors.As(err, &sel) {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("correction_type_ids[%d]", sel.Index),
				Reason: sel.Err.Error(),
				Err:    err,
			}
		}
		return nil, &ValidationError{Field: "correction_type_ids", Reason: err.Error(), Err: err}
	}
	return entries, nil
}

// selectModel resolves the requested model, substituting the default model
// when it is unknown or disabled. With no usable model at all the local
// fallback serves the request.
func (o *Orchestrator) selectModel(r *run, id string) types.AIModelConfig {
	if id != "" {
		m, err := o.models.Resolve(id)
		if err == nil {
			return m
		}
		def, derr := o.models.Default()
		if derr != nil {
			def = o.fallback
		}
		r.warn(types.WarnModelUnavailable, fmt.Sprintf("model %q unavailable, using %q: %v", id, def.ID, err))
		return def
	}
	def, err := o.models.Default()
	if err != nil {
		return o.fallback
	}
	return def
}

// attemptRemote runs the fallback chain of model under the remote timeout and
// returns the ID of the model that answered.
func (o *Orchestrator) attemptRemote(ctx context.Context, model types.AIModelConfig, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, string, error) {
	fg, ok := o.chains[model.ID]
	if !ok {
		return "", nil, "", fmt.Errorf("pipeline: model %q: no remote backend registered", model.ID)
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.remote",
		trace.WithAttributes(attribute.StringSlice("chain", fg.Names())))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RemoteTimeout)
	defer cancel()

	type reply struct {
		text    string
		applied []types.AppliedCorrection
	}
	res, usedID, err := resilience.ExecuteWithResult(ctx, fg, func(ctx context.Context, b backend) (reply, error) {
		callStart := time.Now()
		out, applied, err := b.remote.Correct(ctx, text, requested)
		if err == nil {
			applied, err = correction.NormalizeRemote(requested, out, applied)
		}
		o.metrics.RecordRemoteCall(ctx, b.id, time.Since(callStart).Seconds(), err)
		return reply{text: out, applied: applied}, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote chain failed")
		return "", nil, "", err
	}
	span.SetAttributes(attribute.String("served_by", usedID))
	return res.text, res.applied, usedID, nil
}

// persist records the audit entry and turns partial or total failure into
// warnings. It returns the stored entry ID, or "" on total failure.
func (o *Orchestrator) persist(r *run, result types.CorrectionResult, ids []string) string {
	ctx, span := observe.StartSpan(r.ctx, "pipeline.persist")
	defer span.End()

	entry := types.AuditEntry{
		InputLength:    utf8.RuneCountInString(result.OriginalText),
		OutputLength:   utf8.RuneCountInString(result.CorrectedText),
		ModelUsed:      result.ModelUsed.ID,
		RequestedTypes: ids,
		Confidence:     result.Quality.Confidence(),
		Degraded:       result.Degraded,
		Result:         result.Clone(),
	}

	writeStart := time.Now()
	stored, ack, err := o.store.Record(ctx, entry)
	o.metrics.AuditWriteDuration.Record(ctx, time.Since(writeStart).Seconds())
	if o.store.HasPrimary() {
		o.metrics.RecordAuditWrite(ctx, string(audit.SourceRemote), ack.Remote)
	}
	o.metrics.RecordAuditWrite(ctx, string(audit.SourceLocal), ack.Local)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		r.warn(types.WarnPersistenceFailure, fmt.Sprintf("audit entry not recorded: %v", err))
		return ""
	case ack.Degraded():
		r.warn(types.WarnPersistenceDegraded, fmt.Sprintf("audit entry recorded locally only: %v", ack.RemoteErr))
	}
	return stored.ID
}
