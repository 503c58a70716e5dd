// Package app wires all reportfix subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the catalogs, remote
// backends, audit trail, orchestrator, preview scheduler and exporter from
// the config; Run serves the HTTP API; Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithAuditSink,
// WithBackendRegistry, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/audit/postgres"
	"github.com/MrWong99/reportfix/internal/audit/sqlite"
	"github.com/MrWong99/reportfix/internal/config"
	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/internal/export"
	"github.com/MrWong99/reportfix/internal/health"
	"github.com/MrWong99/reportfix/internal/httpapi"
	"github.com/MrWong99/reportfix/internal/knowledge"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/internal/preview"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/internal/registry"
	"github.com/MrWong99/reportfix/internal/resilience"
	"github.com/MrWong99/reportfix/pkg/types"
)

// Catalog is the read-only view of everything a client can select.
type Catalog struct {
	CorrectionTypes  []types.CorrectionType  `json:"correction_types"`
	Models           []types.AIModelConfig   `json:"models"`
	KnowledgeSources []types.KnowledgeSource `json:"knowledge_sources"`
	ExportFormats    []export.Format         `json:"export_formats"`
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	backend *config.Registry
	metrics *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	types    *registry.CorrectionTypes
	models   *registry.Models
	ranker   *knowledge.Ranker
	sink     audit.Sink
	store    *audit.Store
	quality  *quality.Calculator
	orch     *pipeline.Orchestrator
	preview  *preview.Scheduler
	exporter *export.Exporter
	health   *health.Handler

	metricsHandler http.Handler
	listener       net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackendRegistry replaces the registry holding the remote backend
// factories. Default: a registry filled by [RegisterBuiltinBackends].
func WithBackendRegistry(reg *config.Registry) Option {
	return func(a *App) { a.backend = reg }
}

// WithAuditSink injects the durable audit sink instead of opening the one
// named in the config.
func WithAuditSink(s audit.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics overrides the metrics instruments. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must have passed
// [config.Validate]; [config.Load] guarantees this.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.backend == nil {
		a.backend = config.NewRegistry()
		RegisterBuiltinBackends(a.backend)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Catalogs ──────────────────────────────────────────────────────
	if err := a.initCatalogs(); err != nil {
		return nil, fmt.Errorf("app: init catalogs: %w", err)
	}

	// ── 2. Remote backends ───────────────────────────────────────────────
	remotes, err := a.initBackends()
	if err != nil {
		return nil, fmt.Errorf("app: init backends: %w", err)
	}

	// ── 3. Audit trail ───────────────────────────────────────────────────
	if err := a.initAudit(ctx); err != nil {
		return nil, fmt.Errorf("app: init audit: %w", err)
	}

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	if err := a.initPipeline(remotes); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 5. Preview + export ──────────────────────────────────────────────
	a.preview = preview.New(registry.Strategies(a.types.EnabledEntries()),
		preview.WithQuietPeriod(cfg.Preview.QuietPeriod),
		preview.WithHeadChars(cfg.Preview.HeadChars),
		preview.WithMetrics(a.metrics),
	)
	a.closers = append([]func() error{a.preview.Close}, a.closers...)

	a.exporter, err = export.New(cfg.Export.Formats)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init export: %w", err)
	}

	// ── 6. Health ────────────────────────────────────────────────────────
	checkers := []health.Checker{{
		Name:     "catalogs",
		Critical: true,
		Check: func(context.Context) error {
			if len(a.types.ListEnabled()) == 0 {
				return errors.New("no enabled correction types")
			}
			return nil
		},
	}}
	if a.store.HasPrimary() {
		// The local ring keeps the service usable while the durable store is down.
		checkers = append(checkers, health.Checker{Name: "audit.primary", Check: a.store.Ping})
	}
	a.health = health.New(checkers...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCatalogs() error {
	strategies, err := correction.Builtins(a.cfg.BuiltinConfig())
	if err != nil {
		return err
	}
	if a.types, err = registry.NewCorrectionTypes(a.cfg.CorrectionTypeDefs(), strategies); err != nil {
		return err
	}
	if a.models, err = registry.NewModels(a.cfg.AIModels()); err != nil {
		return err
	}
	if a.cfg.RetrievalEnabled() {
		a.ranker, err = knowledge.NewRanker(a.cfg.Sources(), knowledge.WithHalfLife(a.cfg.Retrieval.HalfLife))
		if err != nil {
			return err
		}
	}
	a.quality = quality.New(a.cfg.QualityOptions()...)
	return nil
}

// initBackends creates one remote corrector per enabled remote model.
func (a *App) initBackends() (map[string]correction.Remote, error) {
	remotes := make(map[string]correction.Remote)
	models := a.cfg.AIModels()
	var errs []error
	for i, mc := range a.cfg.Models {
		m := models[i]
		if m.IsLocal() || !m.Enabled {
			continue
		}
		r, err := a.backend.Create(mc.Backend, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		remotes[m.ID] = r
		slog.Debug("remote backend ready", "model", m.ID, "backend", mc.Backend.Name)
	}
	return remotes, errors.Join(errs...)
}

// initAudit opens the durable sink named in the config, if any, and builds
// the dual-destination store around it.
func (a *App) initAudit(ctx context.Context) error {
	ac := a.cfg.Audit
	if a.sink == nil {
		switch {
		case ac.PostgresDSN != "":
			s, err := postgres.NewSink(ctx, ac.PostgresDSN, postgres.WithRetention(ac.Retention))
			if err != nil {
				return err
			}
			a.sink = s
		case ac.SQLitePath != "":
			s, err := sqlite.Open(ctx, ac.SQLitePath, sqlite.WithRetention(ac.Retention))
			if err != nil {
				return err
			}
			a.sink = s
		}
	}

	opts := []audit.Option{
		audit.WithRetention(ac.Retention),
		audit.WithPrimaryTimeout(ac.Timeout),
	}
	if a.sink != nil {
		opts = append(opts, audit.WithPrimary(a.sink))
	}
	a.store = audit.NewStore(opts...)
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *App) initPipeline(remotes map[string]correction.Remote) error {
	pc := a.cfg.Pipeline
	opts := []pipeline.Option{
		pipeline.WithConfig(pipeline.Config{
			MaxInputChars: pc.MaxInputChars,
			RemoteTimeout: pc.RemoteTimeout,
			AuditTimeout:  a.cfg.Audit.Timeout,
			FallbackModel: pc.FallbackModel,
			TopK:          a.cfg.Retrieval.TopK,
			Breaker: resilience.CircuitBreakerConfig{
				MaxFailures:  pc.Breaker.MaxFailures,
				ResetTimeout: pc.Breaker.ResetTimeout,
				HalfOpenMax:  pc.Breaker.HalfOpenMax,
			},
		}),
		pipeline.WithMetrics(a.metrics),
	}
	if a.ranker != nil {
		opts = append(opts, pipeline.WithRanker(a.ranker))
	}
	for id, r := range remotes {
		opts = append(opts, pipeline.WithRemote(id, r))
	}

	engine := correction.NewEngine(correction.WithSyntheticMinLength(*pc.SyntheticMinLength))
	var err error
	a.orch, err = pipeline.New(a.types, a.models, engine, a.quality, a.store, opts...)
	return err
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the correction pipeline.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orch }

// Audit returns the audit trail.
func (a *App) Audit() *audit.Store { return a.store }

// Exporter returns the result exporter.
func (a *App) Exporter() *export.Exporter { return a.exporter }

// Metrics returns the instruments shared by all subsystems.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Quality returns the quality calculator, used to band metrics.
func (a *App) Quality() *quality.Calculator { return a.quality }

// Catalog returns the configured catalogs.
func (a *App) Catalog() Catalog {
	var sources []types.KnowledgeSource
	if a.ranker != nil {
		sources = a.ranker.Sources()
	}
	if sources == nil {
		sources = []types.KnowledgeSource{}
	}
	return Catalog{
		CorrectionTypes:  a.types.List(),
		Models:           a.models.List(),
		KnowledgeSources: sources,
		ExportFormats:    a.exporter.Formats(),
	}
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	opts := []httpapi.Option{
		httpapi.WithMetrics(a.metrics),
		httpapi.WithPreview(a.preview),
		httpapi.WithExporter(a.exporter),
		httpapi.WithQuality(a.quality),
		httpapi.WithCatalog(func() any { return a.Catalog() }),
		httpapi.WithHealth(a.health),
	}
	if a.metricsHandler != nil {
		opts = append(opts, httpapi.WithMetricsHandler(a.metricsHandler))
	}
	return httpapi.New(a.orch, a.store, opts...).Handler()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API until ctx is cancelled, then drains in-flight
// requests for up to server.shutdown_timeout.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http api listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
