// Package httpapi exposes the correction pipeline over HTTP.
//
// Routes:
//
//	POST /v1/corrections   run one correction
//	GET  /v1/audit         recent audit entries, newest first
//	POST /v1/exports       render a result in a configured format
//	GET  /v1/catalog       configured correction types, models, sources and formats
//	GET  /v1/preview       WebSocket live preview
//	GET  /healthz, /readyz liveness and readiness
//	GET  /metrics          Prometheus exposition
//
// Routes whose backing component was not supplied are not registered.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/export"
	"github.com/MrWong99/reportfix/internal/health"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/internal/preview"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Corrector runs correction requests. Implemented by [*pipeline.Orchestrator].
type Corrector interface {
	Run(ctx context.Context, req types.CorrectionRequest) (*pipeline.Outcome, error)
}

// AuditTrail lists recent audit entries. Implemented by [*audit.Store].
type AuditTrail interface {
	List(ctx context.Context, limit int) ([]types.AuditEntry, audit.Source, error)
}

var (
	_ Corrector  = (*pipeline.Orchestrator)(nil)
	_ AuditTrail = (*audit.Store)(nil)
)

// Option configures a [Server].
type Option func(*Server)

// WithPreview enables the /v1/preview WebSocket.
func WithPreview(p *preview.Scheduler) Option {
	return func(s *Server) { s.preview = p }
}

// WithExporter enables /v1/exports.
func WithExporter(e *export.Exporter) Option {
	return func(s *Server) { s.exporter = e }
}

// WithQuality adds quality bands to correction responses.
func WithQuality(c *quality.Calculator) Option {
	return func(s *Server) { s.quality = c }
}

// WithCatalog enables /v1/catalog. fn returns the JSON-encodable catalog.
func WithCatalog(fn func() any) Option {
	return func(s *Server) { s.catalog = fn }
}

// WithHealth registers /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics overrides the instruments used by the request middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the HTTP front end. Build it with [New] and serve [Server.Handler].
type Server struct {
	corrector      Corrector
	trail          AuditTrail
	preview        *preview.Scheduler
	exporter       *export.Exporter
	quality        *quality.Calculator
	catalog        func() any
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
}

// New creates a Server around the orchestrator and audit trail.
func New(corrector Corrector, trail AuditTrail, opts ...Option) *Server {
	s := &Server{corrector: corrector, trail: trail}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/corrections", s.handleCorrect)
	mux.HandleFunc("GET /v1/audit", s.handleAudit)
	if s.exporter != nil {
		mux.HandleFunc("POST /v1/exports", s.handleExport)
	}
	if s.catalog != nil {
		mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	}
	if s.preview != nil {
		mux.HandleFunc("GET /v1/preview", s.handlePreview)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observe.Logger(ctx).Warn("httpapi: write response", slog.Any("err", err))
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg, field string) {
	writeJSON(ctx, w, status, errorBody{Error: msg, Field: field})
}

// decodeBody decodes a size-limited JSON request body into v. In strict mode
// unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}
