// Package observe provides the observability primitives shared by the
// report-correction service: OpenTelemetry metrics, tracing helpers,
// trace-aware structured logging and an HTTP middleware tying them together.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed for
// scraping by the Prometheus bridge set up in [InitProvider]. A package-level
// [DefaultMetrics] instance exists for convenience; tests should call
// [NewMetrics] with their own [metric.MeterProvider] to stay isolated.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all reportfix metrics.
const meterName = "github.com/MrWong99/reportfix"

// Metrics holds every instrument the service records. All fields are safe for
// concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// CorrectionDuration is the end-to-end latency of one orchestrator run.
	// Attributes: model, path ("remote" or "local").
	CorrectionDuration metric.Float64Histogram

	// RemoteDuration is the latency of a single remote backend call.
	// Attributes: backend, status.
	RemoteDuration metric.Float64Histogram

	// AuditWriteDuration is the latency of [audit.Store.Record].
	AuditWriteDuration metric.Float64Histogram

	// PreviewDuration is the latency of one debounced preview computation.
	PreviewDuration metric.Float64Histogram

	// ToolExecutionDuration is the latency of an MCP tool invocation.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// Corrections counts finished orchestrator runs.
	// Attributes: status ("ok", "rejected", "cancelled"), degraded.
	Corrections metric.Int64Counter

	// Warnings counts warnings attached to responses. Attribute: code.
	Warnings metric.Int64Counter

	// AuditWrites counts audit writes per destination.
	// Attributes: destination ("remote", "local"), status.
	AuditWrites metric.Int64Counter

	// Previews counts preview requests. Attribute: outcome
	// ("computed", "superseded").
	Previews metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	// Attributes: backend, to.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// InFlightCorrections is the number of orchestrator runs in progress.
	InFlightCorrections metric.Int64UpDownCounter

	// PreviewSessions is the number of connected preview sessions.
	PreviewSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) cover in-process passes in the low milliseconds
// up to remote model calls of several seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.CorrectionDuration, "reportfix.correction.duration", "End-to-end latency of a correction request."},
		{&met.RemoteDuration, "reportfix.remote.duration", "Latency of a remote correction backend call."},
		{&met.AuditWriteDuration, "reportfix.audit.write.duration", "Latency of a dual audit write."},
		{&met.PreviewDuration, "reportfix.preview.duration", "Latency of a debounced preview computation."},
		{&met.ToolExecutionDuration, "reportfix.tool_execution.duration", "Latency of MCP tool execution."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Corrections, "reportfix.corrections", "Finished correction requests by status."},
		{&met.Warnings, "reportfix.warnings", "Warnings returned to callers by code."},
		{&met.AuditWrites, "reportfix.audit.writes", "Audit writes by destination and status."},
		{&met.Previews, "reportfix.previews", "Preview requests by outcome."},
		{&met.ToolCalls, "reportfix.tool.calls", "MCP tool invocations by tool name and status."},
		{&met.BreakerTransitions, "reportfix.breaker.transitions", "Circuit breaker state changes by backend."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.InFlightCorrections, err = m.Int64UpDownCounter("reportfix.corrections.in_flight",
		metric.WithDescription("Correction requests currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.PreviewSessions, err = m.Int64UpDownCounter("reportfix.preview.sessions",
		metric.WithDescription("Connected real-time preview sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("reportfix.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCorrection counts one finished orchestrator run.
func (m *Metrics) RecordCorrection(ctx context.Context, status string, degraded bool) {
	m.Corrections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.Bool("degraded", degraded),
	))
}

// RecordWarning counts one warning by code.
func (m *Metrics) RecordWarning(ctx context.Context, code string) {
	m.Warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordAuditWrite counts one write attempt against destination.
func (m *Metrics) RecordAuditWrite(ctx context.Context, destination string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.AuditWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("destination", destination),
		attribute.String("status", status),
	))
}

// RecordRemoteCall records the latency and outcome of one backend call.
func (m *Metrics) RecordRemoteCall(ctx context.Context, backend string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
}

// RecordPreview counts one preview request by outcome.
func (m *Metrics) RecordPreview(ctx context.Context, outcome string) {
	m.Previews.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordToolCall counts one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("to", to),
	))
}
