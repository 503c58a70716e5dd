// Package mcpserver exposes the correction pipeline as Model Context Protocol
// tools, so editors and agents can correct reports without the HTTP API.
//
// Two tools are registered:
//
//   - correct_report runs one correction and returns the same JSON document as
//     POST /v1/corrections.
//   - recent_audit lists the newest audit entries.
//
// The server speaks JSON-RPC 2.0 over stdio via [Server.Run].
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/httpapi"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/pkg/types"
)

// Tool names.
const (
	ToolCorrectReport = "correct_report"
	ToolRecentAudit   = "recent_audit"
)

// Corrector runs one correction request.
type Corrector interface {
	Run(ctx context.Context, req types.CorrectionRequest) (*pipeline.Outcome, error)
}

// AuditTrail lists recent audit entries.
type AuditTrail interface {
	List(ctx context.Context, limit int) ([]types.AuditEntry, audit.Source, error)
}

// CorrectInput is the argument object of correct_report.
type CorrectInput struct {
	Text              string   `json:"text" jsonschema:"the report text to correct"`
	CorrectionTypeIDs []string `json:"correction_type_ids,omitempty" jsonschema:"correction type IDs to apply; see the catalog"`
	ModelID           string   `json:"model_id,omitempty" jsonschema:"model ID; the default model is used when empty"`
}

// AuditInput is the argument object of recent_audit.
type AuditInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of entries; zero means the retention bound"`
}

// Option configures a [Server].
type Option func(*Server)

// WithVersion sets the implementation version reported during initialisation.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics records tool calls on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithQuality adds quality bands to correct_report results.
func WithQuality(c *quality.Calculator) Option {
	return func(s *Server) { s.quality = c }
}

// Server is an MCP tool server backed by the correction pipeline.
type Server struct {
	server    *mcp.Server
	corrector Corrector
	trail     AuditTrail
	quality   *quality.Calculator
	metrics   *observe.Metrics
	version   string
}

// New creates a Server with both tools registered.
func New(corrector Corrector, trail AuditTrail, opts ...Option) *Server {
	s := &Server{
		corrector: corrector,
		trail:     trail,
		version:   "dev",
	}
	for _, o := range opts {
		o(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{Name: "reportfix", Version: s.version}, nil)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolCorrectReport,
		Description: "Correct a clinical report. Returns the corrected text, applied corrections, quality metrics and ranked reference sources.",
	}, s.correctReport)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolRecentAudit,
		Description: "List the most recent correction audit entries, newest first.",
	}, s.recentAudit)
	return s
}

// Run serves over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves over t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.server.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

func (s *Server) correctReport(ctx context.Context, _ *mcp.CallToolRequest, in CorrectInput) (*mcp.CallToolResult, any, error) {
	out, err := s.corrector.Run(ctx, types.CorrectionRequest{
		Text:              in.Text,
		CorrectionTypeIDs: in.CorrectionTypeIDs,
		ModelID:           in.ModelID,
	})
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			s.record(ctx, ToolCorrectReport, "invalid")
			return toolError(fmt.Sprintf("%s: %s", verr.Field, verr.Reason)), nil, nil
		}
		s.record(ctx, ToolCorrectReport, "error")
		observe.Logger(ctx).Error("mcpserver: correction failed", slog.Any("err", err))
		return nil, nil, fmt.Errorf("correction failed: %w", err)
	}

	res, err := jsonResult(httpapi.NewCorrectionResponse(out, s.quality))
	if err != nil {
		s.record(ctx, ToolCorrectReport, "error")
		return nil, nil, err
	}
	s.record(ctx, ToolCorrectReport, "ok")
	return res, nil, nil
}

func (s *Server) recentAudit(ctx context.Context, _ *mcp.CallToolRequest, in AuditInput) (*mcp.CallToolResult, any, error) {
	if in.Limit < 0 {
		s.record(ctx, ToolRecentAudit, "invalid")
		return toolError("limit: must be a non-negative integer"), nil, nil
	}
	entries, src, err := s.trail.List(ctx, in.Limit)
	if err != nil {
		s.record(ctx, ToolRecentAudit, "error")
		return nil, nil, fmt.Errorf("list audit: %w", err)
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}

	res, err := jsonResult(httpapi.AuditResponse{Source: src, Entries: entries})
	if err != nil {
		s.record(ctx, ToolRecentAudit, "error")
		return nil, nil, err
	}
	s.record(ctx, ToolRecentAudit, "ok")
	return res, nil, nil
}

func (s *Server) record(ctx context.Context, tool, status string) {
	if s.metrics != nil {
		s.metrics.RecordToolCall(ctx, tool, status)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
