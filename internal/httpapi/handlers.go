package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/export"
	"github.com/MrWong99/reportfix/internal/observe"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/internal/quality"
	"github.com/MrWong99/reportfix/pkg/types"
)

// CorrectionResponse is the body of a successful POST /v1/corrections. Its
// result fields use the same names as [types.CorrectionResult], so a response
// can be posted back as the "result" of an export request.
type CorrectionResponse struct {
	OriginalText       string                    `json:"original_text"`
	CorrectedText      string                    `json:"corrected_text"`
	AppliedCorrections []types.AppliedCorrection `json:"applied_corrections"`
	QualityMetrics     types.QualityMetrics      `json:"quality_metrics"`
	QualityBands       map[string]quality.Band   `json:"quality_bands,omitempty"`
	RankedSources      []types.RankedSource      `json:"ranked_sources"`
	ModelUsed          types.AIModelConfig       `json:"model_used"`
	Degraded           bool                      `json:"degraded"`
	Warnings           []types.Warning           `json:"warnings"`
	AuditID            string                    `json:"audit_id"`
	DurationMS         int64                     `json:"duration_ms"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// NewCorrectionResponse flattens an orchestrator outcome. calc may be nil.
func NewCorrectionResponse(out *pipeline.Outcome, calc *quality.Calculator) CorrectionResponse {
	res := out.Result
	resp := CorrectionResponse{
		OriginalText:       res.OriginalText,
		CorrectedText:      res.CorrectedText,
		AppliedCorrections: res.AppliedCorrections,
		QualityMetrics:     res.Quality,
		RankedSources:      res.Sources,
		ModelUsed:          res.ModelUsed,
		Degraded:           res.Degraded,
		Warnings:           out.Warnings,
		AuditID:            out.AuditID,
		DurationMS:         res.Duration.Milliseconds(),
		CreatedAt:          res.CreatedAt,
	}
	if calc != nil {
		resp.QualityBands = calc.Bands(res.Quality)
	}
	if resp.AppliedCorrections == nil {
		resp.AppliedCorrections = []types.AppliedCorrection{}
	}
	if resp.RankedSources == nil {
		resp.RankedSources = []types.RankedSource{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []types.Warning{}
	}
	return resp
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.CorrectionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "")
		return
	}

	out, err := s.corrector.Run(ctx, req)
	if err != nil {
		var verr *pipeline.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(ctx, w, http.StatusUnprocessableEntity, verr.Reason, verr.Field)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(ctx, w, http.StatusServiceUnavailable, "request cancelled", "")
		default:
			observe.Logger(ctx).Error("httpapi: correction failed", slog.Any("err", err))
			writeError(ctx, w, http.StatusInternalServerError, "internal error", "")
		}
		return
	}

	writeJSON(ctx, w, http.StatusOK, NewCorrectionResponse(out, s.quality))
}

// AuditResponse is the body of GET /v1/audit.
type AuditResponse struct {
	// Source is "remote" when the durable store answered and "local" otherwise.
	Source  audit.Source       `json:"source"`
	Entries []types.AuditEntry `json:"entries"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(ctx, w, http.StatusBadRequest, "limit must be a non-negative integer", "limit")
			return
		}
		limit = n
	}

	entries, src, err := s.trail.List(ctx, limit)
	if err != nil {
		observe.Logger(ctx).Error("httpapi: list audit", slog.Any("err", err))
		writeError(ctx, w, http.StatusInternalServerError, "audit trail unavailable", "")
		return
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}
	writeJSON(ctx, w, http.StatusOK, AuditResponse{Source: src, Entries: entries})
}

// ExportRequest is the body of POST /v1/exports.
type ExportRequest struct {
	Result types.CorrectionResult `json:"result"`
	Format string                 `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ExportRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "")
		return
	}
	if req.Format == "" {
		writeError(ctx, w, http.StatusUnprocessableEntity, "format is required", "format")
		return
	}

	art, err := s.exporter.Export(req.Result, req.Format)
	switch {
	case errors.Is(err, export.ErrFormatUnknown):
		writeError(ctx, w, http.StatusNotFound, err.Error(), "format")
		return
	case errors.Is(err, export.ErrFormatDisabled):
		writeError(ctx, w, http.StatusConflict, err.Error(), "format")
		return
	case errors.Is(err, export.ErrFormatUnsupported):
		writeError(ctx, w, http.StatusNotImplemented, err.Error(), "format")
		return
	case err != nil:
		observe.Logger(ctx).Error("httpapi: export", slog.String("format", req.Format), slog.Any("err", err))
		writeError(ctx, w, http.StatusInternalServerError, "export failed", "")
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		observe.Logger(ctx).Warn("httpapi: write export", slog.Any("err", err))
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, s.catalog())
}
