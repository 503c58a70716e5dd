// Package llmcorrect implements a remote report corrector backed by a language
// model.
//
// The [Corrector] sends the report to an [llm.Provider] together with the
// requested correction types. The model is instructed to apply only those
// types and to answer with a JSON object carrying the corrected report and an
// itemised list of corrections per type.
//
// Unlike a best-effort enrichment stage, an unparseable reply is an error:
// the orchestrator must then fall back to the local engine instead of
// returning model prose as a corrected report.
package llmcorrect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/pkg/provider/llm"
	"github.com/MrWong99/reportfix/pkg/types"
)

const defaultTemperature = 0.1

// ErrInputTooLarge is returned when the prompt would exceed the model's input
// token budget.
var ErrInputTooLarge = errors.New("llm corrector: input exceeds model token budget")

const systemPromptTemplate = `You are a clinical report editor for radiology reports.

Your task: apply ONLY the correction types listed below to the report supplied by the user.

Rules:
- Do not add clinical findings that are not stated or directly implied by the report.
- Do not remove findings, measurements or laterality.
- Keep the report in English and preserve section headers that already exist.
- Report one entry per correction type you applied, with the number of edits made.

Correction types:
%s
Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected report>",
  "applied_corrections": [
    {"type": "<correction type id>", "count": <number of edits>, "description": "<short summary>"}
  ]
}

If nothing needs correcting, return an empty applied_corrections array and corrected_text equal to the input.`

type llmResponse struct {
	CorrectedText      *string `json:"corrected_text"`
	AppliedCorrections []struct {
		Type        string `json:"type"`
		Count       int    `json:"count"`
		Description string `json:"description"`
	} `json:"applied_corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) { c.temperature = temp }
}

// WithMaxInputTokens rejects requests whose estimated prompt exceeds n tokens
// before any network call is made. Zero disables the check.
func WithMaxInputTokens(n int) Option {
	return func(c *Corrector) { c.maxInputTokens = n }
}

// Corrector uses an [llm.Provider] to correct clinical reports. It implements
// [correction.Remote] and is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: construct the
// [llm.Provider] with the desired model rather than overriding per request.
type Corrector struct {
	llm            llm.Provider
	temperature    float64
	maxInputTokens int
}

var _ correction.Remote = (*Corrector)(nil)

// New returns a new [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct implements [correction.Remote].
func (c *Corrector) Correct(ctx context.Context, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, error) {
	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(requested),
		Temperature:  c.temperature,
		JSONOnly:     true,
		Messages:     []types.Message{{Role: "user", Content: text}},
	}

	if c.maxInputTokens > 0 {
		n, err := c.llm.CountTokens(append([]types.Message{{Role: "system", Content: req.SystemPrompt}}, req.Messages...))
		if err != nil {
			return "", nil, fmt.Errorf("llm corrector: count tokens: %w", err)
		}
		if n > c.maxInputTokens {
			return "", nil, fmt.Errorf("%w: %d > %d", ErrInputTooLarge, n, c.maxInputTokens)
		}
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("llm corrector: complete: %w", err)
	}
	if resp == nil {
		return "", nil, fmt.Errorf("llm corrector: %w: nil response", correction.ErrInvalidResponse)
	}

	corrected, applied, err := parseResponse(resp.Content)
	if err != nil {
		return "", nil, err
	}
	applied, err = correction.NormalizeRemote(requested, corrected, applied)
	if err != nil {
		return "", nil, fmt.Errorf("llm corrector: %w", err)
	}
	return corrected, applied, nil
}

func buildSystemPrompt(requested []types.CorrectionType) string {
	var sb strings.Builder
	for _, ct := range requested {
		fmt.Fprintf(&sb, "- %s: %s\n", ct.ID, ct.Description)
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse unmarshals the model output after stripping markdown fences.
func parseResponse(content string) (string, []types.AppliedCorrection, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return "", nil, fmt.Errorf("llm corrector: %w: %v", correction.ErrInvalidResponse, err)
	}
	if r.CorrectedText == nil {
		return "", nil, fmt.Errorf("llm corrector: %w: missing corrected_text", correction.ErrInvalidResponse)
	}

	applied := make([]types.AppliedCorrection, 0, len(r.AppliedCorrections))
	for _, a := range r.AppliedCorrections {
		applied = append(applied, types.AppliedCorrection{
			Type:        a.Type,
			Count:       a.Count,
			Description: a.Description,
		})
	}
	return *r.CorrectedText, applied, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
