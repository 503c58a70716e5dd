// Package httpremote implements [correction.Remote] against a generic HTTP
// correction service.
//
// The service receives the report and the requested correction type IDs as
// JSON and answers with the same shape the language-model corrector expects:
//
//	POST {endpoint}
//	{"model": "...", "text": "...", "correction_types": ["terminology"]}
//
//	200 OK
//	{"corrected_text": "...", "applied_corrections": [{"type": "terminology", "count": 1, "description": "..."}]}
//
// Requests are rate limited client-side. There are no retries here; the
// orchestrator's fallback group decides what to try next.
package httpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/reportfix/internal/correction"
	"github.com/MrWong99/reportfix/pkg/types"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultInterval = 100 * time.Millisecond
	maxResponseSize = 4 << 20
)

// Client calls a remote correction service over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ correction.Remote = (*Client)(nil)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRateLimit allows one request every interval with the given burst.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(interval), burst) }
}

// New creates a Client posting to endpoint. model is forwarded verbatim so a
// single service can host several models.
func New(endpoint, model string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("httpremote: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: defaultTimeout},
		limiter:  rate.NewLimiter(rate.Every(defaultInterval), 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type correctRequest struct {
	Model           string   `json:"model,omitempty"`
	Text            string   `json:"text"`
	CorrectionTypes []string `json:"correction_types"`
}

type correctResponse struct {
	CorrectedText      string                    `json:"corrected_text"`
	AppliedCorrections []types.AppliedCorrection `json:"applied_corrections"`
}

// Correct implements [correction.Remote].
func (c *Client) Correct(ctx context.Context, text string, requested []types.CorrectionType) (string, []types.AppliedCorrection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", nil, fmt.Errorf("httpremote: rate limiter: %w", err)
	}

	ids := make([]string, len(requested))
	for i, ct := range requested {
		ids[i] = ct.ID
	}
	body, err := json.Marshal(correctRequest{Model: c.model, Text: text, CorrectionTypes: ids})
	if err != nil {
		return "", nil, fmt.Errorf("httpremote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("httpremote: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("httpremote: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", nil, fmt.Errorf("httpremote: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, fmt.Errorf("httpremote: service error (status %d): %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out correctResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", nil, fmt.Errorf("httpremote: %w: %v", correction.ErrInvalidResponse, err)
	}
	applied, err := correction.NormalizeRemote(requested, out.CorrectedText, out.AppliedCorrections)
	if err != nil {
		return "", nil, fmt.Errorf("httpremote: %w", err)
	}
	return out.CorrectedText, applied, nil
}
