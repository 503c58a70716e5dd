package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/httpapi"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type correctorFunc func(ctx context.Context, req types.CorrectionRequest) (*pipeline.Outcome, error)

func (f correctorFunc) Run(ctx context.Context, req types.CorrectionRequest) (*pipeline.Outcome, error) {
	return f(ctx, req)
}

type trailFunc func(ctx context.Context, limit int) ([]types.AuditEntry, audit.Source, error)

func (f trailFunc) List(ctx context.Context, limit int) ([]types.AuditEntry, audit.Source, error) {
	return f(ctx, limit)
}

func upper(_ context.Context, req types.CorrectionRequest) (*pipeline.Outcome, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &pipeline.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	return &pipeline.Outcome{
		Result: types.CorrectionResult{
			OriginalText:  req.Text,
			CorrectedText: strings.ToUpper(req.Text),
			ModelUsed:     types.AIModelConfig{ID: "local", Provider: types.LocalProvider},
		},
		AuditID: "audit-1",
	}, nil
}

func emptyTrail(context.Context, int) ([]types.AuditEntry, audit.Source, error) {
	return nil, audit.SourceLocal, nil
}

// connect starts s on an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := s.server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content items = %d, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestListTools(t *testing.T) {
	t.Parallel()

	cs := connect(t, New(correctorFunc(upper), trailFunc(emptyTrail)))
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{ToolCorrectReport, ToolRecentAudit}
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestCorrectReport(t *testing.T) {
	t.Parallel()

	var got types.CorrectionRequest
	corrector := correctorFunc(func(ctx context.Context, req types.CorrectionRequest) (*pipeline.Outcome, error) {
		got = req
		return upper(ctx, req)
	})
	cs := connect(t, New(corrector, trailFunc(emptyTrail)))

	res := call(t, cs, ToolCorrectReport, map[string]any{
		"text":                "no effusion.",
		"correction_type_ids": []string{"clarity"},
		"model_id":            "local",
	})
	if res.IsError {
		t.Fatalf("IsError = true: %s", text(t, res))
	}

	var resp httpapi.CorrectionResponse
	if err := json.Unmarshal([]byte(text(t, res)), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.CorrectedText != "NO EFFUSION." {
		t.Errorf("corrected_text = %q", resp.CorrectedText)
	}
	if resp.AuditID != "audit-1" {
		t.Errorf("audit_id = %q, want audit-1", resp.AuditID)
	}
	if got.ModelID != "local" || !slices.Equal(got.CorrectionTypeIDs, []string{"clarity"}) {
		t.Errorf("request = %+v", got)
	}
}

func TestCorrectReport_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		corrector Corrector
		wantText  string
	}{
		{
			name:      "validation error",
			corrector: correctorFunc(upper),
			wantText:  "text: must not be empty",
		},
		{
			name: "pipeline failure",
			corrector: correctorFunc(func(context.Context, types.CorrectionRequest) (*pipeline.Outcome, error) {
				return nil, errors.New("boom")
			}),
			wantText: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cs := connect(t, New(tt.corrector, trailFunc(emptyTrail)))
			res := call(t, cs, ToolCorrectReport, map[string]any{"text": " "})
			if !res.IsError {
				t.Fatal("IsError = false, want true")
			}
			if got := text(t, res); !strings.Contains(got, tt.wantText) {
				t.Errorf("error text = %q, want it to contain %q", got, tt.wantText)
			}
		})
	}
}

func TestRecentAudit(t *testing.T) {
	t.Parallel()

	var gotLimit int
	trail := trailFunc(func(_ context.Context, limit int) ([]types.AuditEntry, audit.Source, error) {
		gotLimit = limit
		return []types.AuditEntry{{ID: "b"}, {ID: "a"}}, audit.SourceRemote, nil
	})
	cs := connect(t, New(correctorFunc(upper), trail))

	res := call(t, cs, ToolRecentAudit, map[string]any{"limit": 2})
	if res.IsError {
		t.Fatalf("IsError = true: %s", text(t, res))
	}
	var resp httpapi.AuditResponse
	if err := json.Unmarshal([]byte(text(t, res)), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if gotLimit != 2 {
		t.Errorf("limit = %d, want 2", gotLimit)
	}
	if resp.Source != audit.SourceRemote || len(resp.Entries) != 2 || resp.Entries[0].ID != "b" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRecentAudit_Empty(t *testing.T) {
	t.Parallel()

	cs := connect(t, New(correctorFunc(upper), trailFunc(emptyTrail)))
	res := call(t, cs, ToolRecentAudit, map[string]any{})
	if got := text(t, res); !strings.Contains(got, `"entries":[]`) {
		t.Errorf("result = %s, want an empty entries array", got)
	}
}

func TestRecentAudit_NegativeLimit(t *testing.T) {
	t.Parallel()

	cs := connect(t, New(correctorFunc(upper), trailFunc(emptyTrail)))
	res := call(t, cs, ToolRecentAudit, map[string]any{"limit": -1})
	if !res.IsError {
		t.Fatal("IsError = false, want true")
	}
}
