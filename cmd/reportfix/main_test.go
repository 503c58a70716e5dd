package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/reportfix/internal/app"
	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/config"
	"github.com/MrWong99/reportfix/internal/httpapi"
)

// execute runs the root command with args and stdin, returning stdout and
// stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// sqliteConfig writes a config file whose audit trail lives in a temp
// SQLite database.
func sqliteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "server:\n  log_level: error\naudit:\n  sqlite_path: " + filepath.Join(dir, "audit.db") + "\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := "reportfix version " + version; !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}

	out, _, err = execute(t, "", "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestCorrect_Stdin(t *testing.T) {
	out, stderr, err := execute(t, "there is a nodule.  no effusion.", "correct", "--type", "clarity")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if got := strings.TrimSpace(out); got != "There is a nodule. No effusion." {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(stderr, "model: local") {
		t.Errorf("stderr = %q, want the correction summary", stderr)
	}
}

func TestCorrect_FileJSON(t *testing.T) {
	report := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(report, []byte("there is a nodule."), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	out, _, err := execute(t, "", "correct", "--type", "clarity", "--file", report, "--json")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	var resp httpapi.CorrectionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OriginalText != "there is a nodule." {
		t.Errorf("original_text = %q", resp.OriginalText)
	}
	if resp.AuditID == "" {
		t.Error("audit_id empty")
	}
}

func TestCorrect_Errors(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{name: "empty text", stdin: "  ", args: []string{"correct", "--type", "clarity"}, wantErr: "text"},
		{name: "unknown type", stdin: "report", args: []string{"correct", "--type", "nope"}, wantErr: "correction_type_ids[0]"},
		{name: "missing file", args: []string{"correct", "--file", "/does/not/exist.txt"}, wantErr: "read report"},
		{name: "missing config", stdin: "report", args: []string{"correct", "--config", "/does/not/exist.yaml"}, wantErr: "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.stdin, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestAudit_PersistsAcrossRuns(t *testing.T) {
	cfgPath := sqliteConfig(t)

	for _, text := range []string{"first report.", "second report."} {
		if _, _, err := execute(t, text, "correct", "--config", cfgPath, "--type", "clarity"); err != nil {
			t.Fatalf("correct %q: %v", text, err)
		}
	}

	out, _, err := execute(t, "", "audit", "--config", cfgPath, "--limit", "5", "--json")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var resp httpapi.AuditResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != audit.SourceRemote {
		t.Errorf("source = %q, want %q", resp.Source, audit.SourceRemote)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(resp.Entries))
	}
	if got := resp.Entries[0].Result.OriginalText; got != "second report." {
		t.Errorf("newest entry = %q, want the second report", got)
	}
}

func TestAudit_NegativeLimit(t *testing.T) {
	_, _, err := execute(t, "", "audit", "--limit", "-1")
	if err == nil || !strings.Contains(err.Error(), "--limit") {
		t.Errorf("err = %v, want a --limit error", err)
	}
}

func TestCatalog(t *testing.T) {
	out, _, err := execute(t, "", "catalog", "--json")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var cat app.Catalog
	if err := json.Unmarshal([]byte(out), &cat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.CorrectionTypes) == 0 || len(cat.Models) == 0 {
		t.Errorf("catalog = %+v, want built-in types and models", cat)
	}

	out, _, err = execute(t, "", "catalog")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, want := range []string{"CORRECTION TYPE", "terminology", "MODEL", "EXPORT FORMAT"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q", want)
		}
	}
}

func TestPrintStartupSummary(t *testing.T) {
	var buf bytes.Buffer
	printStartupSummary(&buf, config.Default())
	out := buf.String()
	for _, want := range []string{"startup summary", ":8080", "Model local", "memory only"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		in   config.LogLevel
		want string
	}{
		{config.LogDebug, "DEBUG"},
		{config.LogInfo, "INFO"},
		{config.LogWarn, "WARN"},
		{config.LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := levelFor(tt.in).String(); got != tt.want {
			t.Errorf("levelFor(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
