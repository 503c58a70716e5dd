// Package audittest holds behavioural tests shared by every durable
// [audit.Sink] implementation.
package audittest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/pkg/types"
)

// Entry builds a fully populated audit entry recorded at ts.
func Entry(t *testing.T, model string, ts time.Time) types.AuditEntry {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return types.AuditEntry{
		ID:             id.String(),
		Timestamp:      ts.UTC().Truncate(time.Microsecond),
		InputLength:    36,
		OutputLength:   52,
		ModelUsed:      model,
		RequestedTypes: []string{"terminology", "clarity"},
		Confidence:     0.72,
		Degraded:       true,
		Result: types.CorrectionResult{
			OriginalText:       "There is a nodule in the right lung.",
			CorrectedText:      "There is a well-circumscribed nodule in the right lung.",
			AppliedCorrections: []types.AppliedCorrection{{Type: "terminology", Count: 1, Description: "standardised 1 term"}},
			Quality:            types.QualityMetrics{types.MetricConfidence: 0.72},
			ModelUsed:          types.AIModelConfig{ID: model, Provider: types.LocalProvider, Enabled: true},
			Degraded:           true,
			Duration:           3 * time.Millisecond,
			CreatedAt:          ts.UTC().Truncate(time.Microsecond),
		},
	}
}

// RunSinkTests exercises newSink against the [audit.Sink] contract. newSink
// must return an empty sink that keeps at most retention entries.
func RunSinkTests(t *testing.T, retention int, newSink func(t *testing.T) audit.Sink) {
	t.Helper()

	t.Run("append and read back", func(t *testing.T) {
		sink := newSink(t)
		ctx := context.Background()
		want := Entry(t, "local", time.Now())
		if err := sink.Append(ctx, want); err != nil {
			t.Fatalf("Append: %v", err)
		}
		got, err := sink.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Recent returned %d entries, want 1", len(got))
		}
		g := got[0]
		if g.ID != want.ID || !g.Timestamp.Equal(want.Timestamp) || g.ModelUsed != want.ModelUsed ||
			g.InputLength != want.InputLength || g.OutputLength != want.OutputLength ||
			g.Confidence != want.Confidence || g.Degraded != want.Degraded {
			t.Errorf("summary mismatch:\n got %+v\nwant %+v", g, want)
		}
		if fmt.Sprint(g.RequestedTypes) != fmt.Sprint(want.RequestedTypes) {
			t.Errorf("RequestedTypes = %v, want %v", g.RequestedTypes, want.RequestedTypes)
		}
		if g.Result.CorrectedText != want.Result.CorrectedText || len(g.Result.AppliedCorrections) != 1 {
			t.Errorf("result mismatch: %+v", g.Result)
		}
	})

	t.Run("newest first and retention", func(t *testing.T) {
		sink := newSink(t)
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)
		total := retention + 3
		for i := range total {
			if err := sink.Append(ctx, Entry(t, fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
				t.Fatalf("Append %d: %v", i, err)
			}
		}
		got, err := sink.Recent(ctx, total)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != retention {
			t.Fatalf("Recent returned %d entries, want %d", len(got), retention)
		}
		for i, e := range got {
			if want := fmt.Sprintf("m%02d", total-1-i); e.ModelUsed != want {
				t.Errorf("entry %d = %s, want %s", i, e.ModelUsed, want)
			}
		}
		limited, err := sink.Recent(ctx, 2)
		if err != nil || len(limited) != 2 {
			t.Errorf("Recent(2) = %d entries, %v", len(limited), err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := newSink(t).Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
