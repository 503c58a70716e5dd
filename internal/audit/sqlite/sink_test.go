package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/reportfix/internal/audit"
	"github.com/MrWong99/reportfix/internal/audit/audittest"
	"github.com/MrWong99/reportfix/internal/audit/sqlite"
)

func TestSink(t *testing.T) {
	const retention = 4
	audittest.RunSinkTests(t, retention, func(t *testing.T) audit.Sink {
		t.Helper()
		sink, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), sqlite.WithRetention(retention))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = sink.Close() })
		return sink
	})
}

func TestSink_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	first, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := audittest.Entry(t, "gpt-4o", time.Now())
	if err := first.Append(ctx, want); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := second.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != want.ID {
		t.Errorf("Recent after reopen = %+v", got)
	}
}

func TestSink_InMemory(t *testing.T) {
	t.Parallel()

	sink, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sink.Close()

	store := audit.NewStore(audit.WithPrimary(sink))
	recorded, ack, err := store.Record(context.Background(), audittest.Entry(t, "local", time.Now()))
	if err != nil || !ack.Remote || !ack.Local {
		t.Fatalf("Record: ack=%+v err=%v", ack, err)
	}
	entries, src, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if src != audit.SourceRemote || len(entries) != 1 || entries[0].ID != recorded.ID {
		t.Errorf("List = %d entries from %s", len(entries), src)
	}
}
