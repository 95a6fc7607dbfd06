package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "events.jsonl"))
}

func TestAppendAndReadPreservesOrder(t *testing.T) {
	log := testLog(t)
	log.Append(KindInitialized, map[string]bool{"initialized": true})
	log.Append(KindSpec, map[string]string{"title": "demo"})
	log.Append(KindCompleted, nil)

	entries, err := log.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	wantKinds := []Kind{KindInitialized, KindSpec, KindCompleted}
	for i, want := range wantKinds {
		if entries[i].Kind != want {
			t.Fatalf("entries[%d].Kind = %s, want %s", i, entries[i].Kind, want)
		}
		if entries[i].ID == "" {
			t.Fatalf("entries[%d] missing id", i)
		}
	}
}

func TestReadToleratesMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log := New(path)
	log.Append(KindSpec, map[string]string{"title": "demo"})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not json at all\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()
	log.Append(KindCompleted, nil)

	entries, err := log.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if !entries[1].Malformed {
		t.Fatalf("expected entries[1] malformed")
	}
	if entries[0].Kind != KindSpec || entries[2].Kind != KindCompleted {
		t.Fatalf("well-formed entries were not preserved: %+v", entries)
	}
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	log := testLog(t)
	entries, err := log.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestAppendStampsInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	log := New(filepath.Join(t.TempDir(), "events.jsonl"), WithClock(func() time.Time { return fixed }))
	log.Append(KindProgress, map[string]int{"remaining": 2})
	entries, err := log.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if !entries[0].Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %s, want %s", entries[0].Timestamp, fixed)
	}
}
