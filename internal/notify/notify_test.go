package notify

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ewortham/forgeline/internal/logbook"
)

func TestLogbookNotifierWritesSortedPayload(t *testing.T) {
	book, err := logbook.New(filepath.Join(t.TempDir(), "progress.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	n := NewLogbook(book)
	n.Notify(EventTaskCommitted, map[string]string{
		"task":      "Scaffold",
		"path":      "src/index.js",
		"remaining": "2",
	})
	lines, total := book.Tail(1)
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if !strings.Contains(lines[0], "task-committed path=src/index.js remaining=2 task=Scaffold") {
		t.Fatalf("line = %q, want sorted key=value payload", lines[0])
	}
}

func TestLogbookNotifierUsesErrorLevelForFailures(t *testing.T) {
	book, err := logbook.New(filepath.Join(t.TempDir(), "progress.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	NewLogbook(book).Notify(EventCycleFailed, map[string]string{"task": "Scaffold"})
	lines, _ := book.Tail(1)
	if !strings.Contains(lines[0], string(logbook.LevelError)) {
		t.Fatalf("line = %q, want error level", lines[0])
	}
}

func TestLogbookNotifierNilBookIsSafe(t *testing.T) {
	NewLogbook(nil).Notify(EventStateReset, nil)
}
