// Package notify delivers fire-and-forget progress notifications. A failed
// notification never aborts a cycle; implementations swallow their own
// errors.
package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ewortham/forgeline/internal/logbook"
)

// EventKind names the lifecycle moment being announced.
type EventKind string

const (
	EventSetupCompleted   EventKind = "setup-completed"
	EventTaskCommitted    EventKind = "task-committed"
	EventCycleFailed      EventKind = "cycle-failed"
	EventProjectCompleted EventKind = "project-completed"
	EventStateReset       EventKind = "state-reset"
)

// Notifier receives lifecycle notifications.
type Notifier interface {
	Notify(kind EventKind, payload map[string]string)
}

// Nop discards every notification.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(EventKind, map[string]string) {}

// Logbook writes notifications into the progress journal.
type Logbook struct {
	Book *logbook.Logbook
}

// NewLogbook wraps a logbook as a Notifier.
func NewLogbook(book *logbook.Logbook) Logbook {
	return Logbook{Book: book}
}

// Notify appends one journal line per notification. Errors inside the
// logbook are already swallowed there.
func (n Logbook) Notify(kind EventKind, payload map[string]string) {
	if n.Book == nil {
		return
	}
	level := logbook.LevelInfo
	if kind == EventCycleFailed {
		level = logbook.LevelError
	}
	n.Book.Append(level, fmt.Sprintf("%s %s", kind, formatPayload(payload)))
}

func formatPayload(payload map[string]string) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, payload[key]))
	}
	return strings.Join(parts, " ")
}
