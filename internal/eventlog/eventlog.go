// Package eventlog implements the append-only record behind all durable
// workflow state. Entries are JSON lines tagged with an explicit kind; the
// projection layer derives current state by scanning them, so the log is the
// only thing that has to survive a restart.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind tags an entry with the category the projection scan resolves.
type Kind string

const (
	KindInitialized Kind = "initialized"
	KindSpec        Kind = "spec"
	KindTaskQueue   Kind = "task_queue"
	KindRepository  Kind = "repository"
	KindCompleted   Kind = "completed"
	KindProgress    Kind = "progress"
	KindFailure     Kind = "failure"
	// KindReset is a barrier: projection scans stop when they reach one, so
	// history before a reset no longer shapes current state. The entries
	// themselves are never deleted.
	KindReset Kind = "reset"
)

// Entry is a single immutable record in the log.
type Entry struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// Malformed marks a line that could not be parsed during a read. Such
	// entries carry no kind or payload and are skipped by scans.
	Malformed bool `json:"-"`
}

// DecodePayload unmarshals the entry payload into out. Malformed or empty
// payloads report an error without panicking.
func (e Entry) DecodePayload(out any) error {
	if e.Malformed {
		return errors.New("eventlog: entry is malformed")
	}
	if len(e.Payload) == 0 {
		return errors.New("eventlog: entry has no payload")
	}
	return json.Unmarshal(e.Payload, out)
}

// Logger records internal append failures. It matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Log is a file-backed append-only event log.
type Log struct {
	path   string
	logger Logger
	clock  func() time.Time
	mu     sync.Mutex
}

// Option customizes a Log during construction.
type Option func(*Log)

// WithLogger directs internal error reporting to the given logger.
func WithLogger(l Logger) Option {
	return func(log *Log) {
		if l != nil {
			log.logger = l
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(log *Log) {
		if clock != nil {
			log.clock = clock
		}
	}
}

// New creates a log backed by the file at path. The file is created lazily
// on first append.
func New(path string, opts ...Option) *Log {
	log := &Log{
		path:   path,
		logger: nopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(log)
	}
	return log
}

// Path returns the file backing this log.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry to the log. It never fails the caller-visible
// flow: marshal and IO errors are reported to the internal logger and the
// entry is dropped.
func (l *Log) Append(kind Kind, payload any) {
	if l == nil {
		return
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: l.clock().UTC(),
	}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			l.logger.Printf("eventlog: marshal %s payload: %v", kind, err)
			return
		}
		entry.Payload = encoded
	}
	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("eventlog: marshal %s entry: %v", kind, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.logger.Printf("eventlog: ensure dir: %v", err)
		return
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.logger.Printf("eventlog: open %s: %v", l.path, err)
		return
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		l.logger.Printf("eventlog: append %s: %v", kind, err)
	}
}

// Read returns every entry oldest-first. Lines that fail to parse are
// returned as Malformed placeholders rather than aborting the read, so one
// corrupt historical line cannot poison recovery.
func (l *Log) Read() ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Kind == "" {
			entries = append(entries, Entry{Malformed: true})
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}
