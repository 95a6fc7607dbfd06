// Package orchestrator drives the two workflow cycles: the setup cycle that
// turns an idea into a spec, plan, and repository, and the development cycle
// that advances exactly one task. The orchestrator exclusively owns state
// mutation; schedulers and HTTP callers only read status and invoke cycles.
package orchestrator

import (
	"fmt"

	"github.com/ewortham/forgeline/internal/notify"
	"github.com/ewortham/forgeline/internal/producer"
	"github.com/ewortham/forgeline/internal/project"
	"github.com/ewortham/forgeline/internal/repohost"
)

// Logger records cycle diagnostics. It matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Orchestrator owns ProjectState mutation. Collaborators are injected so
// tests can stub the producer and host.
type Orchestrator struct {
	projection *project.Projection
	producer   producer.CodeProducer
	fallback   producer.Static
	host       repohost.RepositoryHost
	notifier   notify.Notifier
	logger     Logger

	nameLimit   int
	fallbackExt string
}

// Option customizes an Orchestrator during construction.
type Option func(*Orchestrator)

// WithNotifier overrides the default no-op notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger directs diagnostics to the given logger.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRepoNameLimit caps generated repository names.
func WithRepoNameLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.nameLimit = limit
		}
	}
}

// WithFallbackExtension sets the extension applied to extensionless target
// paths.
func WithFallbackExtension(ext string) Option {
	return func(o *Orchestrator) {
		if ext != "" {
			o.fallbackExt = ext
		}
	}
}

// New wires an orchestrator to its collaborators.
func New(projection *project.Projection, gen producer.CodeProducer, host repohost.RepositoryHost, opts ...Option) (*Orchestrator, error) {
	if projection == nil {
		return nil, fmt.Errorf("orchestrator: projection is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("orchestrator: code producer is required")
	}
	if host == nil {
		return nil, fmt.Errorf("orchestrator: repository host is required")
	}
	o := &Orchestrator{
		projection:  projection,
		producer:    gen,
		fallback:    producer.NewStatic(),
		host:        host,
		notifier:    notify.Nop{},
		logger:      nopLogger{},
		nameLimit:   100,
		fallbackExt: ".js",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Status returns a snapshot of the projected state.
func (o *Orchestrator) Status() project.State {
	return o.projection.Project()
}

// Reset clears the projected state behind a barrier entry in the log. The
// log itself keeps its history.
func (o *Orchestrator) Reset() {
	o.projection.Reset()
	o.notifier.Notify(notify.EventStateReset, nil)
	o.logger.Printf("orchestrator: state reset")
}

// ValidationError reports a malformed request, rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("orchestrator: invalid %s: %s", e.Field, e.Reason)
}
