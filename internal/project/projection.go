package project

import (
	"sync"
	"time"

	"github.com/ewortham/forgeline/internal/eventlog"
)

// Logger records internal projection warnings. It matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Projection derives the current State from the event log, keeping a warm
// in-memory cache between reads. The cache is an accelerator only: cold
// starts rebuild the same state from the log.
type Projection struct {
	log    *eventlog.Log
	logger Logger
	clock  func() time.Time

	mu    sync.Mutex
	cache *State
}

// ProjectionOption customizes a Projection during construction.
type ProjectionOption func(*Projection)

// WithLogger directs scan warnings to the given logger.
func WithLogger(l Logger) ProjectionOption {
	return func(p *Projection) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) ProjectionOption {
	return func(p *Projection) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewProjection wires a projection to its event log.
func NewProjection(log *eventlog.Log, opts ...ProjectionOption) *Projection {
	p := &Projection{
		log:    log,
		logger: nopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project returns a snapshot of the current state, rebuilding from the log
// when the cache is cold.
func (p *Projection) Project() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked().Clone()
}

func (p *Projection) currentLocked() *State {
	if p.cache != nil {
		return p.cache
	}
	state := p.scan()
	p.cache = &state
	return p.cache
}

// queuePayload is the wire shape of a task_queue entry.
type queuePayload struct {
	Tasks []Task `json:"tasks"`
}

// scan rebuilds state by walking entries most-recent-first and taking the
// first structurally valid payload per category. This is a deliberate
// last-writer-wins recovery policy, not a replay of history. Malformed
// entries are skipped; a reset entry is a barrier that ends the scan.
func (p *Projection) scan() State {
	entries, err := p.log.Read()
	if err != nil {
		p.logger.Printf("projection: read event log: %v", err)
	}

	state := State{Phase: PhaseUninitialized, LastUpdated: p.clock()}
	var (
		haveQueue    bool
		haveSpec     bool
		haveRepo     bool
		completed    bool
		initialized  bool
		haveComplete bool
		haveInit     bool
	)
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Malformed {
			continue
		}
		if entry.Kind == eventlog.KindReset {
			break
		}
		switch entry.Kind {
		case eventlog.KindTaskQueue:
			if haveQueue {
				continue
			}
			var payload queuePayload
			if err := entry.DecodePayload(&payload); err != nil {
				p.logger.Printf("projection: skip task_queue entry: %v", err)
				continue
			}
			state.TaskQueue = cloneTasks(payload.Tasks)
			haveQueue = true
		case eventlog.KindSpec:
			if haveSpec {
				continue
			}
			var spec Spec
			if err := entry.DecodePayload(&spec); err != nil || spec.Title == "" {
				p.logger.Printf("projection: skip spec entry: %v", err)
				continue
			}
			state.Spec = &spec
			haveSpec = true
		case eventlog.KindRepository:
			if haveRepo {
				continue
			}
			var ref RepositoryRef
			if err := entry.DecodePayload(&ref); err != nil || ref.Name == "" {
				p.logger.Printf("projection: skip repository entry: %v", err)
				continue
			}
			state.Repository = &ref
			haveRepo = true
		case eventlog.KindCompleted:
			if haveComplete {
				continue
			}
			completed = true
			haveComplete = true
		case eventlog.KindInitialized:
			if haveInit {
				continue
			}
			initialized = true
			haveInit = true
		}
		if haveQueue && haveSpec && haveRepo && haveComplete && haveInit {
			break
		}
	}

	switch {
	case completed:
		state.Phase = PhaseCompleted
	case initialized && state.Spec != nil && state.Repository != nil:
		state.Phase = PhaseActive
	default:
		// An initialized marker without spec or repository means setup never
		// finished persisting; treat it as never started.
		state.Phase = PhaseUninitialized
		state.Spec = nil
		state.Repository = nil
		state.TaskQueue = nil
	}
	return state
}

// SaveSpec persists the spec and updates the cache.
func (p *Projection) SaveSpec(spec Spec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Append(eventlog.KindSpec, spec)
	state := p.currentLocked()
	clone := spec
	state.Spec = &clone
	state.LastUpdated = p.clock()
}

// SaveQueue persists the full task queue and updates the cache.
func (p *Projection) SaveQueue(tasks []Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Append(eventlog.KindTaskQueue, queuePayload{Tasks: tasks})
	state := p.currentLocked()
	state.ReplaceAll(tasks)
	state.LastUpdated = p.clock()
}

// SaveRepository persists the repository reference and updates the cache.
func (p *Projection) SaveRepository(ref RepositoryRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Append(eventlog.KindRepository, ref)
	state := p.currentLocked()
	clone := ref
	state.Repository = &clone
	state.LastUpdated = p.clock()
}

// MarkInitialized records that setup finished and moves the phase to active.
func (p *Projection) MarkInitialized() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Append(eventlog.KindInitialized, map[string]bool{"initialized": true})
	state := p.currentLocked()
	if state.Phase != PhaseCompleted {
		state.Phase = PhaseActive
	}
	state.LastUpdated = p.clock()
}

// MarkCompleted records completion. Reports true only on the first flip so
// callers can gate one-time side effects.
func (p *Projection) MarkCompleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.currentLocked()
	if !state.MarkCompleted() {
		return false
	}
	p.log.Append(eventlog.KindCompleted, map[string]bool{"completed": true})
	state.LastUpdated = p.clock()
	return true
}

// CompleteTask pops the named task, persists the shrunk queue and a progress
// entry, and flips to completed when the queue empties. It returns the
// remaining task count and whether this call performed the completion
// transition.
func (p *Projection) CompleteTask(title string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.currentLocked()
	if !state.PopFront(title) {
		// The head changed between peek and completion; nothing to remove.
		p.logger.Printf("projection: task %q no longer queued", title)
	}
	p.log.Append(eventlog.KindTaskQueue, queuePayload{Tasks: state.TaskQueue})
	p.log.Append(eventlog.KindProgress, map[string]any{
		"task":      title,
		"remaining": len(state.TaskQueue),
	})
	remaining := len(state.TaskQueue)
	state.LastUpdated = p.clock()
	if remaining == 0 && state.MarkCompleted() {
		p.log.Append(eventlog.KindCompleted, map[string]bool{"completed": true})
		return remaining, true
	}
	return remaining, false
}

// RecordFailure appends a failure entry without touching projected state, so
// the failed task is retried verbatim next cycle.
func (p *Projection) RecordFailure(stage, task string, err error) {
	payload := map[string]string{"stage": stage}
	if task != "" {
		payload["task"] = task
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.log.Append(eventlog.KindFailure, payload)
}

// RecoverQueue scans the whole log, past any reset barrier, for the most
// recent non-empty task queue. This is the one-time recovery used when the
// projected queue is empty but an older complete plan still exists.
func (p *Projection) RecoverQueue() ([]Task, bool) {
	entries, err := p.log.Read()
	if err != nil {
		p.logger.Printf("projection: recovery read: %v", err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Malformed || entry.Kind != eventlog.KindTaskQueue {
			continue
		}
		var payload queuePayload
		if err := entry.DecodePayload(&payload); err != nil {
			continue
		}
		if len(payload.Tasks) == 0 {
			continue
		}
		return cloneTasks(payload.Tasks), true
	}
	return nil, false
}

// RestoreQueue replaces the projected queue with recovered tasks and
// persists them so the recovery survives the next cold start.
func (p *Projection) RestoreQueue(tasks []Task) {
	p.SaveQueue(tasks)
}

// Reset appends a barrier entry and clears the cached view. History is kept;
// it simply stops shaping current state.
func (p *Projection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Append(eventlog.KindReset, map[string]bool{"reset": true})
	p.cache = &State{Phase: PhaseUninitialized, LastUpdated: p.clock()}
}

// Invalidate drops the cache so the next read rebuilds from the log.
// Primarily for tests exercising cold-start recovery.
func (p *Projection) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = nil
}
