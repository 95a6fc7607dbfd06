// Package scheduler runs development cycles on a fixed interval. It owns the
// single-flight guarantee: at most one cycle executes at a time, whether the
// trigger came from the timer, the HTTP bridge, or the dashboard.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ewortham/forgeline/internal/orchestrator"
)

// ErrCycleInFlight is returned by TriggerNow when a cycle is already running.
var ErrCycleInFlight = errors.New("scheduler: a cycle is already in flight")

// CycleRunner is the slice of the orchestrator the scheduler drives.
type CycleRunner interface {
	DevelopmentCycle(ctx context.Context) (orchestrator.CycleResult, error)
}

// Logger matches the minimal logging contract used across the project.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running     bool                 `json:"running"`
	Interval    time.Duration        `json:"interval"`
	LastRun     time.Time            `json:"last_run,omitempty"`
	LastOutcome orchestrator.Outcome `json:"last_outcome,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
}

// Scheduler ticks on an interval and runs one development cycle per tick.
// Cycle failures are logged and the loop waits for the next tick; the loop
// stops itself once the project reports completion.
type Scheduler struct {
	runner       CycleRunner
	interval     time.Duration
	restartGrace time.Duration
	logger       Logger
	clock        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// flight serializes cycle execution across timer ticks and manual triggers.
	flight sync.Mutex

	lastRun     time.Time
	lastOutcome orchestrator.Outcome
	lastError   string
}

// Option customizes the scheduler instance.
type Option func(*Scheduler)

// WithLogger routes scheduler diagnostics to the given logger.
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRestartGrace sets the pause between stop and start during Restart.
func WithRestartGrace(grace time.Duration) Option {
	return func(s *Scheduler) {
		if grace > 0 {
			s.restartGrace = grace
		}
	}
}

// New builds a stopped scheduler. Call Start to begin ticking.
func New(runner CycleRunner, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: cycle runner is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %v", interval)
	}
	s := &Scheduler{
		runner:       runner,
		interval:     interval,
		restartGrace: 2 * time.Second,
		logger:       nopLogger{},
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the tick loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx, s.done)
	s.logger.Printf("scheduler: started, interval %v", s.interval)
}

// Stop halts the tick loop and waits for any in-flight cycle to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Printf("scheduler: stopped")
}

// Restart stops the loop, waits the grace period, and starts it again.
func (s *Scheduler) Restart() {
	s.Stop()
	time.Sleep(s.restartGrace)
	s.Start()
}

// Status reports whether the loop is running and what the last cycle did.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:     s.running,
		Interval:    s.interval,
		LastRun:     s.lastRun,
		LastOutcome: s.lastOutcome,
		LastError:   s.lastError,
	}
}

// TriggerNow runs one cycle immediately. If a cycle is already in flight the
// call is rejected with ErrCycleInFlight rather than queued.
func (s *Scheduler) TriggerNow(ctx context.Context) (orchestrator.CycleResult, error) {
	if !s.flight.TryLock() {
		return orchestrator.CycleResult{}, ErrCycleInFlight
	}
	defer s.flight.Unlock()
	return s.runLocked(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.tick(ctx) {
				s.mu.Lock()
				s.running = false
				s.cancel()
				s.mu.Unlock()
				s.logger.Printf("scheduler: nothing left to run, stopping")
				return
			}
		}
	}
}

// tick runs one scheduled cycle. A tick that lands while another cycle is in
// flight is skipped, not queued. The return value reports whether the loop
// should stop itself.
func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.flight.TryLock() {
		s.logger.Printf("scheduler: tick skipped, cycle in flight")
		return false
	}
	defer s.flight.Unlock()

	result, err := s.runLocked(ctx)
	if err != nil {
		// Failures are not fatal to the loop; the same task is retried on
		// the next tick.
		s.logger.Printf("scheduler: cycle failed: %v", err)
		return false
	}
	switch result.Outcome {
	case orchestrator.OutcomeCompleted, orchestrator.OutcomeAlreadyCompleted:
		return true
	}
	return false
}

// runLocked executes one cycle. Callers must hold flight.
func (s *Scheduler) runLocked(ctx context.Context) (orchestrator.CycleResult, error) {
	result, err := s.runner.DevelopmentCycle(ctx)

	s.mu.Lock()
	s.lastRun = s.clock()
	s.lastOutcome = result.Outcome
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()
	return result, err
}
