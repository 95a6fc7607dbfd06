// Package project defines the domain model for an incrementally built
// project: the spec produced at setup, the ordered task queue consumed one
// task per cycle, and the coarse lifecycle phase. The projection in this
// package derives current state from the event log.
package project

import (
	"fmt"
	"strings"
	"time"
)

// Priority ranks a task within a plan. The queue order, not the priority,
// decides commit order; priority is advisory metadata from the producer.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// NormalizePriority lowercases and defaults unknown values to medium.
func NormalizePriority(value string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// Task is one atomic, independently committable unit of generated work.
// Tasks are immutable once created and leave the queue only on a successful
// commit.
type Task struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TargetPath  string   `json:"target_path"`
	Priority    Priority `json:"priority"`
}

// Validate enforces the baseline shape of a planned task.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("project: task title is required")
	}
	return nil
}

// Complexity enumerates the supported project complexity levels.
type Complexity string

const (
	ComplexityBeginner     Complexity = "beginner"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// ValidComplexity reports whether value names a supported level.
func ValidComplexity(value string) bool {
	switch Complexity(strings.ToLower(strings.TrimSpace(value))) {
	case ComplexityBeginner, ComplexityIntermediate, ComplexityAdvanced:
		return true
	}
	return false
}

// Spec describes the project decided during setup. Read-only after the
// setup cycle persists it.
type Spec struct {
	Title      string   `json:"title"`
	Type       string   `json:"type,omitempty"`
	Complexity string   `json:"complexity"`
	TechStack  []string `json:"tech_stack,omitempty"`
	Features   []string `json:"features,omitempty"`
}

// RepositoryRef identifies a repository on the hosting side.
type RepositoryRef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Phase is the coarse lifecycle state of a project.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	// PhaseInitializing is transient within one setup cycle and is never
	// persisted: a crash mid-setup is observed as uninitialized on restart,
	// which forces a clean re-run instead of a half-initialized state.
	PhaseInitializing Phase = "initializing"
	PhaseActive       Phase = "active"
	PhaseCompleted    Phase = "completed"
)

// State is the aggregate view of a project. The orchestrator exclusively
// owns mutation; everyone else reads snapshots.
type State struct {
	Phase       Phase          `json:"phase"`
	Spec        *Spec          `json:"spec,omitempty"`
	TaskQueue   []Task         `json:"task_queue,omitempty"`
	Repository  *RepositoryRef `json:"repository,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// PeekFront returns the next task without removing it.
func (s *State) PeekFront() (Task, bool) {
	if s == nil || len(s.TaskQueue) == 0 {
		return Task{}, false
	}
	return s.TaskQueue[0], true
}

// PopFront removes the task matching title. Completion is matched by
// identity rather than position so a queue that shifted between peek and
// completion cannot drop the wrong task. Reports whether a task was removed.
func (s *State) PopFront(title string) bool {
	if s == nil {
		return false
	}
	for i, task := range s.TaskQueue {
		if task.Title == title {
			s.TaskQueue = append(s.TaskQueue[:i:i], s.TaskQueue[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceAll swaps the queue wholesale, preserving the given order. Reserved
// for recovery when the cached queue was lost but the log still holds a plan.
func (s *State) ReplaceAll(tasks []Task) {
	if s == nil {
		return
	}
	s.TaskQueue = cloneTasks(tasks)
}

// MarkCompleted flips the phase to completed. The transition is idempotent;
// it reports true only on the first flip so callers can gate one-time side
// effects like notifications.
func (s *State) MarkCompleted() bool {
	if s == nil || s.Phase == PhaseCompleted {
		return false
	}
	s.Phase = PhaseCompleted
	return true
}

// Remaining returns the number of queued tasks.
func (s *State) Remaining() int {
	if s == nil {
		return 0
	}
	return len(s.TaskQueue)
}

// CheckInvariants verifies the structural rules that recovered state must
// satisfy before a cycle may trust it.
func (s *State) CheckInvariants() error {
	if s == nil {
		return nil
	}
	switch s.Phase {
	case PhaseUninitialized:
		if s.Spec != nil || len(s.TaskQueue) > 0 {
			return fmt.Errorf("project: %w: uninitialized state carries spec or tasks", ErrInvariantViolation)
		}
	case PhaseActive:
		if s.Spec == nil {
			return fmt.Errorf("project: %w: active state without spec", ErrInvariantViolation)
		}
		if s.Repository == nil {
			return fmt.Errorf("project: %w: active state without repository", ErrInvariantViolation)
		}
	}
	return nil
}

// Clone returns an independent copy of the state.
func (s State) Clone() State {
	out := s
	out.TaskQueue = cloneTasks(s.TaskQueue)
	if s.Spec != nil {
		spec := *s.Spec
		spec.TechStack = cloneStrings(s.Spec.TechStack)
		spec.Features = cloneStrings(s.Spec.Features)
		out.Spec = &spec
	}
	if s.Repository != nil {
		repo := *s.Repository
		out.Repository = &repo
	}
	return out
}

func cloneTasks(tasks []Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
