package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ewortham/forgeline/internal/eventlog"
)

func newTestProjection(t *testing.T) (*Projection, *eventlog.Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log := eventlog.New(path)
	return NewProjection(log), log, path
}

func TestProjectionColdScanRestoresQueueInOrder(t *testing.T) {
	proj, log, _ := newTestProjection(t)
	tasks := threeTasks()
	log.Append(eventlog.KindSpec, Spec{Title: "demo", Complexity: "beginner"})
	log.Append(eventlog.KindRepository, RepositoryRef{Name: "demo"})
	log.Append(eventlog.KindTaskQueue, map[string]any{"tasks": tasks})
	log.Append(eventlog.KindInitialized, map[string]bool{"initialized": true})

	state := proj.Project()
	if state.Phase != PhaseActive {
		t.Fatalf("phase = %s, want %s", state.Phase, PhaseActive)
	}
	if len(state.TaskQueue) != len(tasks) {
		t.Fatalf("queue length = %d, want %d", len(state.TaskQueue), len(tasks))
	}
	for i, task := range tasks {
		if state.TaskQueue[i].Title != task.Title {
			t.Fatalf("queue[%d] = %q, want %q", i, state.TaskQueue[i].Title, task.Title)
		}
	}
}

func TestProjectionLastWriterWins(t *testing.T) {
	proj, log, _ := newTestProjection(t)
	log.Append(eventlog.KindSpec, Spec{Title: "first", Complexity: "beginner"})
	log.Append(eventlog.KindSpec, Spec{Title: "second", Complexity: "advanced"})
	state := proj.Project()
	if state.Spec == nil || state.Spec.Title != "second" {
		t.Fatalf("expected most recent spec to win, got %+v", state.Spec)
	}
}

func TestProjectionToleratesMalformedEntry(t *testing.T) {
	proj, log, path := newTestProjection(t)
	log.Append(eventlog.KindSpec, Spec{Title: "demo", Complexity: "beginner"})
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("%%% not json %%%\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	state := proj.Project()
	if state.Spec == nil || state.Spec.Title != "demo" {
		t.Fatalf("expected well-formed spec despite malformed entry, got %+v", state.Spec)
	}
}

func TestProjectionIncompleteSetupObservedAsUninitialized(t *testing.T) {
	proj, log, _ := newTestProjection(t)
	// A crash mid-setup can leave a marker without spec or repository.
	log.Append(eventlog.KindInitialized, map[string]bool{"initialized": true})
	state := proj.Project()
	if state.Phase != PhaseUninitialized {
		t.Fatalf("phase = %s, want %s", state.Phase, PhaseUninitialized)
	}
	if state.Spec != nil || state.Repository != nil || len(state.TaskQueue) != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestResetIsBarrierForProjectionButNotRecovery(t *testing.T) {
	proj, log, _ := newTestProjection(t)
	tasks := threeTasks()
	log.Append(eventlog.KindSpec, Spec{Title: "demo", Complexity: "beginner"})
	log.Append(eventlog.KindRepository, RepositoryRef{Name: "demo"})
	log.Append(eventlog.KindTaskQueue, map[string]any{"tasks": tasks})
	log.Append(eventlog.KindInitialized, map[string]bool{"initialized": true})

	proj.Reset()
	proj.Invalidate()

	state := proj.Project()
	if state.Phase != PhaseUninitialized || len(state.TaskQueue) != 0 {
		t.Fatalf("expected reset state, got %+v", state)
	}

	recovered, ok := proj.RecoverQueue()
	if !ok {
		t.Fatalf("expected recovery to find the pre-reset plan")
	}
	if len(recovered) != len(tasks) {
		t.Fatalf("recovered %d tasks, want %d", len(recovered), len(tasks))
	}
	for i, task := range tasks {
		if recovered[i].Title != task.Title {
			t.Fatalf("recovered[%d] = %q, want %q", i, recovered[i].Title, task.Title)
		}
	}
}

func TestCompleteTaskPersistsAcrossColdStart(t *testing.T) {
	proj, log, _ := newTestProjection(t)
	tasks := threeTasks()
	log.Append(eventlog.KindSpec, Spec{Title: "demo", Complexity: "beginner"})
	log.Append(eventlog.KindRepository, RepositoryRef{Name: "demo"})
	log.Append(eventlog.KindTaskQueue, map[string]any{"tasks": tasks})
	log.Append(eventlog.KindInitialized, map[string]bool{"initialized": true})

	remaining, completed := proj.CompleteTask(tasks[0].Title)
	if remaining != 2 || completed {
		t.Fatalf("remaining = %d completed = %v, want 2 false", remaining, completed)
	}

	proj.Invalidate()
	state := proj.Project()
	if state.Remaining() != 2 {
		t.Fatalf("cold remaining = %d, want 2", state.Remaining())
	}
	if state.TaskQueue[0].Title != tasks[1].Title {
		t.Fatalf("cold head = %q, want %q", state.TaskQueue[0].Title, tasks[1].Title)
	}
}

func TestCompleteTaskFinalTaskFlipsCompletedOnce(t *testing.T) {
	proj, log, _ := newTestProjection(t)
	log.Append(eventlog.KindSpec, Spec{Title: "demo", Complexity: "beginner"})
	log.Append(eventlog.KindRepository, RepositoryRef{Name: "demo"})
	log.Append(eventlog.KindTaskQueue, map[string]any{"tasks": threeTasks()[:1]})
	log.Append(eventlog.KindInitialized, map[string]bool{"initialized": true})

	remaining, completed := proj.CompleteTask("Scaffold project")
	if remaining != 0 || !completed {
		t.Fatalf("remaining = %d completed = %v, want 0 true", remaining, completed)
	}
	if proj.MarkCompleted() {
		t.Fatalf("expected repeated completion to be a no-op")
	}
	if proj.Project().Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want %s", proj.Project().Phase, PhaseCompleted)
	}
}
