package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ewortham/forgeline/internal/notify"
	"github.com/ewortham/forgeline/internal/producer"
	"github.com/ewortham/forgeline/internal/project"
	"github.com/ewortham/forgeline/internal/repohost"
)

// Outcome summarizes how a development cycle ended.
type Outcome string

const (
	OutcomeNotInitialized   Outcome = "not-initialized"
	OutcomeAlreadyCompleted Outcome = "already-completed"
	OutcomeCompleted        Outcome = "completed"
	OutcomeCommitted        Outcome = "committed"
)

// CycleResult reports what one development cycle did.
type CycleResult struct {
	Outcome   Outcome `json:"outcome"`
	Task      string  `json:"task,omitempty"`
	Path      string  `json:"path,omitempty"`
	Remaining int     `json:"remaining"`
	Recovered bool    `json:"recovered,omitempty"`
}

// minimumArtifactLength marks the size below which short prose-looking
// output triggers the one-shot strict retry.
const minimumArtifactLength = 120

// explanatoryPhrases are fragments that indicate the producer answered in
// prose instead of emitting an artifact.
var explanatoryPhrases = []string{
	"here is",
	"here's",
	"i cannot",
	"i can't",
	"i'm sorry",
	"as an ai",
	"certainly",
	"sure,",
	"i would",
	"unfortunately",
	"to implement this",
}

// DevelopmentCycle advances exactly one task: peek, generate, commit, pop.
// A failure in generation or commit leaves the queue untouched so the same
// task is retried verbatim next cycle.
func (o *Orchestrator) DevelopmentCycle(ctx context.Context) (CycleResult, error) {
	state := o.projection.Project()
	switch state.Phase {
	case project.PhaseUninitialized, project.PhaseInitializing:
		return CycleResult{Outcome: OutcomeNotInitialized}, nil
	case project.PhaseCompleted:
		return CycleResult{Outcome: OutcomeAlreadyCompleted}, nil
	}
	if err := state.CheckInvariants(); err != nil {
		o.projection.RecordFailure("develop", "", err)
		return CycleResult{}, err
	}

	recovered := false
	task, ok := state.PeekFront()
	if !ok {
		// One-time recovery: an older complete plan may still be in the log
		// even though the projected queue is empty.
		if tasks, found := o.projection.RecoverQueue(); found {
			o.logger.Printf("orchestrator: recovered %d tasks from log", len(tasks))
			o.projection.RestoreQueue(tasks)
			state = o.projection.Project()
			task, ok = state.PeekFront()
			recovered = true
		}
	}
	if !ok {
		if o.projection.MarkCompleted() {
			o.notifier.Notify(notify.EventProjectCompleted, map[string]string{"title": specTitle(state)})
		}
		return CycleResult{Outcome: OutcomeCompleted}, nil
	}

	content, err := o.generateArtifact(ctx, *state.Spec, task)
	if err != nil {
		o.projection.RecordFailure("generate", task.Title, err)
		o.notifier.Notify(notify.EventCycleFailed, map[string]string{"task": task.Title, "stage": "generate"})
		return CycleResult{}, err
	}

	path := NormalizeTargetPath(task.TargetPath, o.fallbackExt)
	revision, err := o.currentRevision(ctx, *state.Repository, path)
	if err != nil {
		o.projection.RecordFailure("commit", task.Title, err)
		o.notifier.Notify(notify.EventCycleFailed, map[string]string{"task": task.Title, "stage": "commit"})
		return CycleResult{}, err
	}
	message := fmt.Sprintf("task: %s", task.Title)
	if _, err := o.host.CommitFile(ctx, *state.Repository, path, content, message, revision); err != nil {
		o.projection.RecordFailure("commit", task.Title, err)
		o.notifier.Notify(notify.EventCycleFailed, map[string]string{"task": task.Title, "stage": "commit"})
		return CycleResult{}, err
	}

	remaining, completedNow := o.projection.CompleteTask(task.Title)
	o.notifier.Notify(notify.EventTaskCommitted, map[string]string{
		"task":      task.Title,
		"path":      path,
		"remaining": strconv.Itoa(remaining),
	})
	if completedNow {
		o.notifier.Notify(notify.EventProjectCompleted, map[string]string{"title": specTitle(state)})
	}
	o.logger.Printf("orchestrator: committed %q to %s (%d remaining)", task.Title, path, remaining)
	return CycleResult{Outcome: OutcomeCommitted, Task: task.Title, Path: path, Remaining: remaining, Recovered: recovered}, nil
}

// generateArtifact enforces the sanity check on producer output: short
// prose-looking content is retried once with the strict flag before the
// cycle accepts or fails it.
func (o *Orchestrator) generateArtifact(ctx context.Context, spec project.Spec, task project.Task) (string, error) {
	req := producer.ArtifactRequest{Spec: spec, Task: task}
	content, err := o.producer.GenerateArtifact(ctx, req)
	if err != nil {
		return "", err
	}
	if looksLikeExplanation(content) {
		o.logger.Printf("orchestrator: output for %q looks like prose, retrying strict", task.Title)
		req.Strict = true
		content, err = o.producer.GenerateArtifact(ctx, req)
		if err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(content) == "" {
		return "", &producer.GenerationError{Op: "generate artifact", Err: fmt.Errorf("empty content for task %q", task.Title)}
	}
	return content, nil
}

func (o *Orchestrator) currentRevision(ctx context.Context, repo project.RepositoryRef, path string) (repohost.Revision, error) {
	_, revision, err := o.host.ReadFile(ctx, repo, path)
	if err != nil {
		if repohost.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return revision, nil
}

func looksLikeExplanation(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) >= minimumArtifactLength {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range explanatoryPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func specTitle(state project.State) string {
	if state.Spec == nil {
		return ""
	}
	return state.Spec.Title
}

// directoryNames are bare segments treated as project directories rather
// than files when they arrive without an extension.
var directoryNames = map[string]struct{}{
	"backend":  {},
	"frontend": {},
	"server":   {},
	"client":   {},
	"src":      {},
	"app":      {},
	"api":      {},
	"web":      {},
}

// NormalizeTargetPath cleans a producer-supplied target path: leading
// slashes and dot segments are stripped, duplicate slashes collapsed, bare
// directory names become dir/src/main.<ext>, trailing-slash paths get an
// index file, and extensionless paths receive the fallback extension.
func NormalizeTargetPath(path, fallbackExt string) string {
	if fallbackExt == "" {
		fallbackExt = ".js"
	}
	trimmed := strings.TrimSpace(strings.ReplaceAll(path, "\\", "/"))
	wasDirectory := strings.HasSuffix(trimmed, "/")

	var segments []string
	for _, segment := range strings.Split(trimmed, "/") {
		switch segment {
		case "", ".", "..":
			continue
		}
		segments = append(segments, segment)
	}
	if len(segments) == 0 {
		return "index" + fallbackExt
	}

	cleaned := strings.Join(segments, "/")
	if wasDirectory {
		return cleaned + "/index" + fallbackExt
	}
	last := segments[len(segments)-1]
	if strings.Contains(last, ".") {
		return cleaned
	}
	if len(segments) == 1 {
		if _, known := directoryNames[strings.ToLower(last)]; known {
			return cleaned + "/src/main" + fallbackExt
		}
	}
	return cleaned + fallbackExt
}
