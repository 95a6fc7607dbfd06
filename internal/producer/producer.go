// Package producer defines the code-generation collaborator that turns a
// setup request into a project spec, a spec into a task plan, and a task
// into file content. Network-backed implementations live outside the core;
// the in-tree Static producer is deterministic and doubles as the fallback
// generator.
package producer

import (
	"context"
	"fmt"

	"github.com/ewortham/forgeline/internal/project"
)

// SpecRequest carries the user's setup input.
type SpecRequest struct {
	Name        string
	Description string
	Complexity  string
}

// ArtifactRequest asks for the content of one task. Strict is set on the
// retry after a first attempt produced prose instead of an artifact.
type ArtifactRequest struct {
	Spec   project.Spec
	Task   project.Task
	Strict bool
}

// CodeProducer generates specs, plans, and artifacts.
type CodeProducer interface {
	ProposeSpec(ctx context.Context, req SpecRequest) (project.Spec, error)
	ProposePlan(ctx context.Context, spec project.Spec) ([]project.Task, error)
	GenerateArtifact(ctx context.Context, req ArtifactRequest) (string, error)
}

// GenerationError reports malformed or empty producer output.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("producer: %s failed", e.Op)
	}
	return fmt.Sprintf("producer: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SpecResult is the outcome of spec generation. Degraded marks the
// deterministic fallback so callers branch on the tag, never on shape.
type SpecResult struct {
	Spec     project.Spec
	Degraded bool
	Reason   string
}

// PlanResult is the outcome of plan generation.
type PlanResult struct {
	Tasks    []project.Task
	Degraded bool
	Reason   string
}
