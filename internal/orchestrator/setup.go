package orchestrator

import (
	"context"
	"strings"

	"github.com/ewortham/forgeline/internal/notify"
	"github.com/ewortham/forgeline/internal/producer"
	"github.com/ewortham/forgeline/internal/project"
)

// SetupRequest carries the user's project idea.
type SetupRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Complexity  string `json:"complexity"`
}

// SetupCycle runs the one-time initialization: request → spec → plan →
// repository → persisted active state. Spec and plan generation degrade
// gracefully to deterministic fallbacks; repository failures are fatal to
// the cycle.
func (o *Orchestrator) SetupCycle(ctx context.Context, req SetupRequest) (project.State, error) {
	if err := validateSetupRequest(req); err != nil {
		return project.State{}, err
	}

	current := o.projection.Project()
	if current.Phase == project.PhaseActive || current.Phase == project.PhaseCompleted {
		return current, &ValidationError{Field: "state", Reason: "project is already initialized"}
	}

	specResult := o.proposeSpec(ctx, req)
	if specResult.Degraded {
		o.logger.Printf("orchestrator: spec generation degraded: %s", specResult.Reason)
	}
	planResult := o.proposePlan(ctx, specResult.Spec)
	if planResult.Degraded {
		o.logger.Printf("orchestrator: plan generation degraded: %s", planResult.Reason)
	}

	repoName := Slugify(specResult.Spec.Title, o.nameLimit)
	ref, err := o.host.EnsureRepository(ctx, repoName, strings.TrimSpace(req.Description))
	if err != nil {
		o.projection.RecordFailure("setup", "", err)
		return project.State{}, err
	}

	o.projection.SaveSpec(specResult.Spec)
	o.projection.SaveQueue(planResult.Tasks)
	o.projection.SaveRepository(ref)
	o.projection.MarkInitialized()

	o.notifier.Notify(notify.EventSetupCompleted, map[string]string{
		"title":      specResult.Spec.Title,
		"repository": ref.Name,
	})
	o.logger.Printf("orchestrator: setup complete: %s (%d tasks)", specResult.Spec.Title, len(planResult.Tasks))
	return o.projection.Project(), nil
}

// proposeSpec asks the producer for a spec and falls back to the
// deterministic generator on failure. The fallback has the exact output
// shape of a success; only the Degraded tag distinguishes the two.
func (o *Orchestrator) proposeSpec(ctx context.Context, req SetupRequest) producer.SpecResult {
	specReq := producer.SpecRequest{
		Name:        req.Name,
		Description: req.Description,
		Complexity:  req.Complexity,
	}
	spec, err := o.producer.ProposeSpec(ctx, specReq)
	if err == nil && strings.TrimSpace(spec.Title) != "" {
		return producer.SpecResult{Spec: spec}
	}
	reason := "producer returned an empty spec"
	if err != nil {
		reason = err.Error()
	}
	fallback, fbErr := o.fallback.ProposeSpec(ctx, specReq)
	if fbErr != nil {
		// The static producer cannot fail on a validated request; guard anyway.
		fallback = project.Spec{Title: "Starter Project", Complexity: string(project.ComplexityBeginner)}
	}
	return producer.SpecResult{Spec: fallback, Degraded: true, Reason: reason}
}

// proposePlan asks the producer for a task plan. Failure degrades to an
// empty plan, a degenerate but valid state adjacent to completion.
func (o *Orchestrator) proposePlan(ctx context.Context, spec project.Spec) producer.PlanResult {
	tasks, err := o.producer.ProposePlan(ctx, spec)
	if err != nil {
		return producer.PlanResult{Degraded: true, Reason: err.Error()}
	}
	valid := tasks[:0:0]
	seen := map[string]struct{}{}
	for _, task := range tasks {
		if task.Validate() != nil {
			continue
		}
		if _, dup := seen[task.Title]; dup {
			continue
		}
		seen[task.Title] = struct{}{}
		task.Priority = project.NormalizePriority(string(task.Priority))
		valid = append(valid, task)
	}
	if len(valid) == 0 && len(tasks) > 0 {
		return producer.PlanResult{Degraded: true, Reason: "plan contained no well-formed tasks"}
	}
	return producer.PlanResult{Tasks: valid}
}

func validateSetupRequest(req SetupRequest) error {
	complexity := strings.TrimSpace(req.Complexity)
	if complexity == "" {
		return &ValidationError{Field: "complexity", Reason: "value is required"}
	}
	if !project.ValidComplexity(complexity) {
		return &ValidationError{Field: "complexity", Reason: "must be beginner, intermediate, or advanced"}
	}
	return nil
}

// Slugify derives a repository name from a title: lowercase, spaces and
// separators become hyphens, everything else non-alphanumeric is stripped,
// hyphens collapsed and trimmed, capped at limit characters.
func Slugify(title string, limit int) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		switch r {
		case ' ', '-', '_':
			if !lastDash && b.Len() > 0 {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	result := strings.Trim(b.String(), "-")
	if result == "" {
		result = "project"
	}
	if limit > 0 && len(result) > limit {
		result = strings.Trim(result[:limit], "-")
	}
	return result
}
