package producer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ewortham/forgeline/internal/project"
)

// Static is a deterministic CodeProducer. It derives everything from its
// input, so the same request always yields the same spec, plan, and content.
// The orchestrator uses it as the graceful-degradation fallback when the
// primary producer fails; it also makes the whole system runnable without a
// generation backend.
type Static struct{}

// NewStatic returns the deterministic producer.
func NewStatic() Static { return Static{} }

// ProposeSpec derives a spec from the request alone.
func (Static) ProposeSpec(_ context.Context, req SpecRequest) (project.Spec, error) {
	title := strings.TrimSpace(req.Name)
	if title == "" {
		title = "Starter Project"
	}
	complexity := strings.ToLower(strings.TrimSpace(req.Complexity))
	if !project.ValidComplexity(complexity) {
		complexity = string(project.ComplexityBeginner)
	}
	spec := project.Spec{
		Title:      title,
		Type:       "web-app",
		Complexity: complexity,
		TechStack:  []string{"javascript", "node"},
		Features:   defaultFeatures(project.Complexity(complexity)),
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		spec.Features = append([]string{desc}, spec.Features...)
	}
	return spec, nil
}

// ProposePlan derives one task per feature plus scaffold and readme tasks.
func (Static) ProposePlan(_ context.Context, spec project.Spec) ([]project.Task, error) {
	tasks := []project.Task{{
		Title:       "Scaffold application entry point",
		Description: fmt.Sprintf("Create the initial entry point for %s.", spec.Title),
		TargetPath:  "src/index.js",
		Priority:    project.PriorityHigh,
	}}
	for i, feature := range spec.Features {
		slug := featureSlug(feature)
		tasks = append(tasks, project.Task{
			Title:       fmt.Sprintf("Implement %s", strings.TrimSpace(feature)),
			Description: fmt.Sprintf("Implement the %q feature of %s.", strings.TrimSpace(feature), spec.Title),
			TargetPath:  fmt.Sprintf("src/features/%s.js", slug),
			Priority:    priorityForIndex(i),
		})
	}
	tasks = append(tasks, project.Task{
		Title:       "Write project README",
		Description: fmt.Sprintf("Document %s: setup, usage, and features.", spec.Title),
		TargetPath:  "README.md",
		Priority:    project.PriorityLow,
	})
	return tasks, nil
}

// GenerateArtifact emits a deterministic file body for the task.
func (Static) GenerateArtifact(_ context.Context, req ArtifactRequest) (string, error) {
	if strings.TrimSpace(req.Task.Title) == "" {
		return "", &GenerationError{Op: "generate artifact", Err: fmt.Errorf("task title is empty")}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "// %s\n", req.Task.Title)
	fmt.Fprintf(&b, "// Part of %s (%s).\n", req.Spec.Title, req.Spec.Complexity)
	if desc := strings.TrimSpace(req.Task.Description); desc != "" {
		fmt.Fprintf(&b, "// %s\n", desc)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "const task = %q;\n", req.Task.Title)
	b.WriteString("\nmodule.exports = { task };\n")
	return b.String(), nil
}

func defaultFeatures(complexity project.Complexity) []string {
	switch complexity {
	case project.ComplexityAdvanced:
		return []string{"routing", "persistence", "authentication", "background jobs"}
	case project.ComplexityIntermediate:
		return []string{"routing", "persistence", "authentication"}
	default:
		return []string{"routing", "static pages"}
	}
}

func priorityForIndex(i int) project.Priority {
	if i == 0 {
		return project.PriorityHigh
	}
	if i < 3 {
		return project.PriorityMedium
	}
	return project.PriorityLow
}

func featureSlug(value string) string {
	lower := strings.ToLower(strings.TrimSpace(value))
	if lower == "" {
		return "feature"
	}
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash && b.Len() > 0 {
			b.WriteRune('-')
			lastDash = true
		}
	}
	result := strings.Trim(b.String(), "-")
	if result == "" {
		return "feature"
	}
	return result
}
