package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ewortham/forgeline/internal/orchestrator"
	"github.com/ewortham/forgeline/internal/project"
	"github.com/ewortham/forgeline/internal/scheduler"
)

type stubController struct {
	state project.State
}

func (c *stubController) Status() project.State { return c.state }

type stubPacer struct {
	status   scheduler.Status
	result   orchestrator.CycleResult
	triggers int
}

func (p *stubPacer) Start() { p.status.Running = true }
func (p *stubPacer) Stop()  { p.status.Running = false }

func (p *stubPacer) Status() scheduler.Status { return p.status }

func (p *stubPacer) TriggerNow(context.Context) (orchestrator.CycleResult, error) {
	p.triggers++
	return p.result, nil
}

func activeState() project.State {
	return project.State{
		Phase: project.PhaseActive,
		Spec:  &project.Spec{Title: "Demo App", Complexity: "beginner"},
		Repository: &project.RepositoryRef{
			Name: "demo-app",
		},
		TaskQueue: []project.Task{
			{Title: "Scaffold project", TargetPath: "src/index.js", Priority: project.PriorityHigh},
			{Title: "Write readme", TargetPath: "README.md", Priority: project.PriorityLow},
		},
	}
}

func newTestApp(t *testing.T, controller Controller, pacer Pacer) *App {
	t.Helper()
	app, err := NewApp(controller, pacer, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

// drive applies a message and, if Update returned a command, feeds its
// message back in, mimicking one loop turn of the bubbletea runtime.
func drive(t *testing.T, app *App, msg tea.Msg) *App {
	t.Helper()
	model, cmd := app.Update(msg)
	next, ok := model.(*App)
	if !ok {
		t.Fatalf("Update returned %T, want *App", model)
	}
	if cmd == nil {
		return next
	}
	// After a status refresh the only pending command is the periodic tick;
	// running it would block the test for the full interval.
	if _, refreshed := msg.(statusRefreshMsg); refreshed {
		return next
	}
	if produced := cmd(); produced != nil {
		return drive(t, next, produced)
	}
	return next
}

func TestNewAppRequiresCollaborators(t *testing.T) {
	if _, err := NewApp(nil, &stubPacer{}, nil); err == nil {
		t.Fatal("NewApp(nil controller): want error")
	}
	if _, err := NewApp(&stubController{}, nil, nil); err == nil {
		t.Fatal("NewApp(nil pacer): want error")
	}
}

func TestStatusRefreshPopulatesQueue(t *testing.T) {
	app := newTestApp(t, &stubController{state: activeState()}, &stubPacer{})

	model, _ := app.Update(statusRefreshMsg{state: activeState()})
	app = model.(*App)
	if got := len(app.queue.Items()); got != 2 {
		t.Fatalf("queue items = %d, want 2", got)
	}
	view := app.View()
	if !strings.Contains(view, "Demo App") {
		t.Fatalf("view missing spec title:\n%s", view)
	}
	if !strings.Contains(view, "active") {
		t.Fatalf("view missing phase:\n%s", view)
	}
}

func TestCycleKeyTriggersScheduler(t *testing.T) {
	pacer := &stubPacer{result: orchestrator.CycleResult{Outcome: orchestrator.OutcomeCommitted, Task: "Scaffold project", Path: "src/index.js", Remaining: 1}}
	app := newTestApp(t, &stubController{state: activeState()}, pacer)

	app = drive(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if pacer.triggers != 1 {
		t.Fatalf("triggers = %d, want 1", pacer.triggers)
	}
	if !strings.Contains(app.statusMsg, "Scaffold project") {
		t.Fatalf("statusMsg = %q, want commit summary", app.statusMsg)
	}
}

func TestSchedulerToggleKey(t *testing.T) {
	pacer := &stubPacer{}
	app := newTestApp(t, &stubController{state: activeState()}, pacer)

	app = drive(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if !pacer.status.Running {
		t.Fatal("scheduler not started by toggle")
	}
	app = drive(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if pacer.status.Running {
		t.Fatal("scheduler not stopped by second toggle")
	}
}

func TestQuitKeys(t *testing.T) {
	app := newTestApp(t, &stubController{}, &stubPacer{})
	for _, key := range []string{"q", "ctrl+c"} {
		msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		if key == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		}
		_, cmd := app.Update(msg)
		if cmd == nil {
			t.Fatalf("key %s: want quit command", key)
		}
	}
}
