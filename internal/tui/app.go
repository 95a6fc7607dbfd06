// internal/tui/app.go
//
// Terminal dashboard for Forgeline, built on bubbletea's Elm-style loop:
// messages arrive, Update produces the next model, View renders it.

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ewortham/forgeline/internal/logbook"
	"github.com/ewortham/forgeline/internal/orchestrator"
	"github.com/ewortham/forgeline/internal/project"
	"github.com/ewortham/forgeline/internal/scheduler"
)

const (
	boardRefreshInterval = 3 * time.Second
	feedLines            = 8
)

// Controller is the slice of the orchestrator the dashboard drives.
type Controller interface {
	Status() project.State
}

// Pacer is the slice of the scheduler the dashboard drives.
type Pacer interface {
	Start()
	Stop()
	Status() scheduler.Status
	TriggerNow(ctx context.Context) (orchestrator.CycleResult, error)
}

type statusRefreshMsg struct {
	state     project.State
	scheduler scheduler.Status
	feed      []string
	feedTotal int
}

type cycleResultMsg struct {
	result orchestrator.CycleResult
	err    error
}

type refreshTickMsg struct{}

// taskItem implements list.Item for queue entries.
type taskItem struct {
	task project.Task
}

func (i taskItem) Title() string { return i.task.Title }

func (i taskItem) Description() string {
	desc := strings.TrimSpace(i.task.Description)
	if desc == "" {
		desc = i.task.TargetPath
	}
	return fmt.Sprintf("[%s] %s", i.task.Priority, desc)
}

func (i taskItem) FilterValue() string { return i.task.Title }

// App is the dashboard model: project state on the left, activity feed on
// the right.
type App struct {
	controller Controller
	pacer      Pacer
	logbook    *logbook.Logbook

	queue     list.Model
	state     project.State
	sched     scheduler.Status
	feed      []string
	feedTotal int
	statusMsg string
	cycling   bool

	width  int
	height int
}

// NewApp builds the dashboard over a controller and pacer. The logbook is
// optional; without it the activity feed stays empty.
func NewApp(controller Controller, pacer Pacer, lb *logbook.Logbook) (*App, error) {
	if controller == nil {
		return nil, fmt.Errorf("tui: controller is required")
	}
	if pacer == nil {
		return nil, fmt.Errorf("tui: pacer is required")
	}
	queue := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	queue.Title = "Task Queue"
	queue.SetShowStatusBar(false)
	queue.SetFilteringEnabled(false)

	return &App{
		controller: controller,
		pacer:      pacer,
		logbook:    lb,
		queue:      queue,
	}, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.fetchStatus()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.queue.SetSize(max(0, msg.Width/2-4), max(0, msg.Height-12))
		return a, nil

	case statusRefreshMsg:
		a.state = msg.state
		a.sched = msg.scheduler
		a.feed = msg.feed
		a.feedTotal = msg.feedTotal
		items := make([]list.Item, len(msg.state.TaskQueue))
		for i, task := range msg.state.TaskQueue {
			items[i] = taskItem{task: task}
		}
		a.queue.SetItems(items)
		return a, a.scheduleRefresh()

	case refreshTickMsg:
		return a, a.fetchStatus()

	case cycleResultMsg:
		a.cycling = false
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Cycle failed: %v", msg.err)
		} else {
			a.statusMsg = describeResult(msg.result)
		}
		return a, a.fetchStatus()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "Refreshing..."
			return a, a.fetchStatus()
		case "c":
			if a.cycling {
				return a, nil
			}
			a.cycling = true
			a.statusMsg = "Running cycle..."
			return a, a.runCycle()
		case "s":
			if a.sched.Running {
				a.pacer.Stop()
				a.statusMsg = "Scheduler stopped"
			} else {
				a.pacer.Start()
				a.statusMsg = "Scheduler started"
			}
			return a, a.fetchStatus()
		}
	}

	var cmd tea.Cmd
	a.queue, cmd = a.queue.Update(msg)
	return a, cmd
}

// View renders the dashboard.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("⟁ FORGELINE")

	phase := a.renderPhase()
	queueBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(a.queue.View())

	feedBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(a.renderFeed())

	body := lipgloss.JoinHorizontal(lipgloss.Top, queueBox, feedBox)

	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render("c: run cycle · s: toggle scheduler · r: refresh · q: quit")

	sections := []string{header, phase, body}
	if a.statusMsg != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Render(a.statusMsg))
	}
	sections = append(sections, footer)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) renderPhase() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Phase: %s", a.state.Phase))
	if a.state.Spec != nil {
		parts = append(parts, a.state.Spec.Title)
	}
	if a.state.Repository != nil {
		parts = append(parts, fmt.Sprintf("repo %s", a.state.Repository.Name))
	}
	if a.sched.Running {
		parts = append(parts, fmt.Sprintf("scheduler every %s", a.sched.Interval))
	} else {
		parts = append(parts, "scheduler idle")
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(parts, " · "))
}

func (a *App) renderFeed() string {
	title := lipgloss.NewStyle().Bold(true).Render("Activity")
	if len(a.feed) == 0 {
		note := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("No activity yet.")
		return lipgloss.JoinVertical(lipgloss.Left, title, note)
	}
	lines := make([]string, 0, len(a.feed)+1)
	lines = append(lines, title)
	lines = append(lines, a.feed...)
	if a.feedTotal > len(a.feed) {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).
			Render(fmt.Sprintf("(%d earlier entries)", a.feedTotal-len(a.feed))))
	}
	return strings.Join(lines, "\n")
}

func (a *App) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		msg := statusRefreshMsg{
			state:     a.controller.Status(),
			scheduler: a.pacer.Status(),
		}
		if a.logbook != nil {
			msg.feed, msg.feedTotal = a.logbook.Tail(feedLines)
		}
		return msg
	}
}

func (a *App) runCycle() tea.Cmd {
	return func() tea.Msg {
		result, err := a.pacer.TriggerNow(context.Background())
		return cycleResultMsg{result: result, err: err}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func describeResult(result orchestrator.CycleResult) string {
	switch result.Outcome {
	case orchestrator.OutcomeCommitted:
		return fmt.Sprintf("Committed %q to %s (%d remaining)", result.Task, result.Path, result.Remaining)
	case orchestrator.OutcomeCompleted:
		return "Project completed"
	case orchestrator.OutcomeAlreadyCompleted:
		return "Project is already completed"
	case orchestrator.OutcomeNotInitialized:
		return "Run setup first"
	}
	return string(result.Outcome)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the dashboard in the alternate screen.
func Run(app *App) error {
	program := tea.NewProgram(app, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
