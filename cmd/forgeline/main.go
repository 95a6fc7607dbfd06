// cmd/forgeline/main.go
//
// Entry point for the Forgeline CLI.
//
// Commands:
//   forgeline setup   -name ... -desc ... -complexity ...
//   forgeline cycle
//   forgeline status
//   forgeline serve
//   forgeline reset
//   forgeline         (no command: open the dashboard)

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ewortham/forgeline/internal/bridge"
	"github.com/ewortham/forgeline/internal/config"
	"github.com/ewortham/forgeline/internal/eventlog"
	"github.com/ewortham/forgeline/internal/logbook"
	"github.com/ewortham/forgeline/internal/logging"
	"github.com/ewortham/forgeline/internal/notify"
	"github.com/ewortham/forgeline/internal/orchestrator"
	"github.com/ewortham/forgeline/internal/producer"
	"github.com/ewortham/forgeline/internal/project"
	"github.com/ewortham/forgeline/internal/repohost"
	"github.com/ewortham/forgeline/internal/scheduler"
	"github.com/ewortham/forgeline/internal/tui"
)

func main() {
	command := ""
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	rt, err := buildRuntime()
	if err != nil {
		die("%v", err)
	}
	defer rt.close()

	switch command {
	case "":
		err = runDashboard(rt)
	case "setup":
		err = runSetup(rt, args)
	case "cycle":
		err = runCycle(rt)
	case "status":
		err = runStatus(rt)
	case "serve":
		err = runServe(rt)
	case "reset":
		err = runReset(rt)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		die("%v", err)
	}
}

// runtime holds the wired collaborators shared by every command.
type runtime struct {
	cfg        *config.Config
	logger     *logging.Logger
	book       *logbook.Logbook
	orch       *orchestrator.Orchestrator
	sched      *scheduler.Scheduler
	projection *project.Projection
}

func buildRuntime() (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}
	projectDir, err := filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitForgelineDir(projectDir); err != nil {
		return nil, fmt.Errorf("init .forgeline: %w", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(projectDir)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	book, err := logbook.New(cfg.LogbookPath())
	if err != nil {
		logger.Printf("main: logbook unavailable: %v", err)
	}

	log := eventlog.New(cfg.EventLogPath(), eventlog.WithLogger(logger))
	projection := project.NewProjection(log, project.WithLogger(logger))
	host, err := repohost.NewDir(cfg.ReposDir())
	if err != nil {
		return nil, fmt.Errorf("open repository host: %w", err)
	}

	orch, err := orchestrator.New(projection, producer.NewStatic(), host,
		orchestrator.WithLogger(logger),
		orchestrator.WithNotifier(notify.NewLogbook(book)),
		orchestrator.WithRepoNameLimit(cfg.RepoNameLimit()),
		orchestrator.WithFallbackExtension(cfg.FallbackExtension()),
	)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(orch, cfg.CycleInterval(),
		scheduler.WithLogger(logger),
		scheduler.WithRestartGrace(cfg.RestartGrace()),
	)
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:        cfg,
		logger:     logger,
		book:       book,
		orch:       orch,
		sched:      sched,
		projection: projection,
	}, nil
}

func (rt *runtime) close() {
	rt.sched.Stop()
	_ = rt.logger.Close()
}

func runDashboard(rt *runtime) error {
	app, err := tui.NewApp(rt.orch, rt.sched, rt.book)
	if err != nil {
		return err
	}
	return tui.Run(app)
}

func runSetup(rt *runtime, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	name := fs.String("name", "", "project name")
	desc := fs.String("desc", "", "what the project should do")
	complexity := fs.String("complexity", rt.cfg.DefaultComplexity(), "beginner, intermediate, or advanced")
	if err := fs.Parse(args); err != nil {
		return err
	}
	state, err := rt.orch.SetupCycle(context.Background(), orchestrator.SetupRequest{
		Name:        *name,
		Description: *desc,
		Complexity:  *complexity,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Project initialized: %s\n", state.Spec.Title)
	fmt.Printf("Repository: %s\n", state.Repository.Name)
	fmt.Printf("Tasks queued: %d\n", state.Remaining())
	return nil
}

func runCycle(rt *runtime) error {
	result, err := rt.sched.TriggerNow(context.Background())
	if err != nil {
		return err
	}
	switch result.Outcome {
	case orchestrator.OutcomeCommitted:
		fmt.Printf("Committed %q to %s (%d tasks remaining)\n", result.Task, result.Path, result.Remaining)
	case orchestrator.OutcomeCompleted, orchestrator.OutcomeAlreadyCompleted:
		fmt.Println("Project is complete.")
	case orchestrator.OutcomeNotInitialized:
		fmt.Println("Project is not initialized. Run `forgeline setup` first.")
	}
	return nil
}

func runStatus(rt *runtime) error {
	payload := struct {
		Project   project.State    `json:"project"`
		Scheduler scheduler.Status `json:"scheduler"`
	}{
		Project:   rt.orch.Status(),
		Scheduler: rt.sched.Status(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runServe(rt *runtime) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := bridge.SettingsFromConfig(rt.cfg)
	server, err := bridge.NewServer(settings, rt.orch, rt.sched, bridge.WithLogger(rt.logger))
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	rt.sched.Start()
	fmt.Printf("Serving on %s (ctrl+c to stop)\n", server.BaseURL())

	<-ctx.Done()
	rt.sched.Stop()
	return server.Shutdown(context.Background())
}

func runReset(rt *runtime) error {
	rt.orch.Reset()
	fmt.Println("Project state reset. History is preserved in the event log.")
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: forgeline [setup|cycle|status|serve|reset]")
	fmt.Fprintln(os.Stderr, "  setup   initialize a project (spec, plan, repository)")
	fmt.Fprintln(os.Stderr, "  cycle   run one development cycle now")
	fmt.Fprintln(os.Stderr, "  status  print project and scheduler state")
	fmt.Fprintln(os.Stderr, "  serve   run the scheduler with the HTTP bridge")
	fmt.Fprintln(os.Stderr, "  reset   reset project state (appends a reset marker)")
	fmt.Fprintln(os.Stderr, "  (no command opens the dashboard)")
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "forgeline: "+format+"\n", args...)
	os.Exit(1)
}
