// internal/config/config.go
//
// This package handles configuration and the .forgeline directory structure.
// Every project that uses Forgeline gets a .forgeline/ folder created in its
// root; all durable state (the event log, logs, hosted repositories) lives
// underneath it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ForgelineDir is the name of the directory we create in each project.
	ForgelineDir = ".forgeline"

	defaultCycleInterval = 24 * time.Hour
	defaultRestartGrace  = 2 * time.Second
	defaultFallbackExt   = ".js"
	minimumCycleInterval = time.Second
	defaultRepoNameLimit = 100
)

const defaultProjectConfigYAML = `# forgeline project configuration
version: 1

scheduler:
  # How often the development cycle fires. Accepts Go duration syntax.
  interval: 24h
  # Pause between stop and start during a restart.
  restart_grace: 2s

producer:
  # Default complexity when a setup request leaves it blank.
  default_complexity: beginner

repository:
  # Extension applied to extensionless target paths.
  fallback_extension: .js

bridge:
  enabled: true
  host: 127.0.0.1
  port: 8713
`

// SchedulerConfig captures timer preferences for the development cycle.
type SchedulerConfig struct {
	Interval     string `yaml:"interval,omitempty"`
	RestartGrace string `yaml:"restart_grace,omitempty"`
}

// ProducerConfig captures defaults applied to setup requests.
type ProducerConfig struct {
	DefaultComplexity string `yaml:"default_complexity,omitempty"`
}

// RepositoryConfig captures filesystem host preferences.
type RepositoryConfig struct {
	FallbackExtension string `yaml:"fallback_extension,omitempty"`
}

// BridgeConfig captures the HTTP surface preferences.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .forgeline/config.yaml.
type ProjectConfig struct {
	Version    int              `yaml:"version"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Producer   ProducerConfig   `yaml:"producer"`
	Repository RepositoryConfig `yaml:"repository"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// Config holds the runtime configuration for Forgeline.
type Config struct {
	// ProjectDir is the directory where the user ran `forgeline` from.
	ProjectDir string

	// ForgelineProjectDir is ProjectDir/.forgeline.
	ForgelineProjectDir string

	Project ProjectConfig
}

// InitForgelineDir creates the .forgeline directory structure in the given
// project directory. Called before any command touches durable state.
//
// Structure created:
// .forgeline/
// ├── logs/     <- Process log and the progress logbook
// ├── state/    <- Event log (events.jsonl)
// └── repos/    <- Filesystem-hosted repositories
func InitForgelineDir(projectDir string) error {
	base := filepath.Join(projectDir, ForgelineDir)
	dirs := []string{
		filepath.Join(base, "logs"),
		filepath.Join(base, "state"),
		filepath.Join(base, "repos"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(base, "config.yaml"))
}

// NewConfig creates a Config populated from .forgeline/config.yaml when it
// exists, falling back to defaults otherwise.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:          projectDir,
		ForgelineProjectDir: filepath.Join(projectDir, ForgelineDir),
		Project:             defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.ForgelineProjectDir, "logs")
}

// StateDir returns the path to the state directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.ForgelineProjectDir, "state")
}

// EventLogPath returns the on-disk location of the append-only event log.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.StateDir(), "events.jsonl")
}

// LogbookPath returns the on-disk location of the progress logbook.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "progress.log")
}

// ReposDir returns the root under which repositories are hosted.
func (c *Config) ReposDir() string {
	return filepath.Join(c.ForgelineProjectDir, "repos")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ForgelineProjectDir, "config.yaml")
}

// CycleInterval returns the scheduler interval, defaulting to one cycle per
// day. Intervals below one second fall back to the default.
func (c *Config) CycleInterval() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Project.Scheduler.Interval))
	if err != nil || d < minimumCycleInterval {
		return defaultCycleInterval
	}
	return d
}

// RestartGrace returns the pause applied between stop and start on restart.
func (c *Config) RestartGrace() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Project.Scheduler.RestartGrace))
	if err != nil || d <= 0 {
		return defaultRestartGrace
	}
	return d
}

// DefaultComplexity returns the complexity applied when a setup request
// leaves the field blank.
func (c *Config) DefaultComplexity() string {
	value := strings.ToLower(strings.TrimSpace(c.Project.Producer.DefaultComplexity))
	if value == "" {
		return "beginner"
	}
	return value
}

// FallbackExtension returns the extension applied to extensionless target
// paths, always with a leading dot.
func (c *Config) FallbackExtension() string {
	ext := strings.TrimSpace(c.Project.Repository.FallbackExtension)
	if ext == "" {
		return defaultFallbackExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// RepoNameLimit caps generated repository names.
func (c *Config) RepoNameLimit() int {
	return defaultRepoNameLimit
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Scheduler: SchedulerConfig{
			Interval:     defaultCycleInterval.String(),
			RestartGrace: defaultRestartGrace.String(),
		},
		Producer:   ProducerConfig{DefaultComplexity: "beginner"},
		Repository: RepositoryConfig{FallbackExtension: defaultFallbackExt},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Scheduler.Interval) == "" {
		pc.Scheduler.Interval = defaultCycleInterval.String()
	}
	if strings.TrimSpace(pc.Scheduler.RestartGrace) == "" {
		pc.Scheduler.RestartGrace = defaultRestartGrace.String()
	}
	if strings.TrimSpace(pc.Producer.DefaultComplexity) == "" {
		pc.Producer.DefaultComplexity = "beginner"
	}
	if strings.TrimSpace(pc.Repository.FallbackExtension) == "" {
		pc.Repository.FallbackExtension = defaultFallbackExt
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Scheduler.Interval = strings.TrimSpace(pc.Scheduler.Interval)
	pc.Scheduler.RestartGrace = strings.TrimSpace(pc.Scheduler.RestartGrace)
	pc.Producer.DefaultComplexity = strings.ToLower(strings.TrimSpace(pc.Producer.DefaultComplexity))
	pc.Repository.FallbackExtension = strings.TrimSpace(pc.Repository.FallbackExtension)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Scheduler.Interval != "" {
		d, err := time.ParseDuration(pc.Scheduler.Interval)
		if err != nil {
			return fmt.Errorf("scheduler.interval: %w", err)
		}
		if d < minimumCycleInterval {
			return fmt.Errorf("scheduler.interval must be >= %s", minimumCycleInterval)
		}
	}
	if pc.Scheduler.RestartGrace != "" {
		if _, err := time.ParseDuration(pc.Scheduler.RestartGrace); err != nil {
			return fmt.Errorf("scheduler.restart_grace: %w", err)
		}
	}
	switch pc.Producer.DefaultComplexity {
	case "", "beginner", "intermediate", "advanced":
	default:
		return fmt.Errorf("producer.default_complexity must be beginner, intermediate, or advanced")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be within 0-65535")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
