package bridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ewortham/forgeline/internal/config"
)

const (
	// DefaultHost keeps the bridge on loopback unless overridden.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the seeded project config.
	DefaultPort = 8713
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20

	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Settings captures runtime configuration for the HTTP bridge server.
// Precedence: built-in defaults, then config.yaml, then FORGELINE_BRIDGE_*
// environment variables.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultSettings returns the built-in bridge configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}

// SettingsFromConfig layers the project config and environment overrides on
// top of the defaults.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := DefaultSettings()
	if cfg != nil {
		bc := cfg.Project.Bridge
		if bc.Enabled != nil {
			settings.Enabled = *bc.Enabled
		}
		if host := strings.TrimSpace(bc.Host); host != "" {
			settings.Host = host
		}
		if validPort(bc.Port) {
			settings.Port = bc.Port
		}
	}
	if raw, ok := envValue("FORGELINE_BRIDGE_ENABLED"); ok {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			settings.Enabled = enabled
		}
	}
	if raw, ok := envValue("FORGELINE_BRIDGE_HOST"); ok {
		settings.Host = raw
	}
	if raw, ok := envValue("FORGELINE_BRIDGE_PORT"); ok {
		if port, err := strconv.Atoi(raw); err == nil && validPort(port) {
			settings.Port = port
		}
	}
	return settings
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		host = DefaultHost
	}
	port := s.Port
	if !validPort(port) {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func envValue(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
