// Package logging configures the process-wide zerolog logger for the agent.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a textual log level as read from the environment.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Service is attached to every event as "service" when non-empty.
	Service string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: "asset-agent",
		Output:  os.Stderr,
	}
}

// Setup installs the configured logger as zerolog's global logger and
// returns it. Component loggers derived afterwards with NewLogger inherit
// its output and fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel validates a textual level. "warning" is accepted as "warn".
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel maps a LogLevel onto zerolog, falling back to info.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger from the global one tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: per-request detail
//   - cache hit or miss for an intercepted GET (key, generation)
//   - keepalive ticks and accepted ping messages
//   - page registration and claim bookkeeping
//
// Info: lifecycle milestones
//   - generation installed, activated, superseded
//   - stale generations deleted
//   - server startup and shutdown
//
// Warn: degraded but serving
//   - cache lookup failures
//   - failed page focus, unrecognized messages
//   - supersede of a previous generation failed
//
// Error: an operation gave up
//   - install or activate failed
//   - storage unreachable at startup
//
// Fields:
//   - component: agent, lifecycle, clients, prefetch, interceptor, liveness, notify
//   - generation: cache generation id
//   - key: "METHOD URL" cache key
//   - url: fetched manifest URL
//   - client_id: connected page id
