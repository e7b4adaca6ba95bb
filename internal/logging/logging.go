package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	pionlogging "github.com/pion/logging"
)

const (
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
)

// Init installs the process-wide slog logger on stderr. Empty arguments fall
// back to LOG_LEVEL / LOG_FORMAT, then to error-level text output.
func Init(level, format string) (*slog.Logger, error) {
	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}
	if format == "" {
		format = os.Getenv(EnvLogFormat)
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}

// ParseLevel maps a level name to a slog.Level. The empty string is the
// production default: errors only.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error", "production", "prod":
		return slog.LevelError, nil
	case "dev", "development", "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

// PionLevel maps a slog level to the pion log level that shows the same
// severities.
func PionLevel(l slog.Level) pionlogging.LogLevel {
	switch {
	case l <= slog.LevelDebug:
		return pionlogging.LogLevelDebug
	case l <= slog.LevelInfo:
		return pionlogging.LogLevelInfo
	case l <= slog.LevelWarn:
		return pionlogging.LogLevelWarn
	default:
		return pionlogging.LogLevelError
	}
}

// PionFactory returns a pion LoggerFactory that writes to w at the level
// matching l. Scopes are still selectable through PION_LOG_* variables.
func PionFactory(w io.Writer, l slog.Level) pionlogging.LoggerFactory {
	f := pionlogging.NewDefaultLoggerFactory()
	f.Writer = w
	f.DefaultLogLevel = PionLevel(l)
	return f
}
