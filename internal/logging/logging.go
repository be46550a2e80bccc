// Package logging builds the process-wide slog logger. Production runs emit
// JSON to stderr; development runs get a colorized tint handler.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler and level.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is "json" or "text". Empty picks by environment.
	Format string

	// Environment is production, development, or testing.
	Environment string
}

// New creates the root logger. Component loggers hang off it via
// logger.With("component", ...).
func New(opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)

	format := opts.Format
	if format == "" {
		if opts.Environment == "production" {
			format = "json"
		} else {
			format = "text"
		}
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Test helper.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
