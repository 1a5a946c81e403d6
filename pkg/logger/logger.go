package logger

import (
	"log/slog"
	"os"
)

// Setup installs the default slog handler. Format is "json" or "text";
// batch runs default to text so diagnostics stay readable on a terminal
// while stdout carries the audit report.
func Setup(level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithComponent returns a logger tagged with the pipeline component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// WithState returns a logger tagged with the state being processed.
func WithState(state string) *slog.Logger {
	return slog.Default().With("state", state)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
