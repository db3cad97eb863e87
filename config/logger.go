package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewLogger returns a slog.Logger writing to stderr at the given verbosity,
// as JSON or as text.
func NewLogger(level string, json bool) *slog.Logger {
	return newLogger(os.Stderr, level, json)
}

func newLogger(w io.Writer, level string, json bool) *slog.Logger {
	handlerLevel, _ := parseLevel(level)
	opts := &slog.HandlerOptions{Level: handlerLevel}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Logger builds the logger described by the logging section.
func (c Config) Logger() *slog.Logger {
	return NewLogger(c.Logging.Level, c.Logging.JSON)
}
