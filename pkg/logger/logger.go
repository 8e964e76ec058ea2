package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the application logger. Records are written as JSON in prod and
// as text everywhere else. The level is read through the given LevelVar so it
// can be changed while the process runs.
func New(level *slog.LevelVar, addSource bool, environment string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, addSource, environment)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level *slog.LevelVar, addSource bool, environment string) *slog.Logger {
	if level == nil {
		level = new(slog.LevelVar)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}
	var handler slog.Handler

	if strings.ToLower(environment) == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("environment", environment),
	)
}

// LevelVar returns a LevelVar initialised from a config level name.
func LevelVar(level string) *slog.LevelVar {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))
	return lv
}

// ParseLevel maps a config level name to a slog level. Unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
