// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package, switching between text and JSON output
// by environment, and keeps the level in a slog.LevelVar so it can be adjusted at runtime.
package logger
