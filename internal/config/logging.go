package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO if invalid/empty
	}
}

// GetLogLevel returns the log level from the LOG_LEVEL environment variable,
// defaulting to INFO.
func GetLogLevel() slog.Level {
	return parseLogLevel(os.Getenv("LOG_LEVEL"))
}

// NewLogger creates a structured logger for the given transport mode.
// Stdio mode logs text to stderr so MCP traffic on stdout stays clean;
// HTTP mode logs JSON to stdout for log collection.
func NewLogger(isStdioMode bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: GetLogLevel()}

	if isStdioMode {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// NewTextLogger creates a text logger on the given writer. Used by the
// one-shot setup mode where human-readable output is preferred.
func NewTextLogger(output io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: GetLogLevel()}
	return slog.New(slog.NewTextHandler(output, opts))
}

// NewTestLogger creates a logger for tests with a configurable level.
// An empty level falls back to the LOG_LEVEL environment variable.
func NewTestLogger(output io.Writer, level string) *slog.Logger {
	logLevel := GetLogLevel()
	if level != "" {
		logLevel = parseLogLevel(level)
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	return slog.New(slog.NewTextHandler(output, opts))
}
