// Package bootstrap initializes the logging system and per-invocation
// identifiers during application startup.
package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
)

// logLevelEnvVar selects the log level; one of "debug", "info", "warn",
// "error". Unset or unknown values fall back to warn, which keeps normal
// operation quiet on the terminal.
const logLevelEnvVar = "GOSUDO_LOG_LEVEL"

// SetupLogger builds the process logger writing to w, with the level taken
// from the environment.
func SetupLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelFromEnv(),
	}))
}

func levelFromEnv() slog.Level {
	return parseLevel(os.Getenv(logLevelEnvVar))
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// NewRunID returns a fresh identifier correlating all log and audit records
// of one invocation.
func NewRunID() string {
	return ulid.Make().String()
}
