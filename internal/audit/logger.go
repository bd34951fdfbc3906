// Package audit provides structured audit logging for authentication
// decisions and session cache changes.
package audit

import (
	"context"
	"log/slog"
	"os"

	"github.com/gosudo/gosudo/internal/timestamp"
)

// Logger provides structured audit logging functionality.
type Logger struct {
	logger *slog.Logger
	runID  string
}

// NewLogger creates a new audit logger instance. Every event carries the
// given run ID so all records of one invocation can be correlated.
func NewLogger(logger *slog.Logger, runID string) *Logger {
	return &Logger{logger: logger, runID: runID}
}

// ScopeName names the scope variant for audit records.
func ScopeName(scope timestamp.RecordScope) string {
	switch scope.(type) {
	case timestamp.TTYScope:
		return "tty"
	case timestamp.PPIDScope:
		return "ppid"
	default:
		return "none"
	}
}

func (a *Logger) baseAttrs(auditType string, invokingUser string, targetUID uint32, scope timestamp.RecordScope) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("run_id", a.runID),
		slog.String("invoking_user", invokingUser),
		slog.Int("invoking_uid", os.Getuid()),
		slog.Int64("target_uid", int64(targetUID)),
		slog.String("scope", ScopeName(scope)),
		slog.Int("process_id", os.Getpid()),
	}
}

// LogCacheHit records an authentication satisfied from the session cache.
func (a *Logger) LogCacheHit(invokingUser string, targetUID uint32, scope timestamp.RecordScope) {
	a.logger.LogAttrs(context.Background(), slog.LevelInfo,
		"Authentication satisfied from session cache",
		a.baseAttrs("cache_hit", invokingUser, targetUID, scope)...)
}

// LogAuthSuccess records a successful interactive authentication.
func (a *Logger) LogAuthSuccess(invokingUser string, targetUID uint32, scope timestamp.RecordScope) {
	a.logger.LogAttrs(context.Background(), slog.LevelInfo,
		"Authentication succeeded",
		a.baseAttrs("authentication_success", invokingUser, targetUID, scope)...)
}

// LogAuthFailure records a failed authentication attempt with the reason.
func (a *Logger) LogAuthFailure(invokingUser string, targetUID uint32, scope timestamp.RecordScope, reason string) {
	attrs := a.baseAttrs("authentication_failure", invokingUser, targetUID, scope)
	attrs = append(attrs, slog.String("reason", reason))
	a.logger.LogAttrs(context.Background(), slog.LevelWarn,
		"Authentication failed", attrs...)
}

// LogSessionInvalidated records that cached records were disabled or the
// store was reset.
func (a *Logger) LogSessionInvalidated(invokingUser string, scope timestamp.RecordScope, all bool) {
	attrs := []slog.Attr{
		slog.String("audit_type", "session_invalidated"),
		slog.String("run_id", a.runID),
		slog.String("invoking_user", invokingUser),
		slog.Int("invoking_uid", os.Getuid()),
		slog.String("scope", ScopeName(scope)),
		slog.Bool("all_records", all),
		slog.Int("process_id", os.Getpid()),
	}
	a.logger.LogAttrs(context.Background(), slog.LevelInfo,
		"Session records invalidated", attrs...)
}
