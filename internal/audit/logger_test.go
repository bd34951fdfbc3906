package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosudo/gosudo/internal/monotime"
	"github.com/gosudo/gosudo/internal/timestamp"
)

func newCaptureLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewLogger(logger, "01JA0000000000000000000000"), &buf
}

func decodeEvent(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	return event
}

func TestScopeName(t *testing.T) {
	assert.Equal(t, "tty", ScopeName(timestamp.TTYScope{}))
	assert.Equal(t, "ppid", ScopeName(timestamp.PPIDScope{}))
	assert.Equal(t, "none", ScopeName(nil))
}

func TestLogCacheHit(t *testing.T) {
	logger, buf := newCaptureLogger()
	scope := timestamp.TTYScope{Device: 3, SessionPID: 4, InitTime: monotime.New(1, 0)}

	logger.LogCacheHit("alice", 0, scope)

	event := decodeEvent(t, buf)
	assert.Equal(t, "cache_hit", event["audit_type"])
	assert.Equal(t, "alice", event["invoking_user"])
	assert.Equal(t, "tty", event["scope"])
	assert.Equal(t, "01JA0000000000000000000000", event["run_id"])
}

func TestLogAuthFailureCarriesReason(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.LogAuthFailure("bob", 0, timestamp.PPIDScope{}, "incorrect password")

	event := decodeEvent(t, buf)
	assert.Equal(t, "authentication_failure", event["audit_type"])
	assert.Equal(t, "incorrect password", event["reason"])
	assert.Equal(t, "WARN", event["level"])
}

func TestLogSessionInvalidated(t *testing.T) {
	logger, buf := newCaptureLogger()

	logger.LogSessionInvalidated("carol", nil, true)

	event := decodeEvent(t, buf)
	assert.Equal(t, "session_invalidated", event["audit_type"])
	assert.Equal(t, true, event["all_records"])
	assert.Equal(t, "none", event["scope"])
}
