package bootstrap

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.value), "value %q", tt.value)
	}
}

func TestSetupLoggerWrites(t *testing.T) {
	t.Setenv(logLevelEnvVar, "info")

	var buf bytes.Buffer
	logger := SetupLogger(&buf)
	logger.Info("hello", slog.String("k", "v"))

	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNewRunID(t *testing.T) {
	first := NewRunID()
	second := NewRunID()

	require.Len(t, first, 26)
	assert.NotEqual(t, first, second)
}
