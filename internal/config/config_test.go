package config

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFS serves file contents from memory.
type fakeFS struct {
	files map[string][]byte
}

func (f fakeFS) ReadFile(name string) ([]byte, error) {
	content, ok := f.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return content, nil
}

// failFS fails every read with a non-not-exist error.
type failFS struct{}

func (failFS) ReadFile(string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	loader := NewLoaderWithFS(fakeFS{})

	cfg, err := loader.Load("/etc/gosudo.toml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 15*time.Minute, cfg.Timestamp.Timeout.Duration)
	assert.Equal(t, ScopeTTY, cfg.Timestamp.Type)
}

func TestLoadParsesFields(t *testing.T) {
	content := []byte(`
[timestamp]
timeout = "5m"
type = "ppid"
dir = "/var/lib/gosudo/ts"
lock_timeout = "2s"
`)
	loader := NewLoaderWithFS(fakeFS{files: map[string][]byte{"/etc/gosudo.toml": content}})

	cfg, err := loader.Load("/etc/gosudo.toml")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Timestamp.Timeout.Duration)
	assert.Equal(t, ScopePPID, cfg.Timestamp.Type)
	assert.Equal(t, "/var/lib/gosudo/ts", cfg.Timestamp.Dir)
	assert.Equal(t, 2*time.Second, cfg.Timestamp.LockTimeout.Duration)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	content := []byte(`
[timestamp]
timeout = "30s"
`)
	loader := NewLoaderWithFS(fakeFS{files: map[string][]byte{"/etc/gosudo.toml": content}})

	cfg, err := loader.Load("/etc/gosudo.toml")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timestamp.Timeout.Duration)
	assert.Equal(t, ScopeTTY, cfg.Timestamp.Type)
	assert.Equal(t, Default().Timestamp.Dir, cfg.Timestamp.Dir)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "unknown scope type",
			content: "[timestamp]\ntype = \"hostname\"\n",
			wantErr: ErrInvalidScopeType,
		},
		{
			name:    "negative timeout",
			content: "[timestamp]\ntimeout = \"-5s\"\n",
			wantErr: ErrNegativeDuration,
		},
		{
			name:    "negative lock timeout",
			content: "[timestamp]\nlock_timeout = \"-1s\"\n",
			wantErr: ErrNegativeDuration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoaderWithFS(fakeFS{files: map[string][]byte{"/etc/gosudo.toml": []byte(tt.content)}})
			_, err := loader.Load("/etc/gosudo.toml")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadBadSyntaxAndBadDuration(t *testing.T) {
	loader := NewLoaderWithFS(fakeFS{files: map[string][]byte{
		"/bad-syntax": []byte("[timestamp\n"),
		"/bad-dur":    []byte("[timestamp]\ntimeout = \"soon\"\n"),
	}})

	_, err := loader.Load("/bad-syntax")
	assert.Error(t, err)

	_, err = loader.Load("/bad-dur")
	assert.Error(t, err)
}

func TestLoadReadFailurePropagates(t *testing.T) {
	loader := NewLoaderWithFS(failFS{})

	_, err := loader.Load("/etc/gosudo.toml")
	assert.Error(t, err)
}
