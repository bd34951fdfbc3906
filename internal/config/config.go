// Package config loads and validates the tool configuration. It supports
// TOML format; a missing configuration file yields the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gosudo/gosudo/internal/timestamp"
)

// DefaultPath is where the configuration is looked up unless overridden.
const DefaultPath = "/etc/gosudo.toml"

// Error definitions for the config package
var (
	// ErrInvalidScopeType is returned for an unknown timestamp.type value.
	ErrInvalidScopeType = errors.New("invalid timestamp scope type")

	// ErrNegativeDuration is returned when a duration field is negative.
	ErrNegativeDuration = errors.New("duration must not be negative")
)

// ScopeType selects how cached authentications are scoped.
type ScopeType string

const (
	// ScopeTTY scopes records to the controlling terminal session, falling
	// back to the parent process group when there is none.
	ScopeTTY ScopeType = "tty"
	// ScopePPID always scopes records to the parent process group.
	ScopePPID ScopeType = "ppid"
	// ScopeOff disables the cache entirely; every invocation authenticates.
	ScopeOff ScopeType = "off"
)

// Duration is a time.Duration that unmarshals from a TOML string such as
// "15m" or "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// TimestampConfig configures the session timestamp store.
type TimestampConfig struct {
	// Timeout is the validity window of a cached authentication. Zero
	// disables caching.
	Timeout Duration `toml:"timeout"`
	// Type selects the record scope: "tty", "ppid" or "off".
	Type ScopeType `toml:"type"`
	// Dir is the directory holding the per-user record files.
	Dir string `toml:"dir"`
	// LockTimeout bounds the wait for the exclusive store lock. Zero waits
	// forever.
	LockTimeout Duration `toml:"lock_timeout"`
}

// Config is the root of the configuration file.
type Config struct {
	Timestamp TimestampConfig `toml:"timestamp"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timestamp: TimestampConfig{
			Timeout:     Duration{15 * time.Minute},
			Type:        ScopeTTY,
			Dir:         timestamp.DefaultStoreDir,
			LockTimeout: Duration{10 * time.Second},
		},
	}
}

// FileReader abstracts reading the configuration file so the loader can be
// tested without touching the real filesystem.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Loader handles loading and validating configurations.
type Loader struct {
	fs FileReader
}

// NewLoader creates a config loader reading from the local filesystem.
func NewLoader() *Loader {
	return NewLoaderWithFS(osFileReader{})
}

// NewLoaderWithFS creates a config loader with a custom FileReader.
func NewLoaderWithFS(fs FileReader) *Loader {
	return &Loader{fs: fs}
}

// Load reads and validates the configuration at path. A missing file is not
// an error; defaults are returned. Fields absent from the file keep their
// default values.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	content, err := l.fs.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Timestamp.Type {
	case ScopeTTY, ScopePPID, ScopeOff:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScopeType, c.Timestamp.Type)
	}
	if c.Timestamp.Timeout.Duration < 0 {
		return fmt.Errorf("%w: timestamp.timeout", ErrNegativeDuration)
	}
	if c.Timestamp.LockTimeout.Duration < 0 {
		return fmt.Errorf("%w: timestamp.lock_timeout", ErrNegativeDuration)
	}
	return nil
}
