// Package auth implements the authentication flow around the session
// timestamp store: check the cache, prompt when required, and record a fresh
// success. The credential verification mechanism itself is behind the
// CredentialChecker seam and out of scope here.
package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gosudo/gosudo/internal/audit"
	"github.com/gosudo/gosudo/internal/terminal"
	"github.com/gosudo/gosudo/internal/timestamp"
)

var (
	// ErrPasswordRequired is returned when authentication needs a prompt
	// but the invocation is non-interactive.
	ErrPasswordRequired = errors.New("a password is required")

	// ErrAuthenticationFailed is returned after the allowed number of
	// incorrect password attempts.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoCredentialBackend is returned by DenyChecker; the deployment has
	// not wired a credential verification backend.
	ErrNoCredentialBackend = errors.New("no credential backend available")
)

// maxTries is the number of password attempts before giving up.
const maxTries = 3

// CredentialChecker verifies a password for a user. Implementations are
// supplied by the deployment (PAM, shadow, directory service); this package
// only defines the seam.
type CredentialChecker interface {
	Check(username string, password []byte) error
}

// DenyChecker rejects every credential. It is the safe default when no
// backend is configured: the cache can still be invalidated, never seeded.
type DenyChecker struct{}

// Check implements CredentialChecker.
func (DenyChecker) Check(string, []byte) error {
	return ErrNoCredentialBackend
}

// Store is the subset of the session record store the flow depends on.
// *timestamp.SessionRecordFile satisfies it.
type Store interface {
	Touch(scope timestamp.RecordScope, authUser uint32) (timestamp.TouchResult, error)
	Create(scope timestamp.RecordScope, authUser uint32) (timestamp.CreateResult, error)
	Disable(scope timestamp.RecordScope, authUser *uint32) error
	Reset() error
}

// Flow runs authentication decisions for one invocation.
type Flow struct {
	store     Store
	checker   CredentialChecker
	passwords PasswordReader
	detector  terminal.InteractiveDetector
	audit     *audit.Logger
	logger    *slog.Logger
}

// Options carries the collaborators of a Flow.
type Options struct {
	// Store is the opened session record store; nil disables caching.
	Store Store
	// Passwords defaults to the controlling terminal reader.
	Passwords PasswordReader
	// Detector defaults to the standard interactive detector.
	Detector terminal.InteractiveDetector
	Audit    *audit.Logger
	Logger   *slog.Logger
}

// New creates a Flow using the given credential checker.
func New(checker CredentialChecker, opts Options) *Flow {
	passwords := opts.Passwords
	if passwords == nil {
		passwords = &TTYPasswordReader{}
	}
	detector := opts.Detector
	if detector == nil {
		detector = terminal.NewInteractiveDetector(terminal.DetectorOptions{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := opts.Audit
	if auditLogger == nil {
		auditLogger = audit.NewLogger(logger, "")
	}
	return &Flow{
		store:     opts.Store,
		checker:   checker,
		passwords: passwords,
		detector:  detector,
		audit:     auditLogger,
		logger:    logger,
	}
}

// Request describes one authentication decision.
type Request struct {
	// Scope is the session scope records are keyed on; nil disables the
	// cache for this invocation.
	Scope timestamp.RecordScope
	// InvokingUser is the user whose password is checked.
	InvokingUser string
	// AuthUID is the target user id the authentication is for.
	AuthUID uint32
}

// Authenticate decides whether the invoking user is authenticated for the
// target user, consulting the session cache first and prompting when the
// cache cannot answer. A fresh interactive success is recorded back into the
// cache. Cache failures only ever degrade to prompting; they never grant or
// deny by themselves.
func (f *Flow) Authenticate(req Request) error {
	if f.store != nil && req.Scope != nil {
		result, err := f.store.Touch(req.Scope, req.AuthUID)
		if err != nil {
			return err
		}
		switch result.Outcome {
		case timestamp.TouchUpdated:
			f.audit.LogCacheHit(req.InvokingUser, req.AuthUID, req.Scope)
			return nil
		case timestamp.TouchOutdated:
			f.logger.Debug("cached credential expired, re-authenticating",
				slog.String("user", req.InvokingUser))
		case timestamp.TouchNotFound:
			f.logger.Debug("no cached credential, authenticating",
				slog.String("user", req.InvokingUser))
		}
	}

	if !f.detector.IsInteractive() {
		f.audit.LogAuthFailure(req.InvokingUser, req.AuthUID, req.Scope, "password required but no terminal available")
		return ErrPasswordRequired
	}

	for try := 0; try < maxTries; try++ {
		password, err := f.passwords.ReadPassword(fmt.Sprintf("[gosudo] password for %s: ", req.InvokingUser))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		err = f.checker.Check(req.InvokingUser, password)
		wipe(password)
		if err == nil {
			f.recordSuccess(req)
			f.audit.LogAuthSuccess(req.InvokingUser, req.AuthUID, req.Scope)
			return nil
		}
		if errors.Is(err, ErrNoCredentialBackend) {
			f.audit.LogAuthFailure(req.InvokingUser, req.AuthUID, req.Scope, err.Error())
			return err
		}
		f.logger.Info("incorrect password attempt",
			slog.String("user", req.InvokingUser),
			slog.Int("attempt", try+1))
	}

	f.audit.LogAuthFailure(req.InvokingUser, req.AuthUID, req.Scope, "too many incorrect password attempts")
	return ErrAuthenticationFailed
}

// recordSuccess writes the fresh authentication into the cache. A failure
// here costs a future prompt, not the current authentication.
func (f *Flow) recordSuccess(req Request) {
	if f.store == nil || req.Scope == nil {
		return
	}
	if _, err := f.store.Create(req.Scope, req.AuthUID); err != nil {
		f.logger.Warn("failed to record authentication in session cache",
			slog.String("user", req.InvokingUser),
			slog.Any("error", err))
	}
}

// Invalidate disables every cached record for the given scope, regardless of
// target user.
func (f *Flow) Invalidate(invokingUser string, scope timestamp.RecordScope) error {
	if f.store == nil || scope == nil {
		return nil
	}
	if err := f.store.Disable(scope, nil); err != nil {
		return err
	}
	f.audit.LogSessionInvalidated(invokingUser, scope, false)
	return nil
}

// ResetAll removes every cached record for the invoking user.
func (f *Flow) ResetAll(invokingUser string) error {
	if f.store == nil {
		return nil
	}
	if err := f.store.Reset(); err != nil {
		return err
	}
	f.audit.LogSessionInvalidated(invokingUser, nil, true)
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
