// Package terminal provides helpers for determining whether the current
// process can interact with a user, which decides whether a password prompt
// is possible at all.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// DetectorOptions contains options for controlling interactive detection.
type DetectorOptions struct {
	// ForceNonInteractive fails closed: never prompt, regardless of the
	// environment (the -n flag).
	ForceNonInteractive bool
}

// InteractiveDetector reports whether a password prompt can be presented.
type InteractiveDetector interface {
	IsInteractive() bool
	IsTerminal() bool
}

// DefaultInteractiveDetector implements InteractiveDetector.
type DefaultInteractiveDetector struct {
	options DetectorOptions
}

// NewInteractiveDetector creates a new interactive detector with the given
// options.
func NewInteractiveDetector(options DetectorOptions) InteractiveDetector {
	return &DefaultInteractiveDetector{options: options}
}

// IsInteractive returns true if a prompt may be presented to the user.
func (d *DefaultInteractiveDetector) IsInteractive() bool {
	if d.options.ForceNonInteractive {
		return false
	}
	return d.IsTerminal()
}

// IsTerminal checks if stdin and stderr are connected to a terminal. The
// prompt is written to stderr and the password read from the terminal, so
// both ends must be terminals.
func (d *DefaultInteractiveDetector) IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}
