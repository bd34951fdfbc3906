package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForceNonInteractiveWins(t *testing.T) {
	detector := NewInteractiveDetector(DetectorOptions{ForceNonInteractive: true})
	assert.False(t, detector.IsInteractive())
}

func TestInteractiveFollowsTerminal(t *testing.T) {
	// under go test stdin/stderr are normally pipes; either way the result
	// must agree with the terminal check
	detector := NewInteractiveDetector(DetectorOptions{})
	assert.Equal(t, detector.IsTerminal(), detector.IsInteractive())
}
