//go:build unix && !linux

package monotime

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Now reads CLOCK_MONOTONIC. Platforms without CLOCK_BOOTTIME get a clock
// that pauses during suspend; validity windows are then conservative (a
// suspended interval does not age cached credentials).
func (RealClock) Now() (SystemTime, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return SystemTime{}, fmt.Errorf("failed to read monotonic clock: %w", err)
	}
	return New(int64(ts.Sec), int64(ts.Nsec)), nil
}
