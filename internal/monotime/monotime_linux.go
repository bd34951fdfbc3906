//go:build linux

package monotime

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Now reads CLOCK_BOOTTIME.
func (RealClock) Now() (SystemTime, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return SystemTime{}, fmt.Errorf("failed to read boot-time clock: %w", err)
	}
	return New(int64(ts.Sec), int64(ts.Nsec)), nil
}
