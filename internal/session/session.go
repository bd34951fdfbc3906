// Package session derives the record scope for the current invocation from
// live process and terminal state. The timestamp store performs no
// introspection of its own; this package constructs the exact scope key
// (terminal device, session leader, start times) that the store matches on.
package session

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/gosudo/gosudo/internal/monotime"
	"github.com/gosudo/gosudo/internal/timestamp"
)

// userHZ is the clock tick rate used for the starttime field of
// /proc/<pid>/stat. The kernel reports this field in USER_HZ units, which is
// fixed at 100 on Linux regardless of the scheduler tick.
const userHZ = 100

var (
	// ErrMalformedStat indicates an unparseable /proc/<pid>/stat file.
	ErrMalformedStat = errors.New("malformed process stat file")

	// ErrNoScope indicates no record scope could be derived for this
	// invocation; authentication results must not be cached.
	ErrNoScope = errors.New("no record scope available")
)

// CurrentScope builds the scope for the calling process. With preferTTY set
// it scopes to the controlling terminal and its session leader; without one
// (or when preferTTY is unset) it falls back to the parent process group.
func CurrentScope(preferTTY bool) (timestamp.RecordScope, error) {
	if preferTTY {
		device, ok, err := controllingTTY()
		if err != nil {
			return nil, err
		}
		if ok {
			sid, err := unix.Getsid(0)
			if err != nil {
				return nil, fmt.Errorf("failed to get session id: %w", err)
			}
			initTime, err := ProcessStartTime(sid)
			if err != nil {
				return nil, err
			}
			return timestamp.TTYScope{
				Device:     device,
				SessionPID: int32(sid),
				InitTime:   initTime,
			}, nil
		}
	}

	ppid := os.Getppid()
	if ppid <= 0 {
		return nil, ErrNoScope
	}
	initTime, err := ProcessStartTime(ppid)
	if err != nil {
		return nil, err
	}
	return timestamp.PPIDScope{
		GroupPID: int32(ppid),
		InitTime: initTime,
	}, nil
}

// ProcessStartTime returns the start time of the given process on the
// boot-time clock, read from its stat file. Because it is fixed at process
// creation, it disambiguates a recycled PID from the session that originally
// authenticated.
func ProcessStartTime(pid int) (monotime.SystemTime, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return monotime.SystemTime{}, fmt.Errorf("failed to read process stat for pid %d: %w", pid, err)
	}
	ticks, err := statStartTime(string(data))
	if err != nil {
		return monotime.SystemTime{}, err
	}
	return ticksToSystemTime(ticks), nil
}

// controllingTTY returns the device number of the controlling terminal of the
// calling process. The second return value is false when there is none.
func controllingTTY() (uint64, bool, error) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, false, fmt.Errorf("failed to read process stat: %w", err)
	}
	device, err := statTTYDevice(string(data))
	if err != nil {
		return 0, false, err
	}
	return device, device != 0, nil
}

// statFields splits a stat line into the fields after the comm field. The
// comm field may itself contain spaces and parentheses, so parsing scans
// backwards from the last closing parenthesis.
func statFields(stat string) ([]string, error) {
	end := strings.LastIndexByte(stat, ')')
	if end < 0 || end+2 > len(stat) {
		return nil, ErrMalformedStat
	}
	fields := strings.Fields(stat[end+2:])
	if len(fields) == 0 {
		return nil, ErrMalformedStat
	}
	return fields, nil
}

// stat field positions relative to the field after comm (field 3 of the
// documented proc(5) layout has index 0 here).
const (
	statFieldTTYNr     = 4  // tty_nr, field 7
	statFieldStartTime = 19 // starttime, field 22
)

func statTTYDevice(stat string) (uint64, error) {
	fields, err := statFields(stat)
	if err != nil {
		return 0, err
	}
	if len(fields) <= statFieldTTYNr {
		return 0, ErrMalformedStat
	}
	// tty_nr is a signed kernel dev_t; 0 means no controlling terminal
	device, err := strconv.ParseInt(fields[statFieldTTYNr], 10, 64)
	if err != nil || device < 0 {
		return 0, ErrMalformedStat
	}
	return uint64(device), nil
}

func statStartTime(stat string) (uint64, error) {
	fields, err := statFields(stat)
	if err != nil {
		return 0, err
	}
	if len(fields) <= statFieldStartTime {
		return 0, ErrMalformedStat
	}
	ticks, err := strconv.ParseUint(fields[statFieldStartTime], 10, 64)
	if err != nil {
		return 0, ErrMalformedStat
	}
	return ticks, nil
}

func ticksToSystemTime(ticks uint64) monotime.SystemTime {
	const nanosPerTick = int64(1_000_000_000 / userHZ)
	return monotime.New(int64(ticks/userHZ), int64(ticks%userHZ)*nanosPerTick)
}
