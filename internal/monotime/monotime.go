// Package monotime provides timestamps sourced from a monotonic clock that
// keeps counting while the system is suspended. Unlike wall-clock time, these
// timestamps cannot be moved backwards by an unprivileged user, which makes
// them safe to use for credential validity windows.
package monotime

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const nanosPerSecond = int64(time.Second)

// EncodedSize is the number of bytes produced by SystemTime.Encode.
const EncodedSize = 16

// SystemTime is a point on the boot-time clock, stored as whole seconds plus
// a nanosecond remainder. The zero value is the clock's epoch (boot).
type SystemTime struct {
	secs  int64
	nanos int64
}

// New returns a SystemTime normalized so that the nanosecond field is always
// in the range [0, 1e9).
func New(secs, nanos int64) SystemTime {
	secs += nanos / nanosPerSecond
	nanos %= nanosPerSecond
	if nanos < 0 {
		secs--
		nanos += nanosPerSecond
	}
	return SystemTime{secs: secs, nanos: nanos}
}

// Secs returns the whole-second part of the timestamp.
func (t SystemTime) Secs() int64 { return t.secs }

// Nanos returns the nanosecond remainder, in [0, 1e9).
func (t SystemTime) Nanos() int64 { return t.nanos }

// Add returns the timestamp shifted forward by d (backward if d is negative).
func (t SystemTime) Add(d time.Duration) SystemTime {
	return New(t.secs+int64(d/time.Second), t.nanos+int64(d%time.Second))
}

// Sub returns the timestamp shifted backward by d.
func (t SystemTime) Sub(d time.Duration) SystemTime {
	return t.Add(-d)
}

// Compare orders two timestamps: -1 if t is earlier than o, 0 if equal,
// +1 if later.
func (t SystemTime) Compare(o SystemTime) int {
	switch {
	case t.secs < o.secs:
		return -1
	case t.secs > o.secs:
		return 1
	case t.nanos < o.nanos:
		return -1
	case t.nanos > o.nanos:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than o.
func (t SystemTime) Before(o SystemTime) bool { return t.Compare(o) < 0 }

// After reports whether t is strictly later than o.
func (t SystemTime) After(o SystemTime) bool { return t.Compare(o) > 0 }

func (t SystemTime) String() string {
	return fmt.Sprintf("%d.%09d", t.secs, t.nanos)
}

// Encode writes the timestamp as two little-endian int64 fields (seconds,
// then nanoseconds), EncodedSize bytes in total.
func (t SystemTime) Encode(w io.Writer) error {
	var buf [EncodedSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t.secs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(t.nanos))
	_, err := w.Write(buf[:])
	return err
}

// Decode reads a timestamp previously written by Encode.
func Decode(r io.Reader) (SystemTime, error) {
	var buf [EncodedSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return SystemTime{}, err
	}
	return SystemTime{
		secs:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		nanos: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// Clock produces the current monotonic time. It is an interface so that
// components depending on elapsed time can be tested with a controlled clock.
type Clock interface {
	Now() (SystemTime, error)
}

// RealClock reads CLOCK_BOOTTIME, which advances during suspend and is not
// affected by wall-clock adjustments.
type RealClock struct{}

var _ Clock = RealClock{}
