package session

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosudo/gosudo/internal/monotime"
)

// sampleStat mirrors the proc(5) layout with tty_nr=34816 (pts/0) and
// starttime=5150 ticks.
const sampleStat = "1234 (bash) S 1 1234 1234 34816 5678 4194560 1000 0 0 0 5 3 0 0 " +
	"20 0 1 0 5150 8192000 500 18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 " +
	"17 1 0 0 0 0 0 0 0 0 0 0 0 0 0"

func TestStatStartTime(t *testing.T) {
	ticks, err := statStartTime(sampleStat)
	require.NoError(t, err)
	assert.Equal(t, uint64(5150), ticks)
}

func TestStatTTYDevice(t *testing.T) {
	device, err := statTTYDevice(sampleStat)
	require.NoError(t, err)
	assert.Equal(t, uint64(34816), device)
}

func TestStatParsingSurvivesHostileComm(t *testing.T) {
	// comm is attacker-controlled and may contain spaces and parentheses;
	// field positions must be taken relative to the last closing paren
	stat := "99 (we ird) na me) R 1 99 99 0 99 0 0 0 0 0 0 0 0 0 " +
		"20 0 1 0 777 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0"

	ticks, err := statStartTime(stat)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), ticks)

	device, err := statTTYDevice(stat)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), device)
}

func TestStatParsingRejectsGarbage(t *testing.T) {
	for _, stat := range []string{
		"",
		"no parens here",
		"1 (x)",
		"1 (x) R 2 3", // too few fields
	} {
		_, err := statStartTime(stat)
		assert.ErrorIs(t, err, ErrMalformedStat, "stat %q", stat)
	}
}

func TestTicksToSystemTime(t *testing.T) {
	assert.Equal(t, monotime.New(0, 0), ticksToSystemTime(0))
	assert.Equal(t, monotime.New(1, 0), ticksToSystemTime(100))
	assert.Equal(t, monotime.New(51, 500_000_000), ticksToSystemTime(5150))
}

func TestProcessStartTimeForSelf(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires procfs")
	}

	start, err := ProcessStartTime(os.Getpid())
	require.NoError(t, err)

	// the process started after boot and before now
	now, err := monotime.RealClock{}.Now()
	require.NoError(t, err)
	assert.True(t, start.After(monotime.New(0, 0)))
	assert.False(t, start.After(now))
}

func TestCurrentScopePPIDFallback(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires procfs")
	}

	scope, err := CurrentScope(false)
	require.NoError(t, err)
	require.NotNil(t, scope)
}
