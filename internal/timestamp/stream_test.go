package timestamp

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStream is an in-memory Stream used to test the store protocol without
// touching the filesystem. Locking is tracked so tests can assert balanced
// acquire/release.
type memStream struct {
	data  []byte
	pos   int64
	locks int
}

var _ Stream = (*memStream)(nil)

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	if gap := m.pos - int64(len(m.data)); gap > 0 {
		m.data = append(m.data, make([]byte, gap)...)
	}
	n := copy(m.data[m.pos:], p)
	m.data = append(m.data, p[n:]...)
	m.pos += int64(len(p))
	return len(p), nil
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.data))
	default:
		return 0, errors.New("invalid whence")
	}
	if base+offset < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = base + offset
	return m.pos, nil
}

func (m *memStream) Truncate(size int64) error {
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	return nil
}

func (m *memStream) LockExclusive() error {
	m.locks++
	return nil
}

func (m *memStream) Unlock() error {
	m.locks--
	return nil
}

func openLockTestFile(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFileStreamLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked")
	holder := NewFileStream(openLockTestFile(t, path), 0)
	waiter := NewFileStream(openLockTestFile(t, path), 50*time.Millisecond)

	require.NoError(t, holder.LockExclusive())

	err := waiter.LockExclusive()
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, holder.Unlock())

	// lock is free now, so the bounded acquire succeeds
	require.NoError(t, waiter.LockExclusive())
	require.NoError(t, waiter.Unlock())
}

func TestFileStreamTruncateKeepsPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	stream := NewFileStream(openLockTestFile(t, path), 0)

	_, err := stream.Write([]byte("abcdef"))
	require.NoError(t, err)

	pos, err := stream.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	require.NoError(t, stream.Truncate(2))

	pos, err = stream.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
}
