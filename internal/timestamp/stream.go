package timestamp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Stream is the byte store backing a session record file. On a real system it
// is an opened file in a protected directory; tests use an in-memory
// implementation. Locking is advisory and scoped to the whole store
// operation, which is the only concurrency mechanism between cooperating
// processes.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker

	// Truncate shrinks or zero-extends the underlying data to size bytes
	// without moving the current position.
	Truncate(size int64) error

	// LockExclusive blocks until the exclusive advisory lock is held, or
	// fails with ErrLockTimeout when a lock wait limit is configured and
	// exceeded.
	LockExclusive() error

	// Unlock releases the exclusive advisory lock.
	Unlock() error
}

// lockRetryInterval is the poll interval used when acquiring the lock with a
// deadline; the critical sections guarded by the lock are short.
const lockRetryInterval = 10 * time.Millisecond

// FileStream adapts an *os.File to the Stream interface using flock for
// advisory locking.
type FileStream struct {
	file        *os.File
	lockTimeout time.Duration
}

var _ Stream = (*FileStream)(nil)

// NewFileStream wraps an opened file. A zero or negative lockTimeout means
// lock acquisition blocks indefinitely; a positive value bounds the wait and
// makes store operations fail with ErrLockTimeout instead of hanging on a
// stuck peer.
func NewFileStream(file *os.File, lockTimeout time.Duration) *FileStream {
	return &FileStream{file: file, lockTimeout: lockTimeout}
}

func (s *FileStream) Read(p []byte) (int, error)  { return s.file.Read(p) }
func (s *FileStream) Write(p []byte) (int, error) { return s.file.Write(p) }

func (s *FileStream) Seek(offset int64, whence int) (int64, error) {
	return s.file.Seek(offset, whence)
}

// Truncate changes the file size without moving the file offset.
func (s *FileStream) Truncate(size int64) error {
	return s.file.Truncate(size)
}

// LockExclusive acquires the exclusive flock on the file.
func (s *FileStream) LockExclusive() error {
	fd := int(s.file.Fd())

	if s.lockTimeout <= 0 {
		for {
			err := unix.Flock(fd, unix.LOCK_EX)
			if err == nil {
				return nil
			}
			if !errors.Is(err, unix.EINTR) {
				return fmt.Errorf("failed to lock session records file: %w", err)
			}
		}
	}

	deadline := time.Now().Add(s.lockTimeout)
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("failed to lock session records file: %w", err)
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(lockRetryInterval)
	}
}

// Unlock releases the flock.
func (s *FileStream) Unlock() error {
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("failed to unlock session records file: %w", err)
	}
	return nil
}

// Close closes the underlying file, releasing any held lock with it.
func (s *FileStream) Close() error {
	return s.file.Close()
}
