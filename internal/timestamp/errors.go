// Package timestamp implements the per-user session record store that caches
// successful authentication events. Each user has one binary file holding a
// list of records keyed by login scope and target user; a record inside the
// configured validity window lets an invocation skip re-authentication.
package timestamp

import "errors"

var (
	// ErrEmptyRecord indicates a record with a zero length prefix, which is
	// never produced by a correct writer.
	ErrEmptyRecord = errors.New("found empty record")

	// ErrRecordTooLarge indicates an encoded record does not fit the 16-bit
	// length prefix.
	ErrRecordTooLarge = errors.New("record too large to store")

	// ErrInvalidScopeTag indicates an unknown scope variant discriminator.
	ErrInvalidScopeTag = errors.New("unexpected scope variant discriminator")

	// ErrInvalidBoolean indicates an enabled flag byte that is neither the
	// true nor the false sentinel.
	ErrInvalidBoolean = errors.New("invalid boolean value in input stream")

	// ErrTrailingBytes indicates a record body with unconsumed bytes after a
	// successful decode.
	ErrTrailingBytes = errors.New("record size and record length do not match")

	// ErrLockTimeout is returned when the exclusive file lock could not be
	// acquired within the configured wait.
	ErrLockTimeout = errors.New("timed out waiting for exclusive file lock")

	// ErrInvalidUsername is returned when a username cannot be used as a
	// store file name.
	ErrInvalidUsername = errors.New("invalid username")
)
