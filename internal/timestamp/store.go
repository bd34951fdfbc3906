package timestamp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosudo/gosudo/internal/monotime"
	"github.com/gosudo/gosudo/internal/safefileio"
)

const (
	magicNumber uint16 = 0x50D0
	fileVersion uint16 = 1

	versionOffset     int64 = 2
	firstRecordOffset int64 = 4

	sizeOfTimestamp int64 = monotime.EncodedSize
	sizeOfBool      int64 = 1
	// modOffset is the distance from the end of a record back to its
	// timestamp field, covering the two fixed-size fields that are mutated
	// in place.
	modOffset int64 = sizeOfTimestamp + sizeOfBool
)

// DefaultStoreDir is the directory holding one session record file per user.
// It must only be writable by root.
const DefaultStoreDir = "/run/gosudo/ts"

// SessionRecordFile owns the session record stream for one user and
// implements the file-level protocol: header validation, corruption
// recovery, record iteration and the touch/create/disable/reset operations.
//
// Every mutating operation acquires the exclusive lock for its whole
// duration and rescans the file; there is no in-memory index, so operations
// from separate processes are linearized by the lock alone.
type SessionRecordFile struct {
	io      Stream
	timeout time.Duration
	forUser string
	clock   monotime.Clock
	logger  *slog.Logger
}

// Options configures a SessionRecordFile beyond its required parameters.
type Options struct {
	// Clock supplies the current monotonic time. Defaults to the boot-time
	// clock.
	Clock monotime.Clock
	// Logger receives corruption-recovery and reset notices. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// OpenOptions configures OpenForUser.
type OpenOptions struct {
	// Dir is the store directory. Defaults to DefaultStoreDir.
	Dir string
	// LockTimeout bounds the wait for the exclusive file lock; zero waits
	// forever.
	LockTimeout time.Duration
	// Clock and Logger are passed through to New.
	Clock  monotime.Clock
	Logger *slog.Logger
}

// OpenForUser opens (creating if needed) the session record file for the
// given user below the store directory, using the hardened open path.
// Timestamps in the file are considered valid if they were created or
// refreshed at most timeout ago.
func OpenForUser(username string, timeout time.Duration, opts OpenOptions) (*SessionRecordFile, error) {
	if username == "" || strings.ContainsAny(username, "/\x00") || username == "." || username == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	dir := opts.Dir
	if dir == "" {
		dir = DefaultStoreDir
	}
	file, err := safefileio.OpenCookieFile(filepath.Join(dir, username))
	if err != nil {
		return nil, err
	}
	srf, err := New(username, NewFileStream(file, opts.LockTimeout), timeout, Options{
		Clock:  opts.Clock,
		Logger: opts.Logger,
	})
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return srf, nil
}

// New creates a SessionRecordFile on top of the given stream, validating or
// rewriting the file header. A corrupt or foreign-version header is treated
// as an empty file and rewritten, never surfaced as an error.
func New(forUser string, stream Stream, timeout time.Duration, opts Options) (*SessionRecordFile, error) {
	clock := opts.Clock
	if clock == nil {
		clock = monotime.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srf := &SessionRecordFile{
		io:      stream,
		timeout: timeout,
		forUser: forUser,
		clock:   clock,
		logger:  logger,
	}

	magic, ok, err := srf.readUint16()
	if err != nil {
		return nil, err
	}
	if !ok || magic != magicNumber {
		if ok {
			srf.logger.Info("session records file is invalid, resetting",
				slog.String("user", srf.forUser))
		}
		if err := srf.init(versionOffset, true); err != nil {
			return nil, err
		}
	}

	version, ok, err := srf.readUint16()
	if err != nil {
		return nil, err
	}
	if !ok || version != fileVersion {
		if ok {
			srf.logger.Info("session records file has unsupported version, resetting",
				slog.String("user", srf.forUser),
				slog.Int("version", int(version)),
				slog.Int("supported_version", int(fileVersion)))
		} else {
			srf.logger.Info("session records file did not contain version information, resetting",
				slog.String("user", srf.forUser))
		}
		if err := srf.init(firstRecordOffset, true); err != nil {
			return nil, err
		}
	}

	return srf, nil
}

// Close closes the underlying stream when it supports closing.
func (f *SessionRecordFile) Close() error {
	if c, ok := f.io.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// readUint16 reads a little-endian uint16 from the current position. The
// second return value is false when the stream ends before two bytes could
// be read.
func (f *SessionRecordFile) readUint16() (uint16, bool, error) {
	var buf [2]byte
	if _, err := io.ReadFull(f.io, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return binary.LittleEndian.Uint16(buf[:]), true, nil
}

// init truncates the stream and writes a fresh header, leaving the position
// at offset. It locks the stream when mustLock is set, since reinitialization
// can be triggered by a read-intending open.
func (f *SessionRecordFile) init(offset int64, mustLock bool) (err error) {
	if mustLock {
		if err := f.io.LockExclusive(); err != nil {
			return err
		}
		defer func() {
			if uerr := f.io.Unlock(); uerr != nil && err == nil {
				err = uerr
			}
		}()
	}
	if err := f.io.Truncate(0); err != nil {
		return err
	}
	if _, err := f.io.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var header [4]byte
	binary.LittleEndian.PutUint16(header[0:2], magicNumber)
	binary.LittleEndian.PutUint16(header[2:4], fileVersion)
	if _, err := f.io.Write(header[:]); err != nil {
		return err
	}
	if _, err := f.io.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return nil
}

// nextRecord reads the record at the current position. It returns nil with
// no error at a clean end of the list. A truncated or undecodable record is
// not an error: the stream is truncated at the point where that record
// begins and the list ends there, so a crash mid-write only ever loses the
// trailing record.
//
// The caller must hold the exclusive lock.
func (f *SessionRecordFile) nextRecord() (*SessionRecord, error) {
	startPos, err := f.io.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var lengthBytes [2]byte
	if _, err := io.ReadFull(f.io, lengthBytes[:]); err != nil {
		// end of stream at a length-prefix boundary is the end of the list
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	recordLength := binary.LittleEndian.Uint16(lengthBytes[:])

	// a zero length cannot make scan progress and is never written
	if recordLength == 0 {
		return nil, ErrEmptyRecord
	}

	body := make([]byte, recordLength)
	if _, err := io.ReadFull(f.io, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			f.logger.Info("found incomplete record in session records file, clearing rest of the file",
				slog.String("user", f.forUser))
			if terr := f.io.Truncate(startPos); terr != nil {
				return nil, terr
			}
			return nil, nil
		}
		return nil, err
	}

	record, err := RecordFromBytes(body)
	if err != nil {
		// the file is nonsense from this point onwards
		f.logger.Info("found invalid record in session records file, clearing rest of the file",
			slog.String("user", f.forUser))
		if terr := f.io.Truncate(startPos); terr != nil {
			return nil, terr
		}
		return nil, nil
	}
	return &record, nil
}

// TouchOutcome distinguishes the possible results of Touch.
type TouchOutcome int

const (
	// TouchUpdated means a valid record was found and refreshed.
	TouchUpdated TouchOutcome = iota
	// TouchOutdated means a record was found but is no longer valid.
	TouchOutdated
	// TouchNotFound means no enabled record matches.
	TouchNotFound
)

// TouchResult reports what Touch did.
type TouchResult struct {
	Outcome TouchOutcome
	// OldTime and NewTime are set when Outcome is TouchUpdated.
	OldTime monotime.SystemTime
	NewTime monotime.SystemTime
	// Time is the stale record's timestamp when Outcome is TouchOutdated.
	Time monotime.SystemTime
}

// Touch finds an enabled record for the given scope and auth user and, if it
// is still within the validity window, refreshes its timestamp in place. It
// never creates a record. A record whose timestamp lies outside
// [now-timeout, now] — including one in the future, which indicates clock
// tampering — is reported as outdated and left untouched.
func (f *SessionRecordFile) Touch(scope RecordScope, authUser uint32) (result TouchResult, err error) {
	if err := f.io.LockExclusive(); err != nil {
		return TouchResult{}, err
	}
	defer func() {
		if uerr := f.io.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err := f.seekToFirstRecord(); err != nil {
		return TouchResult{}, err
	}
	for {
		record, err := f.nextRecord()
		if err != nil {
			return TouchResult{}, err
		}
		if record == nil {
			return TouchResult{Outcome: TouchNotFound}, nil
		}
		// only touch enabled records
		if !record.Enabled || !record.Matches(scope, authUser) {
			continue
		}

		now, err := f.clock.Now()
		if err != nil {
			return TouchResult{}, err
		}
		if !record.WrittenBetween(now.Sub(f.timeout), now) {
			return TouchResult{Outcome: TouchOutdated, Time: record.Timestamp}, nil
		}

		// move back over the fixed-size tail and overwrite the timestamp
		if _, err := f.io.Seek(-modOffset, io.SeekCurrent); err != nil {
			return TouchResult{}, err
		}
		newTime, err := f.clock.Now()
		if err != nil {
			return TouchResult{}, err
		}
		if err := newTime.Encode(f.io); err != nil {
			return TouchResult{}, err
		}
		// reseek past the enabled flag to the end of the record
		if _, err := f.io.Seek(sizeOfBool, io.SeekCurrent); err != nil {
			return TouchResult{}, err
		}
		return TouchResult{
			Outcome: TouchUpdated,
			OldTime: record.Timestamp,
			NewTime: newTime,
		}, nil
	}
}

// CreateOutcome distinguishes the possible results of Create.
type CreateOutcome int

const (
	// CreateUpdated means an existing slot for the scope and auth user was
	// refreshed and re-enabled.
	CreateUpdated CreateOutcome = iota
	// CreateCreated means a brand-new record was appended.
	CreateCreated
)

// CreateResult reports what Create did.
type CreateResult struct {
	Outcome CreateOutcome
	// OldTime and NewTime are set when Outcome is CreateUpdated.
	OldTime monotime.SystemTime
	NewTime monotime.SystemTime
	// Time is the new record's timestamp when Outcome is CreateCreated.
	Time monotime.SystemTime
}

// Create records a successful authentication for the given scope and auth
// user. An existing record for the pair — enabled or not — is refreshed and
// re-enabled in place, reusing its storage slot; otherwise a new enabled
// record is appended at the end of the file.
func (f *SessionRecordFile) Create(scope RecordScope, authUser uint32) (result CreateResult, err error) {
	if err := f.io.LockExclusive(); err != nil {
		return CreateResult{}, err
	}
	defer func() {
		if uerr := f.io.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err := f.seekToFirstRecord(); err != nil {
		return CreateResult{}, err
	}
	for {
		record, err := f.nextRecord()
		if err != nil {
			return CreateResult{}, err
		}
		if record == nil {
			break
		}
		if !record.Matches(scope, authUser) {
			continue
		}

		if _, err := f.io.Seek(-modOffset, io.SeekCurrent); err != nil {
			return CreateResult{}, err
		}
		newTime, err := f.clock.Now()
		if err != nil {
			return CreateResult{}, err
		}
		if err := newTime.Encode(f.io); err != nil {
			return CreateResult{}, err
		}
		if err := writeBool(f.io, true); err != nil {
			return CreateResult{}, err
		}
		return CreateResult{
			Outcome: CreateUpdated,
			OldTime: record.Timestamp,
			NewTime: newTime,
		}, nil
	}

	// no existing slot, append a new record at the end of the file
	now, err := f.clock.Now()
	if err != nil {
		return CreateResult{}, err
	}
	record := SessionRecord{Scope: scope, AuthUser: authUser, Timestamp: now, Enabled: true}
	if _, err := f.io.Seek(0, io.SeekEnd); err != nil {
		return CreateResult{}, err
	}
	if err := f.writeRecord(record); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Outcome: CreateCreated, Time: record.Timestamp}, nil
}

// Disable flips the enabled flag off for every record matching the scope.
// When authUser is non-nil only records targeting that user are disabled.
func (f *SessionRecordFile) Disable(scope RecordScope, authUser *uint32) (err error) {
	if err := f.io.LockExclusive(); err != nil {
		return err
	}
	defer func() {
		if uerr := f.io.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err := f.seekToFirstRecord(); err != nil {
		return err
	}
	for {
		record, err := f.nextRecord()
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}

		mustDisable := record.Scope == scope
		if authUser != nil {
			mustDisable = record.Matches(scope, *authUser)
		}
		if !mustDisable {
			continue
		}
		if _, err := f.io.Seek(-sizeOfBool, io.SeekCurrent); err != nil {
			return err
		}
		if err := writeBool(f.io, false); err != nil {
			return err
		}
	}
}

// Reset removes all records, truncating the file back to just its header.
func (f *SessionRecordFile) Reset() error {
	return f.init(0, true)
}

// writeRecord writes the record with its length prefix at the current
// position.
func (f *SessionRecordFile) writeRecord(record SessionRecord) error {
	body, err := record.Bytes()
	if err != nil {
		return err
	}
	if len(body) > int(^uint16(0)) {
		return ErrRecordTooLarge
	}
	var lengthBytes [2]byte
	binary.LittleEndian.PutUint16(lengthBytes[:], uint16(len(body)))
	if _, err := f.io.Write(lengthBytes[:]); err != nil {
		return err
	}
	if _, err := f.io.Write(body); err != nil {
		return err
	}
	return nil
}

func (f *SessionRecordFile) seekToFirstRecord() error {
	_, err := f.io.Seek(firstRecordOffset, io.SeekStart)
	return err
}
