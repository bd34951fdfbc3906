package timestamp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gosudo/gosudo/internal/monotime"
)

// Scope variant discriminators as stored on disk.
const (
	scopeTagTTY  byte = 1
	scopeTagPPID byte = 2
)

// Enabled flag sentinels. An explicit sentinel for true rejects bit-flip
// corruption that a nonzero-is-true encoding would silently accept.
const (
	boolTrue  byte = 0xFF
	boolFalse byte = 0x00
)

// RecordScope identifies the login context a cached credential applies to.
// The two implementations, TTYScope and PPIDScope, are comparable structs;
// comparing two RecordScope values with == yields structural equality
// including the variant, which is exactly the matching rule for records.
type RecordScope interface {
	encode(w io.Writer) error
	isRecordScope()
}

// TTYScope scopes a record to a controlling terminal device and the session
// leader that first authenticated on it. InitTime is the leader's start time
// and disambiguates PID reuse: a recycled PID has a different start time and
// must never match a stale record.
type TTYScope struct {
	Device     uint64
	SessionPID int32
	InitTime   monotime.SystemTime
}

// PPIDScope scopes a record to a parent process group, for invocations
// without a controlling terminal.
type PPIDScope struct {
	GroupPID int32
	InitTime monotime.SystemTime
}

func (TTYScope) isRecordScope()  {}
func (PPIDScope) isRecordScope() {}

func (s TTYScope) encode(w io.Writer) error {
	var buf [13]byte
	buf[0] = scopeTagTTY
	binary.LittleEndian.PutUint64(buf[1:9], s.Device)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(s.SessionPID))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	return s.InitTime.Encode(w)
}

func (s PPIDScope) encode(w io.Writer) error {
	var buf [5]byte
	buf[0] = scopeTagPPID
	binary.LittleEndian.PutUint32(buf[1:5], uint32(s.GroupPID))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	return s.InitTime.Encode(w)
}

func decodeScope(r io.Reader) (RecordScope, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch tag[0] {
	case scopeTagTTY:
		var buf [12]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		initTime, err := monotime.Decode(r)
		if err != nil {
			return nil, err
		}
		return TTYScope{
			Device:     binary.LittleEndian.Uint64(buf[0:8]),
			SessionPID: int32(binary.LittleEndian.Uint32(buf[8:12])),
			InitTime:   initTime,
		}, nil
	case scopeTagPPID:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		initTime, err := monotime.Decode(r)
		if err != nil {
			return nil, err
		}
		return PPIDScope{
			GroupPID: int32(binary.LittleEndian.Uint32(buf[0:4])),
			InitTime: initTime,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidScopeTag, tag[0])
	}
}

func writeBool(w io.Writer, b bool) error {
	v := boolFalse
	if b {
		v = boolTrue
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	switch buf[0] {
	case boolTrue:
		return true, nil
	case boolFalse:
		return false, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrInvalidBoolean, buf[0])
	}
}

// SessionRecord is one entry in the session record file.
type SessionRecord struct {
	// Scope identifies the terminal or process group session the record
	// belongs to.
	Scope RecordScope
	// AuthUser is the user id that was authenticated against (the target of
	// the escalation, not necessarily the invoking user).
	AuthUser uint32
	// Timestamp is the time of the last successful authentication or
	// refresh, taken from the suspend-aware monotonic clock.
	Timestamp monotime.SystemTime
	// Enabled marks the record as live. Disabled records act as if they do
	// not exist, but their storage slot is reused when a record for the same
	// scope and auth user is recreated.
	Enabled bool
}

func (r SessionRecord) encode(w io.Writer) error {
	if err := r.Scope.encode(w); err != nil {
		return err
	}
	var uid [4]byte
	binary.LittleEndian.PutUint32(uid[:], r.AuthUser)
	if _, err := w.Write(uid[:]); err != nil {
		return err
	}
	if err := r.Timestamp.Encode(w); err != nil {
		return err
	}
	return writeBool(w, r.Enabled)
}

func decodeRecord(r io.Reader) (SessionRecord, error) {
	scope, err := decodeScope(r)
	if err != nil {
		return SessionRecord{}, err
	}
	var uid [4]byte
	if _, err := io.ReadFull(r, uid[:]); err != nil {
		return SessionRecord{}, err
	}
	ts, err := monotime.Decode(r)
	if err != nil {
		return SessionRecord{}, err
	}
	enabled, err := readBool(r)
	if err != nil {
		return SessionRecord{}, err
	}
	return SessionRecord{
		Scope:     scope,
		AuthUser:  binary.LittleEndian.Uint32(uid[:]),
		Timestamp: ts,
		Enabled:   enabled,
	}, nil
}

// Bytes returns the on-disk encoding of the record.
func (r SessionRecord) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordFromBytes decodes a record from data. The buffer must be consumed
// exactly; trailing bytes after a successful decode are an error.
func RecordFromBytes(data []byte) (SessionRecord, error) {
	r := bytes.NewReader(data)
	record, err := decodeRecord(r)
	if err != nil {
		return SessionRecord{}, err
	}
	if r.Len() != 0 {
		return SessionRecord{}, ErrTrailingBytes
	}
	return record, nil
}

// Matches reports whether the record is for the given scope and auth user.
// Scope equality is structural on all fields.
func (r SessionRecord) Matches(scope RecordScope, authUser uint32) bool {
	return r.Scope == scope && r.AuthUser == authUser
}

// WrittenBetween reports whether the record timestamp lies in the inclusive
// range [early, later]. It is false whenever early is after later, regardless
// of the timestamp.
func (r SessionRecord) WrittenBetween(early, later monotime.SystemTime) bool {
	return !early.After(later) && !r.Timestamp.Before(early) && !r.Timestamp.After(later)
}
