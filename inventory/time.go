package inventory

import (
	"bytes"
	"encoding/json"
	"time"
)

// =============================================================================
// TIMESTAMP - Tagged union over persisted timestamp shapes
// =============================================================================

type timestampKind uint8

const (
	tsAbsent timestampKind = iota
	tsNative
	tsEpoch
)

// Timestamp is how a movement's creation time was persisted: a native time, an
// epoch-seconds record ({seconds, nanoseconds}), or nothing at all. The zero
// value is Absent. Only EpochSeconds should be used to compare timestamps.
type Timestamp struct {
	kind    timestampKind
	native  time.Time
	seconds int64
	nanos   int64
}

func NativeTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{kind: tsNative, native: t}
}

func EpochRecord(seconds, nanos int64) Timestamp {
	return Timestamp{kind: tsEpoch, seconds: seconds, nanos: nanos}
}

func AbsentTime() Timestamp { return Timestamp{} }

func (ts Timestamp) IsAbsent() bool { return ts.kind == tsAbsent }

// EpochSeconds normalizes the timestamp to epoch seconds. Absent values
// resolve to now(), so untimestamped records sort as "now" and ties are
// expected; callers must use a stable sort.
func (ts Timestamp) EpochSeconds(now Clock) float64 {
	switch ts.kind {
	case tsNative:
		return float64(ts.native.UnixNano()) / 1e9
	case tsEpoch:
		return float64(ts.seconds) + float64(ts.nanos)/1e9
	}
	if now == nil {
		now = time.Now
	}
	return float64(now().UnixNano()) / 1e9
}

// Time returns the timestamp as a time.Time and whether one was present.
func (ts Timestamp) Time() (time.Time, bool) {
	switch ts.kind {
	case tsNative:
		return ts.native, true
	case tsEpoch:
		return time.Unix(ts.seconds, ts.nanos).UTC(), true
	}
	return time.Time{}, false
}

func (ts Timestamp) String() string {
	t, ok := ts.Time()
	if !ok {
		return "absent"
	}
	return t.Format(time.RFC3339Nano)
}

// Clock returns the current wall-clock time.
type Clock func() time.Time

// =============================================================================
// JSON - The shapes documents arrive in
// =============================================================================

type epochJSON struct {
	Seconds     *int64 `json:"seconds"`
	Nanoseconds int64  `json:"nanoseconds,omitempty"`
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	switch ts.kind {
	case tsNative:
		return json.Marshal(ts.native.Format(time.RFC3339Nano))
	case tsEpoch:
		s := ts.seconds
		return json.Marshal(epochJSON{Seconds: &s, Nanoseconds: ts.nanos})
	}
	return []byte("null"), nil
}

// UnmarshalJSON never fails: unrecognized shapes decode as Absent.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*ts = NativeTime(t)
		}
	case '{':
		var e epochJSON
		if err := json.Unmarshal(data, &e); err != nil || e.Seconds == nil {
			return nil
		}
		*ts = EpochRecord(*e.Seconds, e.Nanoseconds)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return nil
		}
		sec := int64(f)
		*ts = EpochRecord(sec, int64((f-float64(sec))*1e9))
	}
	return nil
}

// =============================================================================
// STORAGE - Lossless decomposition for column-oriented stores
// =============================================================================

const (
	TimestampShapeNative = "native"
	TimestampShapeEpoch  = "epoch"
)

// Parts splits ts into a shape tag and (seconds, nanoseconds). Absent
// timestamps return an empty shape.
func (ts Timestamp) Parts() (shape string, seconds, nanos int64) {
	switch ts.kind {
	case tsNative:
		return TimestampShapeNative, ts.native.Unix(), int64(ts.native.Nanosecond())
	case tsEpoch:
		return TimestampShapeEpoch, ts.seconds, ts.nanos
	}
	return "", 0, 0
}

// TimestampFromParts is the inverse of Parts. Unknown shapes yield Absent.
func TimestampFromParts(shape string, seconds, nanos int64) Timestamp {
	switch shape {
	case TimestampShapeNative:
		return NativeTime(time.Unix(seconds, nanos).UTC())
	case TimestampShapeEpoch:
		return EpochRecord(seconds, nanos)
	}
	return Timestamp{}
}
