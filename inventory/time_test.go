package inventory_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crm-inventory/inventory"
)

func TestTimestamp_EpochSecondsAcrossShapes(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	native := inventory.NativeTime(at)
	epoch := inventory.EpochRecord(at.Unix(), 0)
	absent := inventory.AbsentTime()

	assert.Equal(t, float64(at.Unix()), native.EpochSeconds(clock))
	assert.Equal(t, native.EpochSeconds(clock), epoch.EpochSeconds(clock))
	assert.Equal(t, float64(fixedNow.Unix()), absent.EpochSeconds(clock), "absent resolves to now")
	assert.True(t, inventory.NativeTime(time.Time{}).IsAbsent(), "zero time is absent")
}

func TestTimestamp_UnmarshalShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		absent  bool
		seconds float64
	}{
		{name: "rfc3339 string", input: `"2025-03-01T12:00:00Z"`, seconds: 1740830400},
		{name: "epoch record", input: `{"seconds":1740830400,"nanoseconds":500000000}`, seconds: 1740830400.5},
		{name: "bare number", input: `1740830400.5`, seconds: 1740830400.5},
		{name: "null", input: `null`, absent: true},
		{name: "garbage string", input: `"yesterday"`, absent: true},
		{name: "object without seconds", input: `{"nanos":3}`, absent: true},
		{name: "array", input: `[1,2]`, absent: true},
		{name: "boolean", input: `true`, absent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts inventory.Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.Equal(t, tt.absent, ts.IsAbsent())
			if !tt.absent {
				assert.InDelta(t, tt.seconds, ts.EpochSeconds(clock), 1e-6)
			}
		})
	}
}

func TestTimestamp_MalformedFieldDoesNotFailDocument(t *testing.T) {
	// A record with a broken createdAt still decodes; only the time is lost.
	var doc struct {
		Name      string              `json:"name"`
		CreatedAt inventory.Timestamp `json:"createdAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"name":"마커","createdAt":{"weird":[]}}`), &doc))
	assert.Equal(t, "마커", doc.Name)
	assert.True(t, doc.CreatedAt.IsAbsent())
}

func TestTimestamp_MarshalKeepsShape(t *testing.T) {
	epoch := inventory.EpochRecord(100, 7)
	body, err := json.Marshal(epoch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seconds":100,"nanoseconds":7}`, string(body))

	body, err = json.Marshal(inventory.AbsentTime())
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))

	var back inventory.Timestamp
	require.NoError(t, json.Unmarshal(body, &back))
	assert.True(t, back.IsAbsent())
}

func TestTimestamp_PartsRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)
	for _, ts := range []inventory.Timestamp{
		inventory.NativeTime(at),
		inventory.EpochRecord(42, 9),
		inventory.AbsentTime(),
	} {
		shape, sec, nanos := ts.Parts()
		got := inventory.TimestampFromParts(shape, sec, nanos)
		assert.Equal(t, ts.IsAbsent(), got.IsAbsent())
		assert.Equal(t, ts.String(), got.String())
	}
}
