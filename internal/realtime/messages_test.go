package realtime

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFlexNumber tests tolerant decoding of mixed numeric encodings.
func TestFlexNumber(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want float64
	}{
		{"plain number", `35000`, 35000},
		{"float", `123.5`, 123.5},
		{"numeric string", `"270.5"`, 270.5},
		{"ground sentinel", `"ground"`, 0},
		{"empty string", `""`, 0},
		{"junk string", `"n/a"`, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var f FlexNumber
			require.NoError(t, json.Unmarshal([]byte(c.in), &f))
			assert.Equal(t, c.want, f.Float64())
		})
	}

	t.Run("rejects objects", func(t *testing.T) {
		var f FlexNumber
		assert.Error(t, json.Unmarshal([]byte(`{"v":1}`), &f))
	})

	t.Run("marshals as number", func(t *testing.T) {
		var f FlexNumber
		require.NoError(t, json.Unmarshal([]byte(`"ground"`), &f))
		out, err := json.Marshal(f)
		require.NoError(t, err)
		assert.Equal(t, `0`, string(out))
	})
}

// TestTargetConvert tests wire-to-tracker mapping.
func TestTargetConvert(t *testing.T) {
	t.Run("full entry", func(t *testing.T) {
		var target Target
		require.NoError(t, json.Unmarshal([]byte(
			`{"hex":"abc123","lat":43.5,"lon":-79.5,"alt":35000,"track":"270","gs":450,"vr":-500}`,
		), &target))

		pos := target.Convert()
		assert.Equal(t, "abc123", pos.Hex)
		assert.Equal(t, 43.5, pos.Lat)
		assert.Equal(t, -79.5, pos.Lon)
		require.NotNil(t, pos.AltBaro)
		assert.Equal(t, 35000.0, *pos.AltBaro)
		require.NotNil(t, pos.Track)
		assert.Equal(t, 270.0, *pos.Track)
	})

	t.Run("missing coordinates become NaN", func(t *testing.T) {
		var target Target
		require.NoError(t, json.Unmarshal([]byte(`{"hex":"abc123","alt":35000}`), &target))

		pos := target.Convert()
		assert.True(t, math.IsNaN(pos.Lat))
		assert.True(t, math.IsNaN(pos.Lon))
		assert.False(t, pos.Valid())
	})

	t.Run("absent readouts stay nil", func(t *testing.T) {
		var target Target
		require.NoError(t, json.Unmarshal([]byte(`{"hex":"abc123","lat":1,"lon":2}`), &target))

		pos := target.Convert()
		assert.Nil(t, pos.AltBaro)
		assert.Nil(t, pos.Track)
		assert.Nil(t, pos.GS)
		assert.Nil(t, pos.VertRate)
	})
}

// TestSnapshotEntries tests both snapshot wire shapes.
func TestSnapshotEntries(t *testing.T) {
	t.Run("array shape", func(t *testing.T) {
		var payload SnapshotPayload
		require.NoError(t, json.Unmarshal([]byte(
			`{"aircraft":[{"hex":"abc123","lat":1,"lon":2},{"hex":"def456","lat":3,"lon":4}]}`,
		), &payload))

		entries := payload.Entries()
		assert.Len(t, entries, 2)
	})

	t.Run("map shape with authoritative key", func(t *testing.T) {
		var payload SnapshotPayload
		require.NoError(t, json.Unmarshal([]byte(
			`{"positions":{"ABC123":{"lat":1,"lon":2}}}`,
		), &payload))

		entries := payload.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "ABC123", entries[0].Hex)
	})

	t.Run("entry hex preferred over map key", func(t *testing.T) {
		var payload SnapshotPayload
		require.NoError(t, json.Unmarshal([]byte(
			`{"positions":{"abc123":{"hex":"ABC123","lat":1,"lon":2}}}`,
		), &payload))

		entries := payload.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "ABC123", entries[0].Hex)
	})
}

// TestPayloadBytes tests nested-vs-inline payload resolution.
func TestPayloadBytes(t *testing.T) {
	t.Run("nested data", func(t *testing.T) {
		raw := []byte(`{"type":"positions:update","data":{"positions":[]}}`)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.JSONEq(t, `{"positions":[]}`, string(payloadBytes(raw, env)))
	})

	t.Run("inline payload", func(t *testing.T) {
		raw := []byte(`{"type":"positions:update","positions":[]}`)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, raw, payloadBytes(raw, env))
	})

	t.Run("explicit null data", func(t *testing.T) {
		raw := []byte(`{"type":"status","data":null}`)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, raw, payloadBytes(raw, env))
	})
}
