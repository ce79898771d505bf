package realtime

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/adsbtools/skybridge/internal/tracker"
)

// Message types on the real-time channel
const (
	MessageTypePositionsSnapshot = "positions:snapshot"
	MessageTypeAircraftSnapshot  = "aircraft:snapshot"
	MessageTypePositionsUpdate   = "positions:update"
	MessageTypeSubscribe         = "positions:subscribe"
	MessageTypeBatch             = "batch"
	MessageTypeResponse          = "response"
	MessageTypeError             = "error"
	MessageTypeStatus            = "status"
)

// FlexNumber holds a numeric wire field that upstream sources encode
// inconsistently: a number, a numeric string, or a sentinel string such
// as "ground" for altitude
type FlexNumber struct {
	value any
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexNumber
func (f *FlexNumber) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value = str
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexNumber", data)
}

// MarshalJSON encodes the field back as a plain number
func (f FlexNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Float64())
}

// Float64 returns the value as a float64. Sentinel strings ("ground",
// empty) and unparseable values resolve to 0.
func (f *FlexNumber) Float64() float64 {
	switch v := f.value.(type) {
	case float64:
		return v
	case string:
		if v == "" || v == "ground" {
			return 0
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// Target is one aircraft entry as it appears on the wire. Latitude and
// longitude are pointers so absence is distinguishable from zero; the
// kinematic readouts use FlexNumber for tolerance of mixed encodings.
type Target struct {
	Hex      string      `json:"hex"`
	Lat      *float64    `json:"lat"`
	Lon      *float64    `json:"lon"`
	AltBaro  *FlexNumber `json:"alt"`
	Track    *FlexNumber `json:"track"`
	GS       *FlexNumber `json:"gs"`
	VertRate *FlexNumber `json:"vr"`
}

// Convert maps a wire target to a tracker position. Missing coordinates
// become NaN so the store's validation drops the entry.
func (t *Target) Convert() tracker.AircraftPosition {
	pos := tracker.AircraftPosition{
		Hex: t.Hex,
		Lat: math.NaN(),
		Lon: math.NaN(),
	}
	if t.Lat != nil {
		pos.Lat = *t.Lat
	}
	if t.Lon != nil {
		pos.Lon = *t.Lon
	}
	if t.AltBaro != nil {
		alt := t.AltBaro.Float64()
		pos.AltBaro = &alt
	}
	if t.Track != nil {
		track := t.Track.Float64()
		pos.Track = &track
	}
	if t.GS != nil {
		gs := t.GS.Float64()
		pos.GS = &gs
	}
	if t.VertRate != nil {
		vr := t.VertRate.Float64()
		pos.VertRate = &vr
	}
	return pos
}

// SnapshotPayload is a full replace-all batch. Upstream servers send one
// of two shapes: an aircraft array, or a map keyed by hex.
type SnapshotPayload struct {
	Aircraft  []Target          `json:"aircraft,omitempty"`
	Positions map[string]Target `json:"positions,omitempty"`
}

// Entries flattens either snapshot shape into position entries. For the
// map shape the key is authoritative when the entry omits its own hex.
func (p *SnapshotPayload) Entries() []tracker.AircraftPosition {
	entries := make([]tracker.AircraftPosition, 0, len(p.Aircraft)+len(p.Positions))
	for i := range p.Aircraft {
		entries = append(entries, p.Aircraft[i].Convert())
	}
	for hex, target := range p.Positions {
		pos := target.Convert()
		if pos.Hex == "" {
			pos.Hex = hex
		}
		entries = append(entries, pos)
	}
	return entries
}

// UpdatePayload is an incremental batch of updated positions plus removals
type UpdatePayload struct {
	Positions []Target `json:"positions"`
	Removed   []string `json:"removed"`
}

// Updates converts the wire positions to tracker entries
func (p *UpdatePayload) Updates() []tracker.AircraftPosition {
	updates := make([]tracker.AircraftPosition, 0, len(p.Positions))
	for i := range p.Positions {
		updates = append(updates, p.Positions[i].Convert())
	}
	return updates
}

// BatchPayload is an envelope carrying multiple logical messages in one
// frame; each is unwrapped and dispatched recursively
type BatchPayload struct {
	Messages []json.RawMessage `json:"messages"`
}

// ResponsePayload matches a correlated request by its request_id
type ResponsePayload struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// ErrorPayload is a server-side failure for a correlated request
type ErrorPayload struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// envelope is the minimal frame read from the socket before per-type
// payload decoding. Some senders nest the payload under "data", others
// inline it; payloadBytes resolves whichever is present.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func payloadBytes(raw []byte, env envelope) []byte {
	if len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return raw
}
