package tracker

import (
	"math"
	"strings"
	"time"
)

// AircraftPosition represents the best-known kinematic state of one tracked
// aircraft. Latitude and longitude are required; the remaining fields are
// optional readouts that may be absent from any given upstream payload.
// An update is a full replacement of all five kinematic fields: a field
// absent in the payload is null, not "unchanged".
type AircraftPosition struct {
	Hex      string   `json:"hex"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	AltBaro  *float64 `json:"alt,omitempty"`   // Altitude in feet
	Track    *float64 `json:"track,omitempty"` // True track in degrees, 0-360
	GS       *float64 `json:"gs,omitempty"`    // Ground speed in knots
	VertRate *float64 `json:"vr,omitempty"`    // Vertical rate in feet per minute
}

// CanonicalHex normalizes an aircraft identifier so the same physical
// aircraft always resolves to one map key regardless of source casing
func CanonicalHex(hex string) string {
	return strings.ToUpper(strings.TrimSpace(hex))
}

// Valid reports whether the position carries usable coordinates.
// Entries failing this check are dropped, never stored.
func (p *AircraftPosition) Valid() bool {
	if CanonicalHex(p.Hex) == "" {
		return false
	}
	return isFinite(p.Lat) && isFinite(p.Lon)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DisplayedPosition is the smoothed position produced by the interpolation
// engine for one aircraft
type DisplayedPosition struct {
	AircraftPosition
	Interpolated bool      `json:"interpolated"` // Whether this value was eased between updates or passed through
	LastUpdate   time.Time `json:"last_update"`  // When the current target was committed
}
