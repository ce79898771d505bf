package tracker

import (
	"math"

	"github.com/adsbtools/skybridge/internal/geo"
)

// easeOutCubic is the interpolation curve applied to the elapsed fraction.
// It starts fast and decelerates toward the target, which masks the
// discrete timing of network updates without a visible snap when a new
// target arrives.
func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

// lerp linearly interpolates between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngle interpolates between two compass angles along the minor arc,
// so a track moving from 350 to 10 degrees passes through 0 rather than 180
func lerpAngle(from, to, t float64) float64 {
	diff := geo.ShortestArc(from, to)
	return geo.NormalizeAngle(geo.NormalizeAngle(from) + diff*t)
}

// finiteOr returns v, or fallback when v is NaN or infinite
func finiteOr(v, fallback float64) float64 {
	if isFinite(v) {
		return v
	}
	return fallback
}

// interpolate blends previous toward target with the given eased fraction.
// Latitude and longitude are linearly interpolated, track circularly;
// altitude, ground speed and vertical rate are current scalar readouts and
// pass through from the target unsmoothed. Every output is guarded against
// non-finite results, falling back to the target value.
func interpolate(previous, target AircraftPosition, eased float64) AircraftPosition {
	out := target

	out.Lat = finiteOr(lerp(previous.Lat, target.Lat, eased), target.Lat)
	out.Lon = finiteOr(lerp(previous.Lon, target.Lon, eased), target.Lon)

	if previous.Track != nil && target.Track != nil {
		track := finiteOr(lerpAngle(*previous.Track, *target.Track, eased), *target.Track)
		out.Track = &track
	}

	return out
}
