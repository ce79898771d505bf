package geo

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	EarthRadiusM = 6371000.0 // Mean Earth radius (m)
	MetersPerNM  = 1852.0    // Meters per nautical mile
)

// NormalizeAngle normalizes an angle in degrees to the range [0, 360)
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// ShortestArc returns the signed angular difference from -> to in degrees,
// always taking the shorter way around the compass. The result is in
// the range (-180, 180].
func ShortestArc(from, to float64) float64 {
	diff := NormalizeAngle(to) - NormalizeAngle(from)
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	return diff
}

// Haversine calculates the great-circle distance in meters between two
// points given in decimal degrees
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// MetersToNM converts meters to nautical miles
func MetersToNM(meters float64) float64 {
	return meters / MetersPerNM
}

// MagneticVariation calculates the magnetic declination for a given position
// and time. Returns declination in degrees (+East, -West).
func MagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	// Convert altitude to meters for WMM
	altM := altFt * 0.3048

	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D()
}

// TrueToMagnetic converts a true track to a magnetic track using the
// declination at the given position
func TrueToMagnetic(trueTrack, lat, lon, altFt float64, date time.Time) float64 {
	variation := MagneticVariation(lat, lon, altFt, date)
	return NormalizeAngle(trueTrack - variation)
}
