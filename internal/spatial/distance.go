package spatial

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used by every spatial matcher.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between two
// points given in degrees. Latitudes are clamped to [-90, 90] and longitudes
// wrapped into [-180, 180] so the result is never NaN.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(clampLat(lat1), wrapLon(lon1))
	p2 := s2.LatLngFromDegrees(clampLat(lat2), wrapLon(lon2))
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// ValidCoordinate reports whether lat/lon are finite and inside WGS84 bounds.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return math.Abs(lat) <= 90 && math.Abs(lon) <= 180
}

func clampLat(lat float64) float64 {
	if math.IsNaN(lat) {
		return 0
	}
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
