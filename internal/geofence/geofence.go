package geofence

import (
	"math"

	"attendance.service/internal/core/model"
)

// earthRadiusMeters is the mean spherical-earth radius used by the haversine
// formula.
const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates using the haversine formula on a spherical earth.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// IsWithin reports whether the sample lies inside the fence. The boundary is
// closed: a point at exactly RadiusMeters is inside. Malformed coordinates
// (NaN or out of range) are treated as outside.
func IsWithin(sample model.LocationSample, fence model.OfficeGeofence) bool {
	if !validCoordinate(sample.Latitude, sample.Longitude) ||
		!validCoordinate(fence.Latitude, fence.Longitude) {
		return false
	}
	return Distance(sample.Latitude, sample.Longitude, fence.Latitude, fence.Longitude) <= fence.RadiusMeters
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
