package geofence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance.service/internal/core/model"
)

func sampleAt(lat, lon float64) model.LocationSample {
	return model.LocationSample{Latitude: lat, Longitude: lon, CapturedAt: time.Now()}
}

func TestDistance(t *testing.T) {
	// One degree of latitude on the sphere is about 111.19 km.
	d := Distance(0, 0, 1, 0)
	assert.InDelta(t, 111194.9, d, 1.0)

	// Distance is symmetric and zero at the same point.
	assert.Equal(t, 0.0, Distance(45.5, 12.3, 45.5, 12.3))
	assert.InDelta(t, Distance(10, 20, 30, 40), Distance(30, 40, 10, 20), 1e-9)
}

func TestIsWithin(t *testing.T) {
	office := model.OfficeGeofence{Latitude: 52.5200, Longitude: 13.4050, RadiusMeters: 200}

	t.Run("point at office center is within", func(t *testing.T) {
		assert.True(t, IsWithin(sampleAt(52.5200, 13.4050), office))
	})

	t.Run("point 300m away from 200m fence is outside", func(t *testing.T) {
		// Roughly 300 m north of the office.
		point := sampleAt(52.5200+300.0/111194.9, 13.4050)
		d := Distance(point.Latitude, point.Longitude, office.Latitude, office.Longitude)
		require.Greater(t, d, 200.0)
		assert.False(t, IsWithin(point, office))
	})

	t.Run("boundary is closed", func(t *testing.T) {
		point := sampleAt(52.5200+200.0/111194.9, 13.4050)
		d := Distance(point.Latitude, point.Longitude, office.Latitude, office.Longitude)

		onBoundary := model.OfficeGeofence{Latitude: office.Latitude, Longitude: office.Longitude, RadiusMeters: d}
		assert.True(t, IsWithin(point, onBoundary), "point at exactly radius must be within")

		justInside := model.OfficeGeofence{Latitude: office.Latitude, Longitude: office.Longitude, RadiusMeters: d - 0.001}
		assert.False(t, IsWithin(point, justInside), "point past radius must be outside")
	})

	t.Run("malformed coordinates are outside", func(t *testing.T) {
		assert.False(t, IsWithin(sampleAt(math.NaN(), 13.4050), office))
		assert.False(t, IsWithin(sampleAt(52.5200, math.NaN()), office))
		assert.False(t, IsWithin(sampleAt(91.0, 13.4050), office))
		assert.False(t, IsWithin(sampleAt(52.5200, 181.0), office))
		assert.False(t, IsWithin(sampleAt(-90.5, 0), office))
	})
}
