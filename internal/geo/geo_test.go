package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CES-Eats-2026/cesfront/internal/geo"
)

var lvcc = geo.Location{Latitude: 36.1215699, Longitude: -115.1651093}

func TestDistanceToTimeMinutes(t *testing.T) {
	assert.Equal(t, 0, geo.DistanceToTimeMinutes(0))
	assert.Equal(t, 1, geo.DistanceToTimeMinutes(100))
	assert.Equal(t, 12, geo.DistanceToTimeMinutes(1000))
	assert.Equal(t, 24, geo.DistanceToTimeMinutes(2000))
}

func TestTimeToDistanceMeters(t *testing.T) {
	assert.Equal(t, 0, geo.TimeToDistanceMeters(0))
	assert.Equal(t, 1000, geo.TimeToDistanceMeters(12))
	assert.Equal(t, 2000, geo.TimeToDistanceMeters(24))
	assert.Equal(t, 83, geo.TimeToDistanceMeters(1))
}

func TestConversion_RoundTrip(t *testing.T) {
	// One minute of walking is ~83 m, so meters survive the trip to within half of that.
	for m := 0; m <= 5000; m += 37 {
		back := geo.TimeToDistanceMeters(float64(geo.DistanceToTimeMinutes(float64(m))))
		assert.LessOrEqual(t, math.Abs(float64(back-m)), 42.0, "meters=%d", m)
	}

	for minutes := 0; minutes <= 120; minutes++ {
		back := geo.DistanceToTimeMinutes(float64(geo.TimeToDistanceMeters(float64(minutes))))
		assert.Equal(t, minutes, back)
	}
}

func TestRadiusKm_Clamped(t *testing.T) {
	for _, minutes := range []int{0, 1, 12, 24, 9999} {
		r := geo.RadiusKm(minutes)
		assert.GreaterOrEqual(t, r, geo.MinRadiusKm, "minutes=%d", minutes)
		assert.LessOrEqual(t, r, geo.MaxRadiusKm, "minutes=%d", minutes)
	}

	assert.Equal(t, 0.1, geo.RadiusKm(0))
	assert.Equal(t, 1.0, geo.RadiusKm(12))
	assert.Equal(t, 2.0, geo.RadiusKm(24))
	assert.Equal(t, 2.0, geo.RadiusKm(9999))
}

func TestClampDistanceMeters(t *testing.T) {
	assert.Equal(t, 100.0, geo.ClampDistanceMeters(10))
	assert.Equal(t, 750.0, geo.ClampDistanceMeters(750))
	assert.Equal(t, 2000.0, geo.ClampDistanceMeters(5000))
}

func TestHaversineKm(t *testing.T) {
	bellagio := geo.Location{Latitude: 36.1126, Longitude: -115.1767}

	d := geo.HaversineKm(lvcc, bellagio)
	assert.InDelta(t, 1.45, d, 0.05)
	assert.Equal(t, d, geo.HaversineKm(bellagio, lvcc), "distance must be symmetric")
	assert.Equal(t, 0.0, geo.HaversineKm(lvcc, lvcc))
}

func TestHaversineKm_Antipodal(t *testing.T) {
	a := geo.Location{Latitude: 0, Longitude: 0}
	b := geo.Location{Latitude: 0, Longitude: 180}
	assert.InDelta(t, math.Pi*6371, geo.HaversineKm(a, b), 1e-6)
}

func TestResolveOrigin(t *testing.T) {
	region := geo.BoundingBox{MinLat: 36.0, MaxLat: 36.3, MinLng: -115.3, MaxLng: -115.0}
	inside := geo.Location{Latitude: 36.1, Longitude: -115.2}
	outside := geo.Location{Latitude: 37.77, Longitude: -122.41}

	assert.Equal(t, inside, geo.ResolveOrigin(&inside, region, lvcc))
	assert.Equal(t, lvcc, geo.ResolveOrigin(&outside, region, lvcc))
	assert.Equal(t, lvcc, geo.ResolveOrigin(nil, region, lvcc))
}

func TestDirectionsURL(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&destination=36.1215699,-115.1651093",
		geo.DirectionsURL(lvcc.Latitude, lvcc.Longitude),
	)
}
