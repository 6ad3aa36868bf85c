// Package geo holds the walking-distance arithmetic used to scope searches.
package geo

import (
	"fmt"
	"math"
)

const (
	earthRadiusKm = 6371.0

	// WalkingSpeedKmh is the assumed constant walking speed.
	WalkingSpeedKmh = 5.0

	MinRadiusKm = 0.1
	MaxRadiusKm = 2.0

	// Slider bounds for the distance control, in meters.
	MinDistanceMeters = 100
	MaxDistanceMeters = 2000
)

// Location is a WGS-84 coordinate in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBox is an axis-aligned lat/lng region.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Contains reports whether loc lies inside the box, edges included.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Latitude >= b.MinLat && loc.Latitude <= b.MaxLat &&
		loc.Longitude >= b.MinLng && loc.Longitude <= b.MaxLng
}

// DistanceToTimeMinutes converts a walking distance to whole minutes.
func DistanceToTimeMinutes(meters float64) int {
	return int(math.Round(meters / (WalkingSpeedKmh * 1000) * 60))
}

// TimeToDistanceMeters converts walking minutes to whole meters.
func TimeToDistanceMeters(minutes float64) int {
	return int(math.Round(minutes / 60 * WalkingSpeedKmh * 1000))
}

// RadiusKm returns the search radius for a time option, clamped to
// [MinRadiusKm, MaxRadiusKm].
func RadiusKm(timeOptionMinutes int) float64 {
	r := float64(timeOptionMinutes) / 60 * WalkingSpeedKmh
	return math.Min(math.Max(r, MinRadiusKm), MaxRadiusKm)
}

// ClampDistanceMeters bounds a slider value to the supported range.
func ClampDistanceMeters(meters float64) float64 {
	return math.Min(math.Max(meters, MinDistanceMeters), MaxDistanceMeters)
}

// HaversineKm returns the great-circle distance between a and b in kilometers.
func HaversineKm(a, b Location) float64 {
	lat1 := degToRad(a.Latitude)
	lat2 := degToRad(b.Latitude)
	dLat := degToRad(b.Latitude - a.Latitude)
	dLng := degToRad(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// ResolveOrigin picks the search anchor. A GPS fix is used only when it falls
// inside region; otherwise the fixed fallback wins.
func ResolveOrigin(gps *Location, region BoundingBox, fallback Location) Location {
	if gps != nil && region.Contains(*gps) {
		return *gps
	}
	return fallback
}

// DirectionsURL returns a Google Maps walking-directions deep link.
func DirectionsURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%v,%v", lat, lng)
}

func degToRad(d float64) float64 {
	return d * math.Pi / 180
}
