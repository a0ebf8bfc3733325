// Package geo computes great-circle distances between coordinates.
package geo

import "math"

const EarthRadiusKm = 6371.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewPoint returns nil unless both coordinates are present.
func NewPoint(lat, lng *float64) *Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &Point{Lat: *lat, Lng: *lng}
}

// DistanceKm is the haversine distance between a and b. Coordinates are not
// range checked.
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
