package models

import "math"

// Coordinates represents a geographical point defined by its latitude and longitude.
// Bounds are expected but not enforced: latitude in [-90, 90], longitude in [-180, 180].
type Coordinates struct {
	Latitude  float64 `json:"lat"` // Latitude of the geographical point.
	Longitude float64 `json:"lng"` // Longitude of the geographical point.
}

// Round6 returns the point rounded to six decimal places, the precision map taps are reported with.
func (c Coordinates) Round6() Coordinates {
	const scale = 1e6
	return Coordinates{
		Latitude:  math.Round(c.Latitude*scale) / scale,
		Longitude: math.Round(c.Longitude*scale) / scale,
	}
}

// DistanceTo returns the great-circle distance to other in meters (haversine formula).
func (c Coordinates) DistanceTo(other Coordinates) float64 {
	const earthRadius = 6371000.0 // meters

	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	deltaLat := (other.Latitude - c.Latitude) * math.Pi / 180
	deltaLng := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
