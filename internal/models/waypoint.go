package models

// Waypoint is a user-placed route point. ID is the only key used for removal.
type Waypoint struct {
	ID       string      `json:"id"`
	Position Coordinates `json:"position"`
}

// LatLng is the autopilot's coordinate shape.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Suggestion is a destination handed to the autopilot.
type Suggestion struct {
	LatLng LatLng `json:"latlng"`
}

// NewSuggestion builds a suggestion for the given point.
func NewSuggestion(c Coordinates) Suggestion {
	return Suggestion{LatLng: LatLng{Lat: c.Latitude, Lng: c.Longitude}}
}
