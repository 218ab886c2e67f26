package models

import "time"

// Position is a recorded point of the walked track.
type Position struct {
	ID          int64
	Coordinates Coordinates
	Source      string
	RecordedAt  time.Time
}
