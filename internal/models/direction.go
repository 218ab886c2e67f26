package models

// Direction is a movement direction symbol.
// Diagonals are named by concatenating the adjacent cardinals: ES is south-east and WN is
// north-west. The names are part of the wire format and must not be normalised.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionN    Direction = "N"
	DirectionE    Direction = "E"
	DirectionS    Direction = "S"
	DirectionW    Direction = "W"
	DirectionNE   Direction = "NE"
	DirectionES   Direction = "ES"
	DirectionSW   Direction = "SW"
	DirectionWN   Direction = "WN"
)

// Directions lists every movement direction in control-pad order.
var Directions = []Direction{
	DirectionN, DirectionE, DirectionS, DirectionW,
	DirectionNE, DirectionES, DirectionSW, DirectionWN,
}

// ParseDirection maps a direction label to a Direction. Unknown labels yield DirectionNone.
func ParseDirection(label string) Direction {
	for _, d := range Directions {
		if string(d) == label {
			return d
		}
	}
	return DirectionNone
}

// LastMove records the most recent move. Revision grows on every move, so pressing the same
// direction twice is still seen as two distinct moves by the rendering side.
type LastMove struct {
	Direction Direction `json:"direction"`
	Revision  uint64    `json:"revision"`
}
