package game

import "strings"

// Direction is an 8-way compass code as carried on the wire.
type Direction string

const (
	North     Direction = "N"
	NorthEast Direction = "NE"
	East      Direction = "E"
	SouthEast Direction = "SE"
	South     Direction = "S"
	SouthWest Direction = "SW"
	West      Direction = "W"
	NorthWest Direction = "NW"
)

// Directions lists the compass in clockwise order from north. BFS neighbor
// expansion follows this order, which makes pathfinding deterministic.
var Directions = [8]Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var directionDelta = map[Direction][2]int{
	North:     {0, -1},
	NorthEast: {1, -1},
	East:      {1, 0},
	SouthEast: {1, 1},
	South:     {0, 1},
	SouthWest: {-1, 1},
	West:      {-1, 0},
	NorthWest: {-1, -1},
}

var directionOpposite = map[Direction]Direction{
	North:     South,
	NorthEast: SouthWest,
	East:      West,
	SouthEast: NorthWest,
	South:     North,
	SouthWest: NorthEast,
	West:      East,
	NorthWest: SouthEast,
}

var directionReadable = map[Direction]string{
	North:     "north",
	NorthEast: "northeast",
	East:      "east",
	SouthEast: "southeast",
	South:     "south",
	SouthWest: "southwest",
	West:      "west",
	NorthWest: "northwest",
}

// ParseDirection normalizes a wire direction code. Up/down are recognized
// but reported as unsupported so the caller can reject them distinctly.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := directionDelta[d]; ok {
		return d, true
	}
	return "", false
}

// IsVertical reports whether the raw input names the unimplemented up/down axis.
func IsVertical(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U", "UP", "D", "DOWN":
		return true
	}
	return false
}

// Delta returns the grid unit vector for the direction.
func (d Direction) Delta() (dx, dy int) {
	v := directionDelta[d]
	return v[0], v[1]
}

// Opposite returns the reverse compass direction.
func (d Direction) Opposite() Direction {
	return directionOpposite[d]
}

// Readable returns the prose name ("north", "southwest").
func (d Direction) Readable() string {
	if r, ok := directionReadable[d]; ok {
		return r
	}
	return strings.ToLower(string(d))
}

// DirectionBetween returns the compass direction from (x1,y1) to an adjacent
// (x2,y2), or false when the tiles are not 8-adjacent.
func DirectionBetween(x1, y1, x2, y2 int) (Direction, bool) {
	dx, dy := x2-x1, y2-y1
	if dx < -1 || dx > 1 || dy < -1 || dy > 1 || (dx == 0 && dy == 0) {
		return "", false
	}
	for d, v := range directionDelta {
		if v[0] == dx && v[1] == dy {
			return d, true
		}
	}
	return "", false
}
