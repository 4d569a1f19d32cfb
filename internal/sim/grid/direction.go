package grid

import "fmt"

// Direction is one of the eight compass headings, clockwise from North.
type Direction uint8

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// Directions lists all headings in clockwise order starting at North.
var Directions = [8]Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var dirNames = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// y grows downwards, so North is y-1.
var dirDelta = [8][2]int{
	{0, -1},
	{1, -1},
	{1, 0},
	{1, 1},
	{0, 1},
	{-1, 1},
	{-1, 0},
	{-1, -1},
}

func (d Direction) Valid() bool { return d < 8 }

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
	return dirNames[d]
}

// Delta returns the unit step for d.
func (d Direction) Delta() (dx, dy int) {
	v := dirDelta[d%8]
	return v[0], v[1]
}

// Rotate45 turns one step clockwise.
func (d Direction) Rotate45() Direction { return (d + 1) % 8 }

func (d Direction) Right90() Direction  { return (d + 2) % 8 }
func (d Direction) Left90() Direction   { return (d + 6) % 8 }
func (d Direction) Opposite() Direction { return (d + 4) % 8 }

// ParseDirection accepts the short compass names ("N", "NE", ...).
func ParseDirection(s string) (Direction, error) {
	for i, n := range dirNames {
		if n == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
