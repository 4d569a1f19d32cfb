package grid

import "fmt"

type Coord struct {
	X int
	Y int
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Add returns c moved one step in d without any bounds handling.
func (c Coord) Add(d Direction) Coord {
	dx, dy := d.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}
