package grid

// Vision is the result of a Look. Around holds the eight neighbours indexed
// by Direction; Ahead holds the cells along Facing, nearest first, ending at
// the first Wall.
type Vision struct {
	From   Coord
	Facing Direction
	Around [8]Cell
	Ahead  []Cell
}

// Front is the cell directly ahead.
func (v Vision) Front() Cell { return v.Around[v.Facing] }

func (v Vision) Toward(d Direction) Cell { return v.Around[d%8] }

// Look builds the view from c facing d. reach bounds the length of Ahead.
func (g *Grid) Look(c Coord, d Direction, reach int) Vision {
	v := Vision{From: c, Facing: d}
	for _, dir := range Directions {
		v.Around[dir] = g.Get(c.Add(dir))
	}
	if reach < 1 {
		reach = 1
	}
	v.Ahead = make([]Cell, 0, reach)
	p := c
	for i := 0; i < reach; i++ {
		p = p.Add(d)
		cell := g.Get(p)
		v.Ahead = append(v.Ahead, cell)
		if cell.Kind == Wall {
			break
		}
	}
	return v
}
