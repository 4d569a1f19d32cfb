package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"iter"
)

type Kind uint8

const (
	Empty Kind = iota
	Resource
	Agent
	// Wall is never stored; it marks off-grid positions inside a Vision.
	Wall
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Resource:
		return "resource"
	case Agent:
		return "agent"
	case Wall:
		return "wall"
	default:
		return "unknown"
	}
}

type Cell struct {
	Kind  Kind
	ID    uint64 // agent id when Kind == Agent
	Sigil rune   // cosmetic tag of the occupying agent
}

func EmptyCell() Cell    { return Cell{} }
func ResourceCell() Cell { return Cell{Kind: Resource} }
func WallCell() Cell     { return Cell{Kind: Wall} }

func AgentCell(id uint64, sigil rune) Cell {
	return Cell{Kind: Agent, ID: id, Sigil: sigil}
}

func (c Cell) IsEmpty() bool    { return c.Kind == Empty }
func (c Cell) IsResource() bool { return c.Kind == Resource }
func (c Cell) IsAgent() bool    { return c.Kind == Agent }

// HoldsAgent reports whether the cell is occupied by agent id.
func (c Cell) HoldsAgent(id uint64) bool { return c.Kind == Agent && c.ID == id }

// Grid is a dense size*size array of cells. The resource count is kept
// in step with every write so ResourceCount never scans.
type Grid struct {
	size      int
	cells     []Cell
	resources int
}

func New(size int) Grid {
	if size < 1 {
		size = 1
	}
	return Grid{size: size, cells: make([]Cell, size*size)}
}

func (g *Grid) Size() int          { return g.size }
func (g *Grid) Len() int           { return len(g.cells) }
func (g *Grid) ResourceCount() int { return g.resources }

func (g *Grid) index(c Coord) int {
	// x fastest, then y
	return c.X + c.Y*g.size
}

func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.size && c.Y < g.size
}

// Clamp pins c to [0, size-1] on both axes.
func (g *Grid) Clamp(c Coord) Coord {
	return Coord{X: min(max(c.X, 0), g.size-1), Y: min(max(c.Y, 0), g.size-1)}
}

// Step returns the neighbour of c in d, clamped to the grid.
func (g *Grid) Step(c Coord, d Direction) Coord {
	return g.Clamp(c.Add(d))
}

// Get returns the cell at c, or a Wall cell when c is off-grid.
func (g *Grid) Get(c Coord) Cell {
	if !g.InBounds(c) {
		return WallCell()
	}
	return g.cells[g.index(c)]
}

// Set overwrites the cell at c. Off-grid writes and Wall values are ignored.
func (g *Grid) Set(c Coord, v Cell) {
	if !g.InBounds(c) || v.Kind == Wall {
		return
	}
	i := g.index(c)
	old := g.cells[i]
	if old.Kind == Resource {
		g.resources--
	}
	if v.Kind == Resource {
		g.resources++
	}
	g.cells[i] = v
}

// AddResource turns an Empty cell into Resource. It reports false and
// leaves the grid unchanged when c is off-grid or not Empty.
func (g *Grid) AddResource(c Coord) bool {
	if !g.InBounds(c) {
		return false
	}
	i := g.index(c)
	if g.cells[i].Kind != Empty {
		return false
	}
	g.cells[i] = ResourceCell()
	g.resources++
	return true
}

// RemoveResource turns a Resource cell back into Empty.
func (g *Grid) RemoveResource(c Coord) bool {
	if !g.InBounds(c) {
		return false
	}
	i := g.index(c)
	if g.cells[i].Kind != Resource {
		return false
	}
	g.cells[i] = EmptyCell()
	g.resources--
	return true
}

// Clone returns a deep copy sharing no memory with g.
func (g *Grid) Clone() Grid {
	out := Grid{size: g.size, resources: g.resources, cells: make([]Cell, len(g.cells))}
	copy(out.cells, g.cells)
	return out
}

// Cells yields every cell in raster order (y outer, x inner).
func (g *Grid) Cells() iter.Seq2[Coord, Cell] {
	return func(yield func(Coord, Cell) bool) {
		for i, v := range g.cells {
			if !yield(Coord{X: i % g.size, Y: i / g.size}, v) {
				return
			}
		}
	}
}

// ResourceCoords lists Resource positions in raster order.
func (g *Grid) ResourceCoords() []Coord {
	out := make([]Coord, 0, g.resources)
	for c, v := range g.Cells() {
		if v.Kind == Resource {
			out = append(out, c)
		}
	}
	return out
}

// CountKind scans the grid. Meant for invariant checks, not hot paths.
func (g *Grid) CountKind(k Kind) int {
	n := 0
	for _, v := range g.cells {
		if v.Kind == k {
			n++
		}
	}
	return n
}

// Digest hashes cell kinds and agent ids. Sigils are cosmetic and excluded.
func (g *Grid) Digest() [32]byte {
	h := sha256.New()
	var tmp [9]byte
	binary.LittleEndian.PutUint64(tmp[:8], uint64(g.size))
	h.Write(tmp[:8])
	for _, v := range g.cells {
		tmp[0] = byte(v.Kind)
		binary.LittleEndian.PutUint64(tmp[1:], v.ID)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
