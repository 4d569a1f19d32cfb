package encoding

import (
	"fmt"

	"eyes.sim/internal/sim/grid"
)

const (
	PaletteEmpty    = "empty"
	PaletteResource = "resource"
	// Agent entries are "agent:<sigil>".
	paletteAgentPrefix = "agent:"
)

// EncodeGrid flattens g in raster order into a palette and RLE cells.
// Palette ids 0 and 1 are always empty and resource; agents get one id per
// distinct sigil in order of first appearance.
func EncodeGrid(g *grid.Grid) (palette []string, cells string) {
	palette = []string{PaletteEmpty, PaletteResource}
	bySigil := map[rune]uint16{}
	ids := make([]uint16, 0, g.Len())
	for _, c := range g.Cells() {
		switch c.Kind {
		case grid.Resource:
			ids = append(ids, 1)
		case grid.Agent:
			id, ok := bySigil[c.Sigil]
			if !ok {
				id = uint16(len(palette))
				bySigil[c.Sigil] = id
				palette = append(palette, paletteAgentPrefix+string(c.Sigil))
			}
			ids = append(ids, id)
		default:
			ids = append(ids, 0)
		}
	}
	return palette, EncodeRLE(ids)
}

// DecodeGrid rebuilds a grid of the given size. Agent ids are not carried
// on the wire, so decoded agent cells have ID 0.
func DecodeGrid(size int, palette []string, cells string) (grid.Grid, error) {
	g := grid.New(size)
	ids, err := DecodeRLE(cells, size*size)
	if err != nil {
		return g, err
	}
	if len(ids) != size*size {
		return g, fmt.Errorf("decoded %d cells, want %d", len(ids), size*size)
	}
	kinds := make([]grid.Cell, len(palette))
	for i, p := range palette {
		switch {
		case p == PaletteEmpty:
			kinds[i] = grid.EmptyCell()
		case p == PaletteResource:
			kinds[i] = grid.ResourceCell()
		case len(p) > len(paletteAgentPrefix) && p[:len(paletteAgentPrefix)] == paletteAgentPrefix:
			r := []rune(p[len(paletteAgentPrefix):])
			kinds[i] = grid.AgentCell(0, r[0])
		default:
			return g, fmt.Errorf("unknown palette entry %q", p)
		}
	}
	for i, id := range ids {
		if int(id) >= len(kinds) {
			return g, fmt.Errorf("palette id %d out of range", id)
		}
		g.Set(grid.Coord{X: i % size, Y: i / size}, kinds[id])
	}
	return g, nil
}
