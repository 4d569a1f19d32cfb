// Package window draws frames in an ebiten window. The window itself needs
// the ebiten build tag; pixel conversion is always available.
package window

import (
	"hash/fnv"
	"image/color"

	"eyes.sim/internal/sim/grid"
)

var (
	colorEmpty    = color.RGBA{A: 255}
	colorResource = color.RGBA{R: 40, G: 170, B: 60, A: 255}
)

// agentColor picks a stable bright colour per strategy sigil.
func agentColor(sigil rune) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(sigil)))
	v := h.Sum32()
	return color.RGBA{
		R: 128 + uint8(v)%128,
		G: 128 + uint8(v>>8)%128,
		B: 128 + uint8(v>>16)%128,
		A: 255,
	}
}

// FillRGBA converts g into RGBA pixels in buf, one pixel per cell in raster
// order. buf must hold 4*g.Len() bytes.
func FillRGBA(buf []byte, g *grid.Grid) {
	i := 0
	for _, c := range g.Cells() {
		var col color.RGBA
		switch c.Kind {
		case grid.Resource:
			col = colorResource
		case grid.Agent:
			col = agentColor(c.Sigil)
		default:
			col = colorEmpty
		}
		base := i * 4
		buf[base+0] = col.R
		buf[base+1] = col.G
		buf[base+2] = col.B
		buf[base+3] = col.A
		i++
	}
}
