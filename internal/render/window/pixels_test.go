package window

import (
	"testing"

	"eyes.sim/internal/sim/grid"
)

func TestFillRGBA(t *testing.T) {
	g := grid.New(3)
	g.AddResource(grid.Coord{X: 1, Y: 0})
	g.Set(grid.Coord{X: 0, Y: 2}, grid.AgentCell(1, 'R'))
	g.Set(grid.Coord{X: 2, Y: 2}, grid.AgentCell(2, 'R'))

	buf := make([]byte, 4*g.Len())
	FillRGBA(buf, &g)

	px := func(x, y int) [4]byte {
		i := (y*3 + x) * 4
		return [4]byte{buf[i], buf[i+1], buf[i+2], buf[i+3]}
	}
	if p := px(0, 0); p != [4]byte{0, 0, 0, 255} {
		t.Fatalf("empty pixel=%v", p)
	}
	if p := px(1, 0); p != [4]byte{colorResource.R, colorResource.G, colorResource.B, 255} {
		t.Fatalf("resource pixel=%v", p)
	}
	if px(0, 2) != px(2, 2) {
		t.Fatalf("same sigil should share a colour")
	}
	if agentColor('R') == agentColor('L') {
		t.Fatalf("expected distinct colours per sigil")
	}
}
