// Package worldtest drives worlds through their exported API only. Layouts
// are drawn as ASCII: '.' empty, '*' resource, and any strategy sigil for an
// agent of that family.
package worldtest

import (
	"strings"
	"testing"

	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/grid"
	world "eyes.sim/internal/sim/world"
)

type Harness struct {
	T *testing.T
	W *world.World

	Strategies *behavior.Registry
}

// DefaultEnergy is given to agents drawn in a layout.
const DefaultEnergy = 1000

// NewHarness builds a square world from layout. The layout height sets the
// grid size when cfg.Size is zero.
func NewHarness(t *testing.T, cfg world.Config, layout []string) *Harness {
	t.Helper()
	if cfg.Size == 0 {
		cfg.Size = len(layout)
	}
	reg := behavior.Builtin()
	w, err := world.New(cfg, reg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	h := &Harness{T: t, W: w, Strategies: reg}

	bySigil := map[rune]string{}
	for _, name := range reg.Names() {
		s, err := reg.New(name, behavior.Params{})
		if err != nil {
			t.Fatalf("probe %s: %v", name, err)
		}
		bySigil[s.Sigil()] = name
	}

	for y, row := range layout {
		for x, ch := range row {
			c := grid.Coord{X: x, Y: y}
			switch ch {
			case '.':
			case '*':
				if !w.PlaceResource(c) {
					t.Fatalf("layout resource at %v off-grid", c)
				}
			default:
				name, ok := bySigil[ch]
				if !ok {
					t.Fatalf("layout: unknown sigil %q at %v", ch, c)
				}
				s, err := w.NewStrategy(name)
				if err != nil {
					t.Fatalf("strategy %s: %v", name, err)
				}
				w.Spawn(c, DefaultEnergy, s)
			}
		}
	}
	w.FlushSpawns()
	h.MustInvariants()
	return h
}

// Step runs n ticks, checking invariants after each.
func (h *Harness) Step(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.W.Tick()
		h.MustInvariants()
	}
}

func (h *Harness) MustInvariants() {
	h.T.Helper()
	if err := h.W.CheckInvariants(); err != nil {
		h.T.Fatalf("tick %d: %v", h.W.CurrentTick(), err)
	}
}

// Render draws the current grid in layout form.
func Render(g grid.Grid) []string {
	size := g.Size()
	rows := make([]strings.Builder, size)
	for c, cell := range g.Cells() {
		switch cell.Kind {
		case grid.Resource:
			rows[c.Y].WriteByte('*')
		case grid.Agent:
			rows[c.Y].WriteRune(cell.Sigil)
		default:
			rows[c.Y].WriteByte('.')
		}
	}
	out := make([]string, size)
	for i := range rows {
		out[i] = rows[i].String()
	}
	return out
}

func (h *Harness) Render() []string { return Render(h.W.CloneGrid()) }
