package grid

import "testing"

func TestResourceCountTracksWrites(t *testing.T) {
	g := New(4)
	if !g.AddResource(Coord{1, 1}) {
		t.Fatalf("add on empty cell failed")
	}
	if g.AddResource(Coord{1, 1}) {
		t.Fatalf("add on resource cell should be a no-op")
	}
	g.Set(Coord{2, 2}, AgentCell(7, 'R'))
	if g.AddResource(Coord{2, 2}) {
		t.Fatalf("add on agent cell should be a no-op")
	}
	if g.AddResource(Coord{-1, 0}) {
		t.Fatalf("add off-grid should be a no-op")
	}
	g.Set(Coord{3, 3}, ResourceCell())
	if got := g.ResourceCount(); got != 2 {
		t.Fatalf("count=%d want 2", got)
	}
	// Overwriting a resource with an agent drops the count.
	g.Set(Coord{3, 3}, AgentCell(8, 'N'))
	if !g.RemoveResource(Coord{1, 1}) {
		t.Fatalf("remove failed")
	}
	if g.RemoveResource(Coord{1, 1}) {
		t.Fatalf("second remove should fail")
	}
	if got, scan := g.ResourceCount(), g.CountKind(Resource); got != 0 || scan != 0 {
		t.Fatalf("count=%d scan=%d want 0", got, scan)
	}
	if g.Len() != 16 {
		t.Fatalf("len=%d", g.Len())
	}
}

func TestClampAndStep(t *testing.T) {
	g := New(10)
	if got := g.Step(Coord{0, 5}, West); got != (Coord{0, 5}) {
		t.Fatalf("west at edge: %v", got)
	}
	if got := g.Step(Coord{9, 9}, SouthEast); got != (Coord{9, 9}) {
		t.Fatalf("se at corner: %v", got)
	}
	if got := g.Step(Coord{5, 5}, North); got != (Coord{5, 4}) {
		t.Fatalf("north: %v", got)
	}
	if got := g.Clamp(Coord{-3, 42}); got != (Coord{0, 9}) {
		t.Fatalf("clamp: %v", got)
	}
	if c := g.Get(Coord{10, 0}); c.Kind != Wall {
		t.Fatalf("off-grid get should be wall, got %v", c.Kind)
	}
}

func TestDirectionRotation(t *testing.T) {
	d := North
	for i := 0; i < 8; i++ {
		if d != Directions[i] {
			t.Fatalf("step %d: got %v want %v", i, d, Directions[i])
		}
		d = d.Rotate45()
	}
	if d != North {
		t.Fatalf("full turn ended at %v", d)
	}
	if North.Right90() != East || North.Left90() != West || East.Opposite() != West {
		t.Fatalf("turns broken")
	}
	if p, err := ParseDirection("SW"); err != nil || p != SouthWest {
		t.Fatalf("parse: %v %v", p, err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := New(3)
	g.AddResource(Coord{0, 0})
	c := g.Clone()
	g.RemoveResource(Coord{0, 0})
	if c.ResourceCount() != 1 || !c.Get(Coord{0, 0}).IsResource() {
		t.Fatalf("clone changed with source")
	}
	if g.Digest() == c.Digest() {
		t.Fatalf("digests should differ")
	}
}

func TestCellsRasterOrder(t *testing.T) {
	g := New(3)
	g.AddResource(Coord{2, 0})
	g.AddResource(Coord{0, 1})
	g.AddResource(Coord{1, 0})
	got := g.ResourceCoords()
	want := []Coord{{1, 0}, {2, 0}, {0, 1}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestLook(t *testing.T) {
	g := New(5)
	g.AddResource(Coord{2, 0})
	g.Set(Coord{3, 1}, AgentCell(4, 'L'))
	v := g.Look(Coord{2, 1}, North, 3)
	if !v.Front().IsResource() {
		t.Fatalf("front=%v", v.Front().Kind)
	}
	if !v.Toward(East).HoldsAgent(4) {
		t.Fatalf("east=%+v", v.Toward(East))
	}
	// resource then wall
	if len(v.Ahead) != 2 || !v.Ahead[0].IsResource() || v.Ahead[1].Kind != Wall {
		t.Fatalf("ahead=%+v", v.Ahead)
	}
	corner := g.Look(Coord{0, 0}, West, 4)
	for _, d := range []Direction{North, NorthWest, West, SouthWest, NorthEast} {
		if corner.Toward(d).Kind != Wall {
			t.Fatalf("%v should be wall", d)
		}
	}
}
