package worldtest

import (
	"testing"
	"time"

	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/grid"
	world "eyes.sim/internal/sim/world"
)

func TestSnapshotRoundTrip_ContinuesIdentically(t *testing.T) {
	w := populated(t, 7)
	for i := 0; i < 300; i++ {
		w.Tick()
	}
	meta := world.RunMeta{RunID: "run-1", Restarts: 2, StartedAt: time.Unix(1700000000, 0).UTC(), Speed: 4}
	snap, err := w.ExportSnapshot(meta, false)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	path := snapshot.Path(t.TempDir(), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	w2, meta2, err := world.RestoreSnapshot(loaded, nil, true)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if meta2.RunID != "run-1" || meta2.Restarts != 2 || meta2.Speed != 4 || !meta2.StartedAt.Equal(meta.StartedAt) {
		t.Fatalf("meta=%+v", meta2)
	}
	if w.Digest() != w2.Digest() {
		t.Fatalf("digest differs right after restore")
	}
	for i := 0; i < 500; i++ {
		w.Tick()
		w2.Tick()
	}
	if d1, d2 := w.Digest(), w2.Digest(); d1 != d2 {
		t.Fatalf("digest mismatch at tick %d: %s vs %s", w.CurrentTick(), d1, d2)
	}
}

func TestRestoreRejectsOverlappingAgents(t *testing.T) {
	h := NewHarness(t, world.Config{GrowthRate: 1}, []string{
		"N..",
		"...",
		"..*",
	})
	snap, err := h.W.ExportSnapshot(world.RunMeta{RunID: "r"}, false)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	dup := snap.Agents[0]
	dup.ID = 99
	snap.Agents = append(snap.Agents, dup)
	if _, _, err := world.RestoreSnapshot(snap, nil, false); err == nil {
		t.Fatalf("expected error for two agents on one cell")
	}
}

func TestAgentsAndResourcesIterators(t *testing.T) {
	h := NewHarness(t, world.Config{GrowthRate: 1}, []string{
		"*..R",
		".N..",
		"....",
		"L..*",
	})
	var coords []grid.Coord
	var names []string
	for c, a := range h.W.Agents() {
		coords = append(coords, c)
		names = append(names, a.Strategy)
	}
	wantNames := []string{"random", "noop", "looker"}
	if len(names) != 3 {
		t.Fatalf("names=%v", names)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Fatalf("names=%v want %v (id order)", names, wantNames)
		}
	}
	if coords[0] != (grid.Coord{X: 3, Y: 0}) {
		t.Fatalf("coords=%v", coords)
	}
	var res []grid.Coord
	for c := range h.W.Resources() {
		res = append(res, c)
	}
	if len(res) != 2 || res[0] != (grid.Coord{}) || res[1] != (grid.Coord{X: 3, Y: 3}) {
		t.Fatalf("resources=%v", res)
	}
	if got := Render(h.W.CloneGrid()); got[3] != "L..*" {
		t.Fatalf("render=%q", got)
	}
}
