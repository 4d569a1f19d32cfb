package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, 42)
	in := SnapshotV1{
		Header:    Header{RunID: "run-a", Tick: 42},
		Config:    ConfigV1{Size: 10, Seed: 7, Population: []PopulationV1{{Strategy: "noop", Count: 1}}},
		Restarts:  3,
		StartedAt: time.Unix(1700000000, 0).UTC(),
		Speed:     9,
		Growth:    GrowthV1{Rate: 100, Elapsed: 5, Interval: 100},
		Agents:    []AgentV1{{ID: 1, X: 2, Y: 3, Energy: 50, Strategy: "noop", Sigil: 'N'}},
		Resources: []ResourceV1{{X: 5, Y: 5}},
		Counters:  CountersV1{NextAgent: 2, Births: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Version != Version || h.RunID != "run-a" || h.Tick != 42 {
		t.Fatalf("header=%+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Restarts != 3 || out.Speed != 9 || out.Growth != in.Growth || !out.StartedAt.Equal(in.StartedAt) {
		t.Fatalf("scalar fields differ: %+v", out)
	}
	if len(out.Agents) != 1 || out.Agents[0].Sigil != 'N' || out.Agents[0].Energy != 50 {
		t.Fatalf("agents=%+v", out.Agents)
	}
	if len(out.Resources) != 1 || out.Resources[0] != (ResourceV1{X: 5, Y: 5}) {
		t.Fatalf("resources=%+v", out.Resources)
	}
}

func TestReadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); !errors.Is(err, ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{9, 120, 30} {
		if err := WriteSnapshot(Path(dir, tick), SnapshotV1{Header: Header{Tick: tick}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tick := range []uint64{9, 120, 30} {
		if err := os.Chtimes(Path(dir, tick), base, base); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	got, err := Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if filepath.Base(got) != "120.snap.zst" {
		t.Fatalf("latest=%s", got)
	}

	// A newer run restarts tick numbering; its snapshot still wins.
	later := base.Add(time.Minute)
	if err := os.Chtimes(Path(dir, 9), later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if got, _ := Latest(dir); filepath.Base(got) != "9.snap.zst" {
		t.Fatalf("latest=%s", got)
	}
	if _, err := Latest(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty dir: %v", err)
	}
}

func TestLatestResumableSkipsFinal(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, h := range []Header{
		{RunID: "a", Tick: 0},
		{RunID: "a", Tick: 1, Final: true},
	} {
		path := Path(dir, h.Tick)
		if err := WriteSnapshot(path, SnapshotV1{Header: h}); err != nil {
			t.Fatalf("write: %v", err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if got, _ := Latest(dir); filepath.Base(got) != "1.snap.zst" {
		t.Fatalf("latest=%s", got)
	}
	got, err := LatestResumable(dir)
	if err != nil {
		t.Fatalf("latest resumable: %v", err)
	}
	if filepath.Base(got) != "0.snap.zst" {
		t.Fatalf("latest resumable=%s", got)
	}

	only := t.TempDir()
	if err := WriteSnapshot(Path(only, 3), SnapshotV1{Header: Header{Tick: 3, Final: true}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LatestResumable(only); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("only final: %v", err)
	}
}
