package archive

import (
	"os"
	"path/filepath"
	"testing"

	"eyes.sim/internal/persistence/snapshot"
)

func TestArchiveRunSnapshot_CopiesFinalSnapshot(t *testing.T) {
	dataDir := t.TempDir()

	// Create a dummy snapshot file.
	src := filepath.Join(dataDir, "snapshots", "812.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, RunID: "r3", Tick: 812, Final: true},
		Config:   snapshot.ConfigV1{Seed: 45},
		Restarts: 3,
		Counters: snapshot.CountersV1{Births: 4, Deaths: 44},
	}

	restart, archivedPath, ok, err := ArchiveRunSnapshot(dataDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || restart != 3 {
		t.Fatalf("ok=%v restart=%d", ok, restart)
	}
	if filepath.Dir(archivedPath) != Dir(dataDir, 3) || filepath.Base(filepath.Dir(archivedPath)) != "run_003" {
		t.Fatalf("archivedPath=%s", archivedPath)
	}

	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	meta, err := ReadMeta(filepath.Dir(archivedPath))
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.RunID != "r3" || meta.EndTick != 812 || meta.Seed != 45 || meta.Deaths != 44 {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveRunSnapshot_SkipsPeriodicSnapshots(t *testing.T) {
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "r", Tick: 100}}
	_, _, ok, err := ArchiveRunSnapshot(t.TempDir(), "/nonexistent", snap)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
