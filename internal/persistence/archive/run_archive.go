// Package archive keeps the final snapshot of every ended run.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"eyes.sim/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID     string `json:"run_id"`
	Restart   uint64 `json:"restart"`
	EndTick   uint64 `json:"end_tick"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	StartedAt string `json:"started_at"`
	Agents    int    `json:"agents"`
	Resources int    `json:"resources"`
	Births    uint64 `json:"births"`
	Deaths    uint64 `json:"deaths"`
}

// Dir returns the archive directory for run number restart.
func Dir(dataDir string, restart uint64) string {
	return filepath.Join(dataDir, "archives", fmt.Sprintf("run_%03d", restart))
}

// ArchiveRunSnapshot copies a run-end snapshot into `dataDir/archives/run_<NNN>/`.
// It returns (restart, archivedPath, archived=true) when snap is final.
func ArchiveRunSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (restart uint64, archivedPath string, archived bool, err error) {
	if !snap.Header.Final {
		return 0, "", false, nil
	}
	restart = snap.Restarts

	archiveDir := Dir(dataDir, restart)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := RunArchiveMeta{
		RunID:     snap.Header.RunID,
		Restart:   restart,
		EndTick:   snap.Header.Tick,
		Seed:      snap.Config.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		StartedAt: snap.StartedAt.UTC().Format(time.RFC3339Nano),
		Agents:    len(snap.Agents),
		Resources: len(snap.Resources),
		Births:    snap.Counters.Births,
		Deaths:    snap.Counters.Deaths,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return restart, dst, true, nil
}

// ReadMeta loads meta.json from an archive directory.
func ReadMeta(archiveDir string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(archiveDir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
