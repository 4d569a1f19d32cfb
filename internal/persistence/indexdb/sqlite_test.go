package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/tuning"
	"eyes.sim/internal/sim/world"
)

func TestSQLiteIndex_RecordsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	idx.RecordRun(world.RunInfo{RunID: "r1", Restart: 2, Seed: 44, StartedAt: time.Unix(100, 0)})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1000, RunID: "r1", Agents: 7, Resources: 90, Births: 1, Deaths: 2, Digest: "abc"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 1000, RunID: "r1", Command: "PAUSE"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 1000, RunID: "r1", Command: "RESUME"})

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, RunID: "r1", Tick: 1500, Final: true},
		Agents: []snapshot.AgentV1{{ID: 1}},
	}
	idx.RecordSnapshot("/data/snapshots/1500.snap.zst", snap)
	idx.RecordArchive("r1", 2, 1500, "/data/archives/run_002/1500.snap.zst")
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var seed, restart int64
	if err := db.QueryRow(`SELECT seed,restart FROM runs WHERE run_id='r1'`).Scan(&seed, &restart); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if seed != 44 || restart != 2 {
		t.Fatalf("run row: seed=%d restart=%d", seed, restart)
	}

	var agents int
	var digest string
	if err := db.QueryRow(`SELECT agents,digest FROM ticks WHERE run_id='r1' AND tick=1000`).Scan(&agents, &digest); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if agents != 7 || digest != "abc" {
		t.Fatalf("tick row: agents=%d digest=%q", agents, digest)
	}

	var audits int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audits WHERE run_id='r1'`).Scan(&audits); err != nil {
		t.Fatalf("audits: %v", err)
	}
	if audits != 2 {
		t.Fatalf("audits=%d", audits)
	}

	var final bool
	var snapAgents int
	if err := db.QueryRow(`SELECT agents,final FROM snapshots WHERE tick=1500`).Scan(&snapAgents, &final); err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if snapAgents != 1 || !final {
		t.Fatalf("snapshot row: agents=%d final=%v", snapAgents, final)
	}

	var archived string
	if err := db.QueryRow(`SELECT path FROM archives WHERE run_id='r1'`).Scan(&archived); err != nil {
		t.Fatalf("archives: %v", err)
	}
	if archived != "/data/archives/run_002/1500.snap.zst" {
		t.Fatalf("archive path=%q", archived)
	}

	var version string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if version != schemaVersion {
		t.Fatalf("schema_version=%q", version)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{stmt: stmtTick}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordRun(world.RunInfo{RunID: "r"})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordArchive("r", 1, 2, "/tmp/2.snap.zst")

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropRunTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.DropSnapshotTotal != 1 || st.DropArchiveTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
