// Package indexdb keeps a queryable SQLite index of runs, logged ticks,
// commands, snapshots and archives. The JSONL logs and snapshot files stay
// the source of truth; the index may drop rows under backpressure.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/tuning"
	"eyes.sim/internal/sim/world"
)

const schemaVersion = "1"

const (
	queueSize   = 16384
	batchMaxOps = 2000
	batchMaxAge = 2 * time.Second
)

type stmtID int

const (
	stmtTick stmtID = iota
	stmtAudit
	stmtRun
	stmtSnapshot
	stmtArchive
	numStmts
)

var stmtSQL = [numStmts]string{
	stmtTick:     `INSERT OR REPLACE INTO ticks(run_id,tick,agents,resources,births,deaths,digest,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
	stmtAudit:    `INSERT OR REPLACE INTO audits(run_id,tick,seq,command,detail) VALUES(?,?,?,?,?)`,
	stmtRun:      `INSERT OR REPLACE INTO runs(run_id,restart,seed,started_at,restored) VALUES(?,?,?,?,?)`,
	stmtSnapshot: `INSERT OR REPLACE INTO snapshots(run_id,tick,path,agents,resources,final) VALUES(?,?,?,?,?,?)`,
	stmtArchive:  `INSERT OR REPLACE INTO archives(run_id,restart,end_tick,path,recorded_at) VALUES(?,?,?,?,?)`,
}

// req is one row bound for stmt. Audit rows get their seq column filled
// in by the writer goroutine.
type req struct {
	stmt stmtID
	args []any
}

type SQLiteIndex struct {
	db    *sql.DB
	stmts [numStmts]*sql.Stmt

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed    atomic.Bool
	drops     [numStmts]atomic.Uint64
	writeErrs atomic.Uint64
}

// Stats reports queue pressure.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal     uint64
	DropAuditTotal    uint64
	DropRunTotal      uint64
	DropSnapshotTotal uint64
	DropArchiveTotal  uint64

	WriteErrorTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection serializes ours.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteIndex{db: db, ch: make(chan req, queueSize)}
	if err := s.init(); err != nil {
		_ = s.closeStmts()
		_ = db.Close()
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func (s *SQLiteIndex) init() error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("indexdb: %s: %w", p, err)
		}
	}
	if err := initSchema(s.db); err != nil {
		return fmt.Errorf("indexdb: schema: %w", err)
	}
	for id, q := range stmtSQL {
		st, err := s.db.Prepare(q)
		if err != nil {
			return fmt.Errorf("indexdb: prepare: %w", err)
		}
		s.stmts[id] = st
	}
	return nil
}

func (s *SQLiteIndex) closeStmts() error {
	var errs []error
	for _, st := range s.stmts {
		if st != nil {
			errs = append(errs, st.Close())
		}
	}
	return errors.Join(errs...)
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			restart INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			restored INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			births INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			command TEXT NOT NULL,
			detail TEXT,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			agents INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			final INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			run_id TEXT PRIMARY KEY,
			restart INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_archives_restart ON archives(restart);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = errors.Join(s.closeStmts(), s.db.Close())
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.drops[stmtTick].Load(),
		DropAuditTotal:    s.drops[stmtAudit].Load(),
		DropRunTotal:      s.drops[stmtRun].Load(),
		DropSnapshotTotal: s.drops[stmtSnapshot].Load(),
		DropArchiveTotal:  s.drops[stmtArchive].Load(),
		WriteErrorTotal:   s.writeErrs.Load(),
	}
}

// enqueue never blocks the caller; a full queue drops the row.
func (s *SQLiteIndex) enqueue(id stmtID, args ...any) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{stmt: id, args: args}:
	default:
		s.drops[id].Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(e world.TickLogEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.enqueue(stmtTick, e.RunID, int64(e.Tick), e.Agents, e.Resources, e.Births, e.Deaths, e.Digest, string(raw))
	return nil
}

func (s *SQLiteIndex) WriteAudit(e world.AuditEntry) error {
	s.enqueue(stmtAudit, e.RunID, int64(e.Tick), 0, e.Command, e.Detail)
	return nil
}

func (s *SQLiteIndex) RecordRun(info world.RunInfo) {
	s.enqueue(stmtRun, info.RunID, int64(info.Restart), info.Seed, info.StartedAt.UTC().Format(time.RFC3339Nano), info.Restored)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	h := snap.Header
	s.enqueue(stmtSnapshot, h.RunID, int64(h.Tick), path, len(snap.Agents), len(snap.Resources), h.Final)
}

func (s *SQLiteIndex) RecordArchive(runID string, restart, endTick uint64, archivedSnapshotPath string) {
	if runID == "" || archivedSnapshotPath == "" {
		return
	}
	s.enqueue(stmtArchive, runID, int64(restart), int64(endTick), archivedSnapshotPath, time.Now().UTC().Format(time.RFC3339Nano))
}

// UpsertTuning stores the applied tuning and its digest in meta.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", schemaVersion},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"tuning_updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for _, kv := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// batch groups queued rows into one transaction, committed after
// batchMaxOps rows, once it is batchMaxAge old, or when the queue drains.
type batch struct {
	db    *sql.DB
	stmts *[numStmts]*sql.Stmt
	tx    *sql.Tx
	ops   int
	begun time.Time
}

func (b *batch) exec(id stmtID, args []any) error {
	if b.tx == nil {
		tx, err := b.db.BeginTx(context.Background(), nil)
		if err != nil {
			return err
		}
		b.tx, b.ops, b.begun = tx, 0, time.Now()
	}
	if _, err := b.tx.Stmt(b.stmts[id]).Exec(args...); err != nil {
		_ = b.tx.Rollback()
		b.tx = nil
		return err
	}
	b.ops++
	if b.ops >= batchMaxOps || time.Since(b.begun) >= batchMaxAge {
		return b.commit()
	}
	return nil
}

func (b *batch) commit() error {
	if b.tx == nil {
		return nil
	}
	err := b.tx.Commit()
	b.tx = nil
	return err
}

// auditSeq numbers commands applied at the same tick of a run.
type auditSeq struct {
	runID string
	tick  int64
	next  int
}

func (a *auditSeq) take(runID string, tick int64) int {
	if runID != a.runID || tick != a.tick {
		a.runID, a.tick, a.next = runID, tick, 0
	}
	n := a.next
	a.next++
	return n
}

func (s *SQLiteIndex) loop() {
	b := batch{db: s.db, stmts: &s.stmts}
	var seq auditSeq
	for r := range s.ch {
		if r.stmt == stmtAudit {
			r.args[2] = seq.take(r.args[0].(string), r.args[1].(int64))
		}
		if err := b.exec(r.stmt, r.args); err != nil {
			s.writeErrs.Add(1)
		}
		// Release the connection once the queue is drained.
		if len(s.ch) == 0 {
			if err := b.commit(); err != nil {
				s.writeErrs.Add(1)
			}
		}
	}
	if err := b.commit(); err != nil {
		s.writeErrs.Add(1)
	}
}
