package main

import (
	"errors"
	"path/filepath"

	"eyes.sim/internal/persistence/indexdb"
	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/tuning"
	"eyes.sim/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordRun(info world.RunInfo)
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordArchive(runID string, restart, endTick uint64, archivedSnapshotPath string)
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "eyes.sqlite"))
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func indexTickLogger(idx runtimeIndex) world.TickLogger {
	if idx == nil {
		return nil
	}
	return idx
}

func indexAuditLogger(idx runtimeIndex) world.AuditLogger {
	if idx == nil {
		return nil
	}
	return idx
}

// multiTickLogger writes to both sinks; a failure in one does not skip
// the other.
type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteTick(entry)
	}
	if m.b != nil {
		errB = m.b.WriteTick(entry)
	}
	return errors.Join(errA, errB)
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		errB = m.b.WriteAudit(entry)
	}
	return errors.Join(errA, errB)
}
