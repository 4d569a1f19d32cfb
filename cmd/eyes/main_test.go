package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eyes.sim/internal/persistence/archive"
	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/grid"
	"eyes.sim/internal/sim/tuning"
	"eyes.sim/internal/sim/world"
)

type fixedMetrics world.Metrics

func (f fixedMetrics) Metrics() world.Metrics { return world.Metrics(f) }

type fixedCount uint64

func (c fixedCount) Written() uint64 { return uint64(c) }

func TestMetricsEndpoint(t *testing.T) {
	m := world.Metrics{
		RunID:      "r1",
		Tick:       77,
		TotalTicks: 1077,
		Agents:     12,
		Restarts:   2,
		Speed:      4,
		GrowthRate: 60,
		Paused:     true,
		Totals:     world.Totals{Births: 3, RejectedOccupied: 9},
		MaxStep:    1500 * time.Microsecond,
	}
	mux := newMux(fixedMetrics(m), nil, nil, logStream{name: "events", log: fixedCount(42)})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`eyes_tick{run="r1"} 77`,
		`eyes_ticks_total{run="r1"} 1077`,
		`eyes_agents{run="r1"} 12`,
		`eyes_paused{run="r1"} 1`,
		`eyes_births_total{run="r1"} 3`,
		`eyes_rejected_updates_total{run="r1",reason="occupied"} 9`,
		`eyes_step_max_seconds{run="r1"} 0.001500`,
		`eyes_log_lines_total{log="events"} 42`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "eyes_observer_clients") {
		t.Fatalf("observer gauge without observer")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestWriteSnapshots_ArchivesFinal(t *testing.T) {
	dataDir := t.TempDir()
	ch := make(chan snapshot.SnapshotV1, 2)
	ch <- snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "a", Tick: 10}}
	ch <- snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "a", Tick: 25, Final: true}, Restarts: 1}
	close(ch)

	writeSnapshots(ch, dataDir, nil, log.New(io.Discard, "", 0))

	for _, tick := range []uint64{10, 25} {
		if _, err := os.Stat(snapshot.Path(filepath.Join(dataDir, "snapshots"), tick)); err != nil {
			t.Fatalf("snapshot %d: %v", tick, err)
		}
	}
	meta, err := archive.ReadMeta(archive.Dir(dataDir, 1))
	if err != nil {
		t.Fatalf("archive meta: %v", err)
	}
	if meta.RunID != "a" || meta.EndTick != 25 {
		t.Fatalf("meta=%+v", meta)
	}
	if _, err := os.Stat(archive.Dir(dataDir, 0)); !os.IsNotExist(err) {
		t.Fatalf("periodic snapshot archived: %v", err)
	}
}

func TestLatestLoader(t *testing.T) {
	dir := t.TempDir()
	load := latestLoader(dir)
	if _, err := load(context.Background()); !errors.Is(err, world.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if err := snapshot.WriteSnapshot(snapshot.Path(dir, 5), snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "z", Tick: 5}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Header.RunID != "z" || snap.Header.Tick != 5 {
		t.Fatalf("header=%+v", snap.Header)
	}

	// The run went extinct afterwards; its final snapshot is newer but is
	// not loadable.
	final := snapshot.Path(dir, 9)
	if err := snapshot.WriteSnapshot(final, snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "z", Tick: 9, Final: true}}); err != nil {
		t.Fatalf("write final: %v", err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(final, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	snap, err = load(context.Background())
	if err != nil {
		t.Fatalf("load after final: %v", err)
	}
	if snap.Header.Tick != 5 || snap.Header.Final {
		t.Fatalf("loaded header=%+v", snap.Header)
	}
}

func TestFanOut_KeepsNewestFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan world.Frame)
	ui := make(chan world.Frame, 1)
	done := make(chan struct{})
	go func() {
		fanOut(ctx, in, ui, nil)
		close(done)
	}()

	for tick := uint64(1); tick <= 3; tick++ {
		in <- world.Frame{Tick: tick, Grid: grid.New(1), Size: 1}
	}
	// The unbuffered send above returns once fanOut holds frame 3; wait
	// until it has been offered.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-ui:
			if f.Tick == 3 {
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatalf("frame 3 never arrived")
		}
	}
}

func TestUnknownStrategies(t *testing.T) {
	pop := []tuning.Population{
		{Strategy: "random", Count: 3},
		{Strategy: "neural", Count: 2},
		{Strategy: "ghost", Count: 0},
		{Strategy: "looker", Count: 1},
	}
	got := unknownStrategies(pop, behavior.Builtin())
	if len(got) != 1 || got[0] != `"neural"` {
		t.Fatalf("unknown=%v", got)
	}
	if got := unknownStrategies(tuning.Defaults().Population, behavior.Builtin()); len(got) != 0 {
		t.Fatalf("defaults unknown=%v", got)
	}
}

type failingLog struct {
	err   error
	ticks []uint64
}

func (f *failingLog) WriteTick(e world.TickLogEntry) error {
	f.ticks = append(f.ticks, e.Tick)
	return f.err
}

func (f *failingLog) WriteAudit(e world.AuditEntry) error {
	f.ticks = append(f.ticks, e.Tick)
	return f.err
}

func TestMultiLoggers_JoinErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	a, b := &failingLog{err: errDisk}, &failingLog{}

	err := multiTickLogger{a: a, b: b}.WriteTick(world.TickLogEntry{Tick: 7})
	if !errors.Is(err, errDisk) {
		t.Fatalf("tick err=%v", err)
	}
	err = multiAuditLogger{a: b, b: a}.WriteAudit(world.AuditEntry{Tick: 8})
	if !errors.Is(err, errDisk) {
		t.Fatalf("audit err=%v", err)
	}
	// Both sinks saw both entries despite the failure.
	if len(a.ticks) != 2 || len(b.ticks) != 2 {
		t.Fatalf("a=%v b=%v", a.ticks, b.ticks)
	}
	if err := (multiTickLogger{a: b}).WriteTick(world.TickLogEntry{}); err != nil {
		t.Fatalf("healthy sink err=%v", err)
	}
}
