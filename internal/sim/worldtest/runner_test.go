package worldtest

import (
	"context"
	"testing"
	"time"

	"eyes.sim/internal/persistence/snapshot"
	world "eyes.sim/internal/sim/world"
)

type auditSink struct{ entries []world.AuditEntry }

func (a *auditSink) WriteAudit(e world.AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

func runnerConfig() world.Config {
	return world.Config{
		Size:               10,
		Seed:               5,
		ResourceCount:      5,
		Population:         []world.PopulationEntry{{Strategy: "noop", Count: 3}},
		InitialEnergyMin:   1_000_000,
		InitialEnergyMax:   1_000_000,
		ResourceEnergy:     10,
		IdleCost:           1,
		ReproductionEnergy: 1 << 40,
		GrowthRate:         50,
		Speed:              9,
	}
}

func runWithTimeout(t *testing.T, r *world.Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunner_CommandsOnePerBoundary(t *testing.T) {
	cmds := make(chan world.Command, 4)
	cmds <- world.CmdSpeedUp
	cmds <- world.CmdGrowthRateDown
	cmds <- world.CmdQuit
	frames := make(chan world.Frame, 1)
	r, err := world.NewRunner(world.RunnerConfig{World: runnerConfig(), Commands: cmds, Frames: frames})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runWithTimeout(t, r)

	m := r.Metrics()
	if m.Speed != 10 || m.GrowthRate != 49 {
		t.Fatalf("speed=%d growth=%d", m.Speed, m.GrowthRate)
	}
	// Speeds 9 and 10 both check in every 1000 ticks.
	if m.Tick != 2000 {
		t.Fatalf("quit applied at tick %d", m.Tick)
	}
	f := <-frames
	if f.RunID == "" || f.RunID != m.RunID || f.Size != 10 || f.Grid.Size() != 10 || f.Agents != m.Agents || f.Agents == 0 {
		t.Fatalf("frame=%+v", f)
	}
	if f.Speed != 10 || f.GrowthRate != 49 {
		t.Fatalf("frame speed=%d growth=%d", f.Speed, f.GrowthRate)
	}
}

func TestRunner_RestartsAfterExtinction(t *testing.T) {
	cfg := runnerConfig()
	cfg.InitialEnergyMin, cfg.InitialEnergyMax = 1, 1
	cfg.ResourceCount = 0
	cfg.Speed = 10
	snaps := make(chan snapshot.SnapshotV1, 16)
	var starts []world.RunInfo
	r, err := world.NewRunner(world.RunnerConfig{
		World:      cfg,
		Snapshots:  snaps,
		MaxTicks:   5,
		OnRunStart: func(ri world.RunInfo) { starts = append(starts, ri) },
	})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runWithTimeout(t, r)

	if m := r.Metrics(); m.Restarts != 4 {
		t.Fatalf("restarts=%d", m.Restarts)
	}
	if len(starts) != 5 {
		t.Fatalf("run starts=%d", len(starts))
	}
	seen := map[string]bool{}
	for i, s := range starts {
		if s.Restart != uint64(i) || s.Seed != cfg.Seed+int64(i) || seen[s.RunID] {
			t.Fatalf("start %d: %+v", i, s)
		}
		seen[s.RunID] = true
	}
	if len(snaps) != 4 {
		t.Fatalf("final snapshots=%d", len(snaps))
	}
	first := <-snaps
	if !first.Header.Final || first.Header.RunID != starts[0].RunID || len(first.Agents) != 0 {
		t.Fatalf("final snapshot header=%+v agents=%d", first.Header, len(first.Agents))
	}
}

func TestRunner_SaveThenLoad(t *testing.T) {
	cmds := make(chan world.Command, 4)
	cmds <- world.CmdSave
	cmds <- world.CmdLoad
	cmds <- world.CmdQuit
	snaps := make(chan snapshot.SnapshotV1, 4)
	audit := &auditSink{}
	cfg := runnerConfig()
	cfg.Speed = 10
	r, err := world.NewRunner(world.RunnerConfig{
		World:     cfg,
		Commands:  cmds,
		Snapshots: snaps,
		Audit:     audit,
		Loader: func(ctx context.Context) (snapshot.SnapshotV1, error) {
			select {
			case s := <-snaps:
				return s, nil
			default:
				return snapshot.SnapshotV1{}, world.ErrNoSnapshot
			}
		},
	})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runWithTimeout(t, r)

	// Saved at tick 0, loaded at 1000, quit 1000 ticks after the load.
	if m := r.Metrics(); m.Tick != 1000 || m.TotalTicks != 2000 {
		t.Fatalf("tick=%d total=%d", m.Tick, m.TotalTicks)
	}
	want := []string{"SAVE", "LOAD", "QUIT"}
	if len(audit.entries) != len(want) {
		t.Fatalf("audit=%+v", audit.entries)
	}
	for i, e := range audit.entries {
		if e.Command != want[i] {
			t.Fatalf("audit[%d]=%+v", i, e)
		}
	}
	if audit.entries[1].Tick != 1000 {
		t.Fatalf("load applied at tick %d", audit.entries[1].Tick)
	}
}

func TestRunner_LoadAuditedUnderAbandonedRun(t *testing.T) {
	cmds := make(chan world.Command, 4)
	cmds <- world.CmdSave
	cmds <- world.CmdReset
	cmds <- world.CmdLoad
	cmds <- world.CmdQuit
	snaps := make(chan snapshot.SnapshotV1, 4)
	audit := &auditSink{}
	var starts []world.RunInfo
	cfg := runnerConfig()
	cfg.Speed = 10
	r, err := world.NewRunner(world.RunnerConfig{
		World:      cfg,
		Commands:   cmds,
		Snapshots:  snaps,
		Audit:      audit,
		OnRunStart: func(ri world.RunInfo) { starts = append(starts, ri) },
		Loader: func(ctx context.Context) (snapshot.SnapshotV1, error) {
			for {
				select {
				case s := <-snaps:
					if !s.Header.Final {
						return s, nil
					}
				default:
					return snapshot.SnapshotV1{}, world.ErrNoSnapshot
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runWithTimeout(t, r)

	if len(starts) != 3 {
		t.Fatalf("run starts=%+v", starts)
	}
	first, second := starts[0].RunID, starts[1].RunID
	if first == second || starts[2].RunID != first || !starts[2].Restored {
		t.Fatalf("run starts=%+v", starts)
	}
	want := []world.AuditEntry{
		{Tick: 0, RunID: first, Command: "SAVE"},
		{Tick: 1000, RunID: first, Command: "RESET"},
		{Tick: 0, RunID: second, Command: "LOAD"},
		{Tick: 1000, RunID: first, Command: "QUIT"},
	}
	if len(audit.entries) != len(want) {
		t.Fatalf("audit=%+v", audit.entries)
	}
	for i, e := range audit.entries {
		if e.Tick != want[i].Tick || e.RunID != want[i].RunID || e.Command != want[i].Command {
			t.Fatalf("audit[%d]=%+v want %+v", i, e, want[i])
		}
	}
	if d := audit.entries[2].Detail; d != "run="+first+" tick=0" {
		t.Fatalf("load detail=%q", d)
	}
}

func TestRunner_PauseStopsTicks(t *testing.T) {
	cmds := make(chan world.Command, 2)
	cmds <- world.CmdPause
	cmds <- world.CmdQuit
	r, err := world.NewRunner(world.RunnerConfig{World: runnerConfig(), Commands: cmds, PausePoll: time.Millisecond})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runWithTimeout(t, r)
	if m := r.Metrics(); !m.Paused || m.Tick != 0 || m.TotalTicks != 0 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestRunner_HeadlessWhenCommandsClosed(t *testing.T) {
	cmds := make(chan world.Command)
	close(cmds)
	cfg := runnerConfig()
	cfg.Speed = 10
	r, err := world.NewRunner(world.RunnerConfig{World: cfg, Commands: cmds, MaxTicks: 2500})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runWithTimeout(t, r)
	if m := r.Metrics(); m.TotalTicks != 2500 {
		t.Fatalf("ticks=%d", m.TotalTicks)
	}
}

func TestRunner_ContextCancelStops(t *testing.T) {
	r, err := world.NewRunner(world.RunnerConfig{World: runnerConfig()})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != context.Canceled {
		t.Fatalf("err=%v", err)
	}
}
