package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/behavior"
)

var ErrNoSnapshot = errors.New("no snapshot available")

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick             uint64 `json:"tick"`
	RunID            string `json:"run_id"`
	Agents           int    `json:"agents"`
	Resources        int    `json:"resources"`
	Births           int    `json:"births"`
	Deaths           int    `json:"deaths"`
	Eaten            int    `json:"eaten"`
	Grown            int    `json:"grown"`
	RejectedStale    int    `json:"rejected_stale"`
	RejectedOccupied int    `json:"rejected_occupied"`
	Digest           string `json:"digest"`
}

// AuditEntry records one applied control command.
type AuditEntry struct {
	Tick    uint64 `json:"tick"`
	RunID   string `json:"run_id"`
	Command string `json:"command"`
	Detail  string `json:"detail,omitempty"`
}

// SnapshotLoader supplies the snapshot restored by CmdLoad.
type SnapshotLoader func(ctx context.Context) (snapshot.SnapshotV1, error)

type RunInfo struct {
	RunID     string
	Restart   uint64
	Seed      int64
	StartedAt time.Time
	Restored  bool
}

type RunnerConfig struct {
	World      Config
	Strategies *behavior.Registry
	Logger     *log.Logger

	// Optional channels. Frames should be buffered; the runner keeps only
	// the latest frame in it and never blocks on a slow reader.
	Frames    chan Frame
	Commands  <-chan Command
	Snapshots chan<- snapshot.SnapshotV1

	Loader     SnapshotLoader
	TickLog    TickLogger
	Audit      AuditLogger
	OnRunStart func(RunInfo)

	LogEveryTicks      uint64
	SnapshotEveryTicks uint64
	// Stop after this many ticks across all runs. 0 runs until Quit.
	MaxTicks uint64
	// Minimum sleep per boundary while paused.
	PausePoll time.Duration
}

// Metrics is a point-in-time view of the runner, safe to read from any
// goroutine.
type Metrics struct {
	RunID       string
	Tick        uint64
	TotalTicks  uint64
	Agents      int
	Resources   int
	Restarts    uint64
	Speed       int
	GrowthRate  int
	Paused      bool
	TicksPerSec float64
	Totals      Totals

	// Duration of the most recent tick and the slowest tick seen.
	LastStep time.Duration
	MaxStep  time.Duration
}

type runEnd uint8

const (
	endNone runEnd = iota
	endQuit
	endReset
	endExtinct
	endMaxTicks
)

func (e runEnd) String() string {
	switch e {
	case endQuit:
		return "quit"
	case endReset:
		return "reset"
	case endExtinct:
		return "extinct"
	case endMaxTicks:
		return "max_ticks"
	default:
		return "none"
	}
}

// Runner owns a World and drives it: ticking, restarting after extinction
// or reset, publishing frames and applying control commands.
type Runner struct {
	cfg RunnerConfig
	log *log.Logger

	world      *World
	meta       RunMeta
	growthRate int
	speed      int
	paused     bool
	restored   bool
	commands   <-chan Command

	totalTicks uint64
	lastStep   time.Duration
	maxStep    time.Duration
	meter      rateMeter
	metrics    atomic.Pointer[Metrics]
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.World.Size < 1 {
		return nil, fmt.Errorf("runner: size must be positive, got %d", cfg.World.Size)
	}
	if cfg.Strategies == nil {
		cfg.Strategies = behavior.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = 50 * time.Millisecond
	}
	cfg.World = cfg.World.withDefaults()
	r := &Runner{
		cfg:        cfg,
		log:        cfg.Logger,
		growthRate: cfg.World.GrowthRate,
		speed:      cfg.World.Speed,
		commands:   cfg.Commands,
	}
	r.metrics.Store(&Metrics{Speed: r.speed, GrowthRate: r.growthRate})
	return r, nil
}

// ResumeFrom makes the first run continue from s instead of a fresh world.
func (r *Runner) ResumeFrom(s snapshot.SnapshotV1) error {
	w, meta, err := RestoreSnapshot(s, r.cfg.Strategies, r.cfg.World.StrictInvariants)
	if err != nil {
		return err
	}
	r.install(w, meta)
	return nil
}

func (r *Runner) install(w *World, meta RunMeta) {
	r.world = w
	r.meta = meta
	r.growthRate = w.GrowthRate()
	r.speed = min(max(meta.Speed, MinSpeed), MaxSpeed)
	r.meta.Speed = r.speed
	r.restored = true
}

func (r *Runner) Metrics() Metrics { return *r.metrics.Load() }

// World returns the current world. Only safe while Run is not executing.
func (r *Runner) World() *World { return r.world }

func (r *Runner) Run(ctx context.Context) error {
	for {
		if r.world == nil {
			if err := r.startRun(); err != nil {
				return err
			}
		}
		if r.cfg.OnRunStart != nil && r.restored {
			r.cfg.OnRunStart(r.runInfo())
			r.restored = false
		}
		end, err := r.runWorld(ctx)
		r.storeMetrics()
		if err != nil {
			return err
		}
		switch end {
		case endQuit, endMaxTicks:
			r.log.Printf("run %s stopped (%s) at tick %d", r.meta.RunID, end, r.world.CurrentTick())
			return nil
		case endReset, endExtinct:
			r.finishRun(end)
		}
	}
}

func (r *Runner) runInfo() RunInfo {
	return RunInfo{
		RunID:     r.meta.RunID,
		Restart:   r.meta.Restarts,
		Seed:      r.world.Config().Seed,
		StartedAt: r.meta.StartedAt,
		Restored:  r.restored,
	}
}

func (r *Runner) startRun() error {
	cfg := r.cfg.World
	cfg.GrowthRate = r.growthRate
	cfg.Speed = r.speed
	// Each restart gets its own deterministic seed.
	cfg.Seed = r.cfg.World.Seed + int64(r.meta.Restarts)

	w, err := New(cfg, r.cfg.Strategies)
	if err != nil {
		return err
	}
	rep := w.Populate()
	for _, e := range rep.Errors {
		r.log.Printf("populate: %v", e)
	}
	r.world = w
	r.meta = RunMeta{
		RunID:     uuid.NewString(),
		Restarts:  r.meta.Restarts,
		StartedAt: time.Now().UTC(),
		Speed:     r.speed,
	}
	r.log.Printf("run %s started: restart=%d seed=%d agents=%d resources=%d dropped=%d",
		r.meta.RunID, r.meta.Restarts, cfg.Seed, w.AgentCount(), w.ResourceCount(), rep.Dropped)
	if r.cfg.OnRunStart != nil {
		r.cfg.OnRunStart(r.runInfo())
	}
	return nil
}

func (r *Runner) finishRun(end runEnd) {
	w := r.world
	r.log.Printf("run %s ended (%s) at tick %d: deceased=%d", r.meta.RunID, end, w.CurrentTick(), w.Deceased())
	if r.cfg.Snapshots != nil {
		if snap, err := w.ExportSnapshot(r.meta, true); err != nil {
			r.log.Printf("final snapshot: %v", err)
		} else {
			r.sendSnapshot(snap)
		}
	}
	r.growthRate = w.GrowthRate()
	r.meta.Restarts++
	r.world = nil
}

func (r *Runner) runWorld(ctx context.Context) (runEnd, error) {
	for {
		if err := ctx.Err(); err != nil {
			return endNone, err
		}
		w := r.world
		if r.paused || w.CurrentTick()%SpeedTicks(r.speed) == 0 {
			if end := r.boundary(ctx); end != endNone {
				return end, nil
			}
			// A Load may have swapped the world.
			w = r.world
		}
		if !r.paused {
			start := time.Now()
			st := w.Tick()
			r.lastStep = time.Since(start)
			r.maxStep = max(r.maxStep, r.lastStep)
			r.afterTick(st)
			if r.cfg.MaxTicks > 0 && r.totalTicks >= r.cfg.MaxTicks {
				return endMaxTicks, nil
			}
		}
		if w.Extinct() {
			return endExtinct, nil
		}
	}
}

func (r *Runner) boundary(ctx context.Context) runEnd {
	cmd := r.pollCommand()
	if cmd != CmdNone {
		if end := r.handle(ctx, cmd); end != endNone {
			return end
		}
	}
	r.publishFrame()
	r.storeMetrics()

	d := SpeedDelay(r.speed)
	if r.paused && d < r.cfg.PausePoll {
		d = r.cfg.PausePoll
	}
	sleepCtx(ctx, d)
	return endNone
}

func (r *Runner) pollCommand() Command {
	if r.commands == nil {
		return CmdNone
	}
	select {
	case c, ok := <-r.commands:
		if !ok {
			r.log.Printf("command channel closed; continuing headless")
			r.commands = nil
			return CmdNone
		}
		return c
	default:
		return CmdNone
	}
}

func (r *Runner) handle(ctx context.Context, cmd Command) runEnd {
	w := r.world
	// A Load replaces r.meta; the entry belongs to the run it abandons.
	runID, tick := r.meta.RunID, w.CurrentTick()
	detail := ""
	end := endNone
	switch cmd {
	case CmdQuit:
		end = endQuit
	case CmdReset:
		end = endReset
	case CmdPause:
		r.paused = true
	case CmdResume:
		r.paused = false
	case CmdSpeedUp, CmdSpeedDown:
		if cmd == CmdSpeedUp {
			r.speed = min(max(r.speed+1, MinSpeed), MaxSpeed)
		} else {
			r.speed = min(max(r.speed-1, MinSpeed), MaxSpeed)
		}
		r.meta.Speed = r.speed
		detail = fmt.Sprintf("speed=%d", r.speed)
	case CmdGrowthRateUp:
		w.SetGrowthRate(w.GrowthRate() + 1)
		r.growthRate = w.GrowthRate()
		detail = fmt.Sprintf("growth_rate=%d", r.growthRate)
	case CmdGrowthRateDown:
		w.SetGrowthRate(w.GrowthRate() - 1)
		r.growthRate = w.GrowthRate()
		detail = fmt.Sprintf("growth_rate=%d", r.growthRate)
	case CmdSave:
		detail = r.save()
	case CmdLoad:
		detail = r.load(ctx)
	default:
		detail = "ignored"
	}
	r.audit(AuditEntry{Tick: tick, RunID: runID, Command: cmd.String(), Detail: detail})
	return end
}

func (r *Runner) save() string {
	if r.cfg.Snapshots == nil {
		return "no snapshot sink"
	}
	snap, err := r.world.ExportSnapshot(r.meta, false)
	if err != nil {
		r.log.Printf("save: %v", err)
		return err.Error()
	}
	if !r.sendSnapshot(snap) {
		return "dropped"
	}
	return fmt.Sprintf("tick=%d", snap.Header.Tick)
}

func (r *Runner) load(ctx context.Context) string {
	if r.cfg.Loader == nil {
		return ErrNoSnapshot.Error()
	}
	snap, err := r.cfg.Loader(ctx)
	if err == nil {
		var w *World
		var meta RunMeta
		w, meta, err = RestoreSnapshot(snap, r.cfg.Strategies, r.cfg.World.StrictInvariants)
		if err == nil {
			r.install(w, meta)
			r.log.Printf("loaded run %s at tick %d", meta.RunID, w.CurrentTick())
			if r.cfg.OnRunStart != nil {
				r.cfg.OnRunStart(r.runInfo())
				r.restored = false
			}
			return fmt.Sprintf("run=%s tick=%d", meta.RunID, w.CurrentTick())
		}
	}
	r.log.Printf("load: %v", err)
	return err.Error()
}

func (r *Runner) sendSnapshot(snap snapshot.SnapshotV1) bool {
	select {
	case r.cfg.Snapshots <- snap:
		return true
	default:
		r.log.Printf("snapshot sink backed up; dropped tick %d", snap.Header.Tick)
		return false
	}
}

func (r *Runner) audit(e AuditEntry) {
	if r.cfg.Audit == nil {
		return
	}
	if err := r.cfg.Audit.WriteAudit(e); err != nil {
		r.log.Printf("audit: %v", err)
	}
}

func (r *Runner) afterTick(st TickStats) {
	r.totalTicks++
	w := r.world
	now := w.CurrentTick()
	if r.cfg.TickLog != nil && r.cfg.LogEveryTicks > 0 && now%r.cfg.LogEveryTicks == 0 {
		err := r.cfg.TickLog.WriteTick(TickLogEntry{
			Tick:             now,
			RunID:            r.meta.RunID,
			Agents:           st.Agents,
			Resources:        st.Resources,
			Births:           st.Births,
			Deaths:           st.Deaths,
			Eaten:            st.Eaten,
			Grown:            st.Grown,
			RejectedStale:    st.RejectedStale,
			RejectedOccupied: st.RejectedOccupied,
			Digest:           w.Digest(),
		})
		if err != nil {
			r.log.Printf("tick log: %v", err)
		}
	}
	if r.cfg.Snapshots != nil && r.cfg.SnapshotEveryTicks > 0 && now%r.cfg.SnapshotEveryTicks == 0 {
		if snap, err := w.ExportSnapshot(r.meta, false); err != nil {
			r.log.Printf("snapshot: %v", err)
		} else {
			r.sendSnapshot(snap)
		}
	}
}

func (r *Runner) publishFrame() {
	if r.cfg.Frames == nil {
		return
	}
	f := r.world.frame()
	f.RunID = r.meta.RunID
	f.Restarts = r.meta.Restarts
	f.Speed = r.speed
	f.Paused = r.paused
	f.StartedAt = r.meta.StartedAt
	f.TicksPerSec = r.meter.rate()
	SendLatest(r.cfg.Frames, f)
}

func (r *Runner) storeMetrics() {
	w := r.world
	if w == nil {
		return
	}
	r.meter.observe(r.totalTicks, time.Now())
	r.metrics.Store(&Metrics{
		RunID:       r.meta.RunID,
		Tick:        w.CurrentTick(),
		TotalTicks:  r.totalTicks,
		Agents:      w.AgentCount(),
		Resources:   w.ResourceCount(),
		Restarts:    r.meta.Restarts,
		Speed:       r.speed,
		GrowthRate:  w.GrowthRate(),
		Paused:      r.paused,
		TicksPerSec: r.meter.rate(),
		Totals:      w.Totals(),
		LastStep:    r.lastStep,
		MaxStep:     r.maxStep,
	})
}

// SendLatest offers v to a buffered channel, evicting the oldest queued
// value when it is full. Consumers only ever see the newest values.
func SendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// rateMeter estimates ticks per second over windows of at least a second.
type rateMeter struct {
	lastTicks uint64
	lastAt    time.Time
	perSec    float64
}

func (m *rateMeter) observe(ticks uint64, now time.Time) {
	if m.lastAt.IsZero() {
		m.lastTicks, m.lastAt = ticks, now
		return
	}
	el := now.Sub(m.lastAt)
	if el < time.Second {
		return
	}
	m.perSec = float64(ticks-m.lastTicks) / el.Seconds()
	m.lastTicks, m.lastAt = ticks, now
}

func (m *rateMeter) rate() float64 { return m.perSec }
