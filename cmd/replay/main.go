package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "eyes.sim/internal/persistence/log"
	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		dataDir  = flag.String("data", "", "data dir holding events/ and audit/ (default: parent of the snapshot dir)")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		summary  = flag.Bool("summary", false, "print the snapshot summary and exit")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, snap)
	if *summary {
		return
	}

	dir := *dataDir
	if dir == "" {
		dir = filepath.Dir(filepath.Dir(*snapPath))
	}
	res, err := replay(snap, replayOptions{
		EventsDir: filepath.Join(dir, "events"),
		AuditDir:  filepath.Join(dir, "audit"),
		FromTick:  *fromTick,
		ToTick:    *toTick,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if res.StoppedBy != "" {
		fmt.Printf("replay stopped at tick=%d by %s\n", res.LastTick, res.StoppedBy)
	}
	fmt.Printf("replay ok: checked=%d last_tick=%d\n", res.Checked, res.LastTick)
}

func printSummary(out io.Writer, snap snapshot.SnapshotV1) {
	fmt.Fprintf(out, "snapshot v%d run=%s tick=%d final=%v seed=%d size=%d agents=%d resources=%d restarts=%d growth_rate=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, snap.Header.Final, snap.Config.Seed, snap.Config.Size,
		len(snap.Agents), len(snap.Resources), snap.Restarts, snap.Growth.Rate)
}

type replayOptions struct {
	EventsDir string
	AuditDir  string
	FromTick  uint64
	ToTick    uint64
}

type replayResult struct {
	Checked   int
	LastTick  uint64
	StoppedBy string
}

type digestMismatch struct {
	Tick      uint64
	Want, Got string
}

func (e *digestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch at tick %d: want=%s got=%s", e.Tick, e.Want, e.Got)
}

// replay restores snap and re-runs its world forward, comparing the digest
// at every logged tick of the same run. Growth rate changes from the audit
// log are applied at the tick they were recorded; a load or reset of the
// run ends verification there.
func replay(snap snapshot.SnapshotV1, opts replayOptions) (replayResult, error) {
	var res replayResult
	w, meta, err := world.RestoreSnapshot(snap, behavior.Builtin(), false)
	if err != nil {
		return res, fmt.Errorf("restore: %w", err)
	}
	start := w.CurrentTick()
	res.LastTick = start
	verifyFrom := max(opts.FromTick, start)

	controls, stopAt, stopBy, err := loadControls(opts.AuditDir, meta.RunID, start)
	if err != nil {
		return res, err
	}

	advance := func(target uint64) {
		for w.CurrentTick() < target {
			applyControls(w, controls[w.CurrentTick()])
			w.Tick()
		}
	}

	for e, err := range persistlog.ReadTicks(opts.EventsDir) {
		if err != nil {
			return res, fmt.Errorf("read events: %w", err)
		}
		if e.RunID != meta.RunID || e.Tick <= start {
			continue
		}
		if opts.ToTick != 0 && e.Tick > opts.ToTick {
			break
		}
		if stopBy != "" && (e.Tick > stopAt || e.Tick <= res.LastTick) {
			advance(stopAt)
			res.LastTick = stopAt
			res.StoppedBy = stopBy
			return res, nil
		}
		if e.Tick < w.CurrentTick() {
			return res, fmt.Errorf("events out of order: tick %d after %d", e.Tick, w.CurrentTick())
		}
		advance(e.Tick)
		res.LastTick = e.Tick
		if e.Tick < verifyFrom {
			continue
		}
		if got := w.Digest(); got != e.Digest {
			return res, &digestMismatch{Tick: e.Tick, Want: e.Digest, Got: got}
		}
		res.Checked++
	}
	return res, nil
}

// loadControls collects the growth rate settings of runID at or after
// start, keyed by tick, and the first tick at which the run was abandoned.
func loadControls(dir, runID string, start uint64) (map[uint64][]int, uint64, string, error) {
	controls := map[uint64][]int{}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return controls, 0, "", nil
	}
	for e, err := range persistlog.ReadAudit(dir) {
		if err != nil {
			return nil, 0, "", fmt.Errorf("read audit: %w", err)
		}
		if e.RunID != runID || e.Tick < start {
			continue
		}
		switch e.Command {
		case world.CmdGrowthRateUp.String(), world.CmdGrowthRateDown.String():
			rate, ok := detailInt(e.Detail, "growth_rate")
			if !ok {
				return nil, 0, "", fmt.Errorf("audit tick %d: bad detail %q", e.Tick, e.Detail)
			}
			controls[e.Tick] = append(controls[e.Tick], rate)
		case world.CmdReset.String():
			return controls, e.Tick, e.Command, nil
		case world.CmdLoad.String():
			if strings.HasPrefix(e.Detail, "run=") {
				return controls, e.Tick, e.Command, nil
			}
		}
	}
	return controls, 0, "", nil
}

func applyControls(w *world.World, rates []int) {
	for _, r := range rates {
		w.SetGrowthRate(r)
	}
}

func detailInt(detail, key string) (int, bool) {
	for _, f := range strings.Fields(detail) {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k != key {
			continue
		}
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}
