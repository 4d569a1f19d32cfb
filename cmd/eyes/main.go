package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"eyes.sim/internal/persistence/archive"
	persistlog "eyes.sim/internal/persistence/log"
	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/render/terminal"
	"eyes.sim/internal/render/window"
	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/tuning"
	"eyes.sim/internal/sim/world"
	"eyes.sim/internal/transport/observer"
)

func main() {
	var (
		configPath  = flag.String("config", defaultConfigPath(), "path to tuning.yaml (written with defaults if missing)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		seed        = flag.Int64("seed", 0, "world seed (0 keeps the tuning seed)")
		reset       = flag.Bool("reset", false, "rewrite the tuning file with defaults")
		performance = flag.Bool("performance", false, "use the performance preset instead of the tuning file")
		ui          = flag.String("ui", "terminal", "renderer: terminal, window or none")
		addr        = flag.String("addr", "127.0.0.1:8080", "observer and metrics http listen address (empty to disable)")
		scale       = flag.Int("scale", 8, "window renderer pixels per cell")
		maxTicks    = flag.Uint64("max_ticks", 0, "stop after this many ticks (0 runs until quit)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite run index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	mode := strings.ToLower(strings.TrimSpace(*ui))
	switch mode {
	case "terminal", "window", "none":
	default:
		fmt.Fprintf(os.Stderr, "unknown -ui %q (want terminal, window or none)\n", *ui)
		os.Exit(2)
	}
	if mode == "window" && !window.Available() {
		fmt.Fprintln(os.Stderr, "The window renderer requires the ebiten build tag.")
		fmt.Fprintln(os.Stderr, "Re-run with `go run -tags ebiten ./cmd/eyes -ui=window` or pick -ui=terminal.")
		os.Exit(2)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "data dir: %v\n", err)
		os.Exit(1)
	}
	logger, closeLog := openLogger(*dataDir, mode == "terminal")
	defer closeLog()

	var tune tuning.Tuning
	var err error
	if *performance {
		tune = tuning.Performance()
	} else {
		tune, err = tuning.LoadOrInit(*configPath, *reset)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	logger.Printf("tuning: size=%d seed=%d resources=%d growth=%d speed=%d", tune.Size, tune.Seed, tune.ResourceCount, tune.GrowthRate, tune.Speed)

	strategies := behavior.Builtin()
	if unknown := unknownStrategies(tune.Population, strategies); len(unknown) > 0 {
		logger.Printf("tuning: no strategy named %s (known: %s); those agents will not spawn",
			strings.Join(unknown, ", "), strings.Join(strategies.Names(), ", "))
	}

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index tuning: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(*dataDir)
	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer tickLog.Close()
	defer auditLog.Close()

	snapDir := filepath.Join(*dataDir, "snapshots")
	snapCh := make(chan snapshot.SnapshotV1, 4)
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		writeSnapshots(snapCh, *dataDir, idx, logger)
	}()

	frames := make(chan world.Frame, 1)
	commands := make(chan world.Command, 16)

	rcfg := world.RunnerConfig{
		World:              tune.WorldConfig(),
		Strategies:         strategies,
		Logger:             logger,
		Frames:             frames,
		Commands:           commands,
		Snapshots:          snapCh,
		Loader:             latestLoader(snapDir),
		TickLog:            multiTickLogger{a: tickLog, b: indexTickLogger(idx)},
		Audit:              multiAuditLogger{a: auditLog, b: indexAuditLogger(idx)},
		LogEveryTicks:      tune.Ops.LogEveryTicks,
		SnapshotEveryTicks: tune.Ops.SnapshotEveryTicks,
		MaxTicks:           *maxTicks,
	}
	if idx != nil {
		rcfg.OnRunStart = idx.RecordRun
	}
	runner, err := world.NewRunner(rcfg)
	if err != nil {
		logger.Fatalf("runner: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		if p, err := snapshot.LatestResumable(snapDir); err == nil {
			snapshotToLoad = p
		}
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := runner.ResumeFrom(snap); err != nil {
			logger.Fatalf("resume snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d run=%s", filepath.Base(snapshotToLoad), snap.Header.Tick, snap.Header.RunID)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var obs *observer.Server
	if strings.TrimSpace(*addr) != "" {
		obs = observer.NewServer(commands, logger)
		srv := &http.Server{
			Addr:              *addr,
			Handler:           newMux(runner, obs, idx, logStream{"events", tickLog}, logStream{"audit", auditLog}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
			}
		}()
	}

	uiFrames := make(chan world.Frame, 1)
	go fanOut(ctx, frames, uiFrames, obs)

	runErr := make(chan error, 1)
	go func() {
		err := runner.Run(ctx)
		close(snapCh)
		runErr <- err
	}()

	switch mode {
	case "terminal":
		r, err := terminal.Open(uiFrames, commands)
		if err != nil {
			logger.Fatalf("terminal: %v", err)
		}
		err = r.Run(ctx)
		r.Close()
		if err != nil {
			logger.Printf("terminal: %v", err)
		}
	case "window":
		if err := window.Run(ctx, uiFrames, commands, tune.Size, *scale); err != nil {
			logger.Printf("window: %v", err)
		}
	}

	// Renderers return after sending QUIT; give the runner a moment to see
	// it before cancelling.
	select {
	case err = <-runErr:
	case <-ctx.Done():
		err = <-runErr
	case <-afterUI(mode):
		cancel()
		err = <-runErr
	}
	cancel()
	writerWG.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("runner stopped: %v", err)
	}
	m := runner.Metrics()
	logger.Printf("stopped: run=%s tick=%d total_ticks=%d restarts=%d", m.RunID, m.Tick, m.TotalTicks, m.Restarts)
}

// afterUI bounds how long main waits for the runner once the renderer has
// returned. Headless mode waits until the runner stops or a signal arrives.
func afterUI(mode string) <-chan time.Time {
	if mode == "none" {
		return nil
	}
	return time.After(5 * time.Second)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./configs/tuning.yaml"
	}
	return filepath.Join(dir, "eyes", "tuning.yaml")
}

// openLogger writes to <data>/eyes.log when the terminal owns stdout.
func openLogger(dataDir string, toFile bool) (*log.Logger, func()) {
	flags := log.LstdFlags | log.Lmicroseconds
	if !toFile {
		return log.New(os.Stdout, "[eyes] ", flags), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "eyes.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	return log.New(f, "[eyes] ", flags), func() { _ = f.Close() }
}

// unknownStrategies lists population entries with agents but no factory.
func unknownStrategies(pop []tuning.Population, reg *behavior.Registry) []string {
	var out []string
	for _, p := range pop {
		if p.Count > 0 && !reg.Has(p.Strategy) {
			out = append(out, fmt.Sprintf("%q", p.Strategy))
		}
	}
	return out
}

func latestLoader(snapDir string) world.SnapshotLoader {
	return func(ctx context.Context) (snapshot.SnapshotV1, error) {
		path, err := snapshot.LatestResumable(snapDir)
		if errors.Is(err, os.ErrNotExist) {
			return snapshot.SnapshotV1{}, world.ErrNoSnapshot
		}
		if err != nil {
			return snapshot.SnapshotV1{}, err
		}
		return snapshot.ReadSnapshot(path)
	}
}

// writeSnapshots persists snapshots from the runner until ch closes. Final
// snapshots are also archived per run.
func writeSnapshots(ch <-chan snapshot.SnapshotV1, dataDir string, idx runtimeIndex, logger *log.Logger) {
	snapDir := filepath.Join(dataDir, "snapshots")
	for snap := range ch {
		path := snapshot.Path(snapDir, snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			continue
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		restart, archivedPath, ok, err := archive.ArchiveRunSnapshot(dataDir, path, snap)
		if err != nil {
			logger.Printf("archive run snapshot: %v", err)
			continue
		}
		if ok {
			logger.Printf("archived run %s as %s", snap.Header.RunID, filepath.Dir(archivedPath))
			if idx != nil {
				idx.RecordArchive(snap.Header.RunID, restart, snap.Header.Tick, archivedPath)
			}
		}
	}
}

// fanOut copies runner frames to the renderer and the observer. Both see
// only the newest frame.
func fanOut(ctx context.Context, in <-chan world.Frame, ui chan world.Frame, obs *observer.Server) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-in:
			if obs != nil {
				obs.Publish(f)
			}
			world.SendLatest(ui, f)
		}
	}
}
