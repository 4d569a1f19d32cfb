package main

import (
	"fmt"
	"io"
	"net/http"

	"eyes.sim/internal/sim/world"
	"eyes.sim/internal/transport/observer"
)

type metricsSource interface {
	Metrics() world.Metrics
}

// logStream names a JSONL log for the lines-written counter.
type logStream struct {
	name string
	log  interface{ Written() uint64 }
}

func newMux(src metricsSource, obs *observer.Server, idx runtimeIndex, logs ...logStream) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		clients := -1
		if obs != nil {
			clients = obs.Clients()
		}
		writeMetrics(rw, src.Metrics(), clients)
		writeIndexMetrics(rw, idx)
		writeLogMetrics(rw, logs)
	})
	if obs != nil {
		mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	}
	return mux
}

// writeMetrics renders m in the Prometheus text format. A negative clients
// value omits the observer gauge.
func writeMetrics(w io.Writer, m world.Metrics, clients int) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s{run=%q} %v\n", name, m.RunID, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s{run=%q} %d\n", name, m.RunID, v)
	}

	gauge("eyes_tick", "Current tick of the running world.", m.Tick)
	gauge("eyes_agents", "Living agents.", m.Agents)
	gauge("eyes_resources", "Resource units on the grid.", m.Resources)
	gauge("eyes_speed", "Speed setting (1..10).", m.Speed)
	gauge("eyes_growth_rate", "Resource growth rate (1..100).", m.GrowthRate)
	gauge("eyes_ticks_per_second", "Recent tick throughput.", fmt.Sprintf("%.1f", m.TicksPerSec))
	paused := 0
	if m.Paused {
		paused = 1
	}
	gauge("eyes_paused", "1 while the runner is paused.", paused)
	gauge("eyes_step_seconds", "Duration of the most recent tick.", fmt.Sprintf("%.6f", m.LastStep.Seconds()))
	gauge("eyes_step_max_seconds", "Slowest tick since start.", fmt.Sprintf("%.6f", m.MaxStep.Seconds()))

	counter("eyes_ticks_total", "Ticks executed across all runs.", m.TotalTicks)
	counter("eyes_restarts_total", "Runs ended by extinction or reset.", m.Restarts)
	counter("eyes_births_total", "Agents born in this run.", m.Totals.Births)
	counter("eyes_deaths_total", "Agents died in this run.", m.Totals.Deaths)
	counter("eyes_eaten_total", "Resources eaten in this run.", m.Totals.Eaten)
	counter("eyes_grown_total", "Resources grown in this run.", m.Totals.Grown)

	fmt.Fprintf(w, "# HELP eyes_rejected_updates_total Queued updates rejected at apply time.\n")
	fmt.Fprintf(w, "# TYPE eyes_rejected_updates_total counter\n")
	fmt.Fprintf(w, "eyes_rejected_updates_total{run=%q,reason=%q} %d\n", m.RunID, "stale", m.Totals.RejectedStale)
	fmt.Fprintf(w, "eyes_rejected_updates_total{run=%q,reason=%q} %d\n", m.RunID, "occupied", m.Totals.RejectedOccupied)

	if clients >= 0 {
		gauge("eyes_observer_clients", "Connected observer websockets.", clients)
	}
}

func writeIndexMetrics(w io.Writer, idx runtimeIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(w, "# HELP eyes_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(w, "# TYPE eyes_index_queue_depth gauge\n")
	fmt.Fprintf(w, "eyes_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP eyes_index_dropped_total Index rows dropped under backpressure.\n")
	fmt.Fprintf(w, "# TYPE eyes_index_dropped_total counter\n")
	fmt.Fprintf(w, "eyes_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(w, "eyes_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(w, "eyes_index_dropped_total{kind=%q} %d\n", "run", s.DropRunTotal)
	fmt.Fprintf(w, "eyes_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(w, "eyes_index_dropped_total{kind=%q} %d\n", "archive", s.DropArchiveTotal)

	fmt.Fprintf(w, "# HELP eyes_index_write_errors_total Index rows that failed to write.\n")
	fmt.Fprintf(w, "# TYPE eyes_index_write_errors_total counter\n")
	fmt.Fprintf(w, "eyes_index_write_errors_total %d\n", s.WriteErrorTotal)
}

func writeLogMetrics(w io.Writer, logs []logStream) {
	if len(logs) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP eyes_log_lines_total JSONL lines written since start.\n")
	fmt.Fprintf(w, "# TYPE eyes_log_lines_total counter\n")
	for _, l := range logs {
		fmt.Fprintf(w, "eyes_log_lines_total{log=%q} %d\n", l.name, l.log.Written())
	}
}
