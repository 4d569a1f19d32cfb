package world

import (
	"time"

	"eyes.sim/internal/sim/grid"
)

// Frame is an immutable value copy of the world for renderers. Nothing in
// it aliases simulation state.
type Frame struct {
	RunID     string
	Grid      grid.Grid
	Size      int
	Tick      uint64
	Resources int
	Agents    int
	Deceased  uint64
	Restarts  uint64

	GrowthRate int
	Speed      int
	Paused     bool

	StartedAt   time.Time
	TicksPerSec float64
	// Window sums the last WindowTicks ticks.
	Window      StatsBucket
	WindowTicks uint64
}

// frame fills the world-owned part of a Frame.
func (w *World) frame() Frame {
	return Frame{
		Grid:        w.grid.Clone(),
		Size:        w.grid.Size(),
		Tick:        w.tick,
		Resources:   w.grid.ResourceCount(),
		Agents:      w.reg.len(),
		Deceased:    w.Deceased(),
		GrowthRate:  w.growth.rate,
		Window:      w.stats.Summarize(w.tick),
		WindowTicks: w.stats.WindowTicks(),
	}
}
