package world

import "eyes.sim/internal/sim/grid"

const (
	MinGrowthRate = 1
	MaxGrowthRate = 100
)

// GrowthInterval is the number of ticks between growth events at rate r.
// r is clamped to [1,100]: rate 100 grows every 100 ticks, rate 1 every
// million.
func GrowthInterval(r int) uint64 {
	d := uint64(101 - min(max(r, MinGrowthRate), MaxGrowthRate))
	return d * d * 100
}

// GrowthState is the persisted part of the scheduler.
type GrowthState struct {
	Rate     int
	Elapsed  uint64
	Interval uint64
}

type growth struct {
	rate     int
	elapsed  uint64
	interval uint64
}

func newGrowth(rate int) growth {
	rate = min(max(rate, MinGrowthRate), MaxGrowthRate)
	return growth{rate: rate, interval: GrowthInterval(rate)}
}

func (g *growth) state() GrowthState {
	return GrowthState{Rate: g.rate, Elapsed: g.elapsed, Interval: g.interval}
}

func (g *growth) setRate(r int) {
	g.rate = min(max(r, MinGrowthRate), MaxGrowthRate)
	g.interval = GrowthInterval(g.rate)
}

// advance counts one tick and spreads resources when the interval is up.
func (g *growth) advance(gr *grid.Grid) (placed int, fired bool) {
	g.elapsed++
	if g.elapsed < g.interval {
		return 0, false
	}
	g.elapsed = 0
	g.interval = GrowthInterval(g.rate)
	return spread(gr), true
}

// spread seeds one new resource next to every resource that existed when
// the scan began, scanning in raster order. The heading starts North and
// turns 45 degrees clockwise after each successful placement. Off-grid or
// occupied targets are skipped.
func spread(gr *grid.Grid) int {
	placed := 0
	dir := grid.North
	for _, c := range gr.ResourceCoords() {
		if gr.AddResource(c.Add(dir)) {
			placed++
			dir = dir.Rotate45()
		}
	}
	return placed
}
