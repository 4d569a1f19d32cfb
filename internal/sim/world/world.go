// Package world is the tick engine: it owns the grid, the agent registry,
// the update queue and the growth scheduler. It performs no I/O.
package world

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/grid"
)

type World struct {
	cfg        Config
	strategies *behavior.Registry

	grid   grid.Grid
	reg    registry
	queue  UpdateQueue
	growth growth

	rngSrc *rand.PCG
	rng    *rand.Rand

	tick   uint64
	totals Totals
	stats  *Stats
}

func New(cfg Config, strategies *behavior.Registry) (*World, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("world: size must be positive, got %d", cfg.Size)
	}
	if strategies == nil {
		strategies = behavior.Builtin()
	}
	cfg = cfg.withDefaults()
	src := rand.NewPCG(uint64(cfg.Seed), 0)
	return &World{
		cfg:        cfg,
		strategies: strategies,
		grid:       grid.New(cfg.Size),
		reg:        newRegistry(cfg.ResourceEnergy),
		growth:     newGrowth(cfg.GrowthRate),
		rngSrc:     src,
		rng:        rand.New(src),
		stats:      NewStats(100, 1000),
	}, nil
}

// PopulateReport describes what Populate placed. Errors holds one entry per
// agent whose strategy could not be built; the rest of the population is
// unaffected.
type PopulateReport struct {
	Resources int
	Agents    map[string]int
	Dropped   int
	Errors    []error
}

func (r PopulateReport) Err() error { return errors.Join(r.Errors...) }

// Populate scatters the configured resources and agents at random
// positions. Collisions are resolved the same way as in a tick: the first
// committed agent keeps the cell.
func (w *World) Populate() PopulateReport {
	rep := PopulateReport{Agents: map[string]int{}}
	size := w.cfg.Size
	for i := 0; i < w.cfg.ResourceCount; i++ {
		c := grid.Coord{X: w.rng.IntN(size), Y: w.rng.IntN(size)}
		if w.grid.AddResource(c) {
			rep.Resources++
		}
	}

	for _, pe := range w.cfg.Population {
		for i := 0; i < pe.Count; i++ {
			s, err := w.NewStrategy(pe.Strategy)
			if err != nil {
				rep.Errors = append(rep.Errors, err)
				continue
			}
			c := grid.Coord{X: w.rng.IntN(size), Y: w.rng.IntN(size)}
			w.queue.Push(Update{Kind: UpdateAdd, Agent: NewAgent(c, w.initialEnergy(), s)})
		}
	}
	pending := w.queue.Len()
	var st TickStats
	w.apply(&st)
	rep.Dropped = pending - st.Births
	for _, id := range w.reg.keys() {
		rep.Agents[w.reg.get(id).Strategy.Name()]++
	}
	return rep
}

func (w *World) initialEnergy() int {
	lo, hi := w.cfg.InitialEnergyMin, w.cfg.InitialEnergyMax
	if hi <= lo {
		return lo
	}
	return lo + w.rng.IntN(hi-lo+1)
}

// NewStrategy builds a strategy with a seed drawn from the world generator.
func (w *World) NewStrategy(name string) (behavior.Strategy, error) {
	return w.strategies.New(name, w.params(w.rng.Uint64()))
}

func (w *World) params(seed uint64) behavior.Params {
	return behavior.Params{
		ReproductionEnergy: w.cfg.ReproductionEnergy,
		MoveRate:           w.cfg.MoveRate,
		Seed:               seed,
	}
}

// Spawn queues a new agent for the next apply phase.
func (w *World) Spawn(c grid.Coord, energy int, s behavior.Strategy) {
	w.queue.Push(Update{Kind: UpdateAdd, Agent: NewAgent(c, energy, s)})
}

// Tick advances the world by one step: compute, growth, apply, advance.
func (w *World) Tick() TickStats {
	st := TickStats{Tick: w.tick}
	for _, id := range w.reg.keys() {
		if a := w.reg.get(id); a != nil {
			w.computeAgent(a, &st)
		}
	}
	st.Grown, st.GrowthFired = w.growth.advance(&w.grid)
	w.apply(&st)
	if w.cfg.StrictInvariants {
		if err := w.CheckInvariants(); err != nil {
			panic(err)
		}
	}
	w.tick++

	st.Agents = w.reg.len()
	st.Resources = w.grid.ResourceCount()
	w.totals.add(st)
	w.stats.Record(st)
	return st
}

func (w *World) Config() Config              { return w.cfg }
func (w *World) CurrentTick() uint64         { return w.tick }
func (w *World) Size() int                   { return w.grid.Size() }
func (w *World) AgentCount() int             { return w.reg.len() }
func (w *World) ResourceCount() int          { return w.grid.ResourceCount() }
func (w *World) NextID() uint64              { return w.reg.nextID }
func (w *World) Totals() Totals              { return w.totals }
func (w *World) Stats() *Stats               { return w.stats }
func (w *World) GrowthRate() int             { return w.growth.rate }
func (w *World) Growth() GrowthState         { return w.growth.state() }
func (w *World) Cell(c grid.Coord) grid.Cell { return w.grid.Get(c) }
func (w *World) Extinct() bool               { return w.reg.len() == 0 }

// Deceased counts every id ever handed out that is no longer alive.
func (w *World) Deceased() uint64 {
	return w.reg.nextID - 1 - uint64(w.reg.len())
}

func (w *World) SetGrowthRate(r int) {
	w.growth.setRate(r)
	w.cfg.GrowthRate = w.growth.rate
}

// Agent returns a copy of the registered agent with id.
func (w *World) Agent(id uint64) (Agent, bool) {
	a := w.reg.get(id)
	if a == nil {
		return Agent{}, false
	}
	return *a, true
}

// CloneGrid returns a deep copy of the grid for readers outside the loop.
func (w *World) CloneGrid() grid.Grid { return w.grid.Clone() }

// PlaceResource seeds a resource directly; it is meant for setup code.
func (w *World) PlaceResource(c grid.Coord) bool { return w.grid.AddResource(c) }

// FlushSpawns applies queued spawns immediately, outside of a tick.
func (w *World) FlushSpawns() {
	var st TickStats
	w.apply(&st)
}
