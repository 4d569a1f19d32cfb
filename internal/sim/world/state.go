package world

import (
	"fmt"
	"iter"

	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/grid"
)

// AgentState is the persisted view of one agent.
type AgentState struct {
	ID       uint64
	Energy   int
	Strategy string
	Sigil    rune
	// Private strategy state, present when the strategy is behavior.Stateful.
	State []byte
}

// State is everything needed to rebuild a world on top of its Config.
type State struct {
	Tick      uint64
	NextID    uint64
	Growth    GrowthState
	RNG       []byte
	Totals    Totals
	Agents    []AgentRecord
	Resources []grid.Coord
}

type AgentRecord struct {
	Pos grid.Coord
	AgentState
}

// Agents yields every registered agent in id order. State bytes are not
// filled in; use Export for a complete copy.
func (w *World) Agents() iter.Seq2[grid.Coord, AgentState] {
	return func(yield func(grid.Coord, AgentState) bool) {
		for _, id := range w.reg.keys() {
			a := w.reg.get(id)
			st := AgentState{ID: a.ID, Energy: a.Energy, Strategy: a.Strategy.Name(), Sigil: a.Sigil}
			if !yield(a.Pos, st) {
				return
			}
		}
	}
}

// Resources yields resource positions in raster order.
func (w *World) Resources() iter.Seq[grid.Coord] {
	return func(yield func(grid.Coord) bool) {
		for c, cell := range w.grid.Cells() {
			if cell.IsResource() && !yield(c) {
				return
			}
		}
	}
}

func (w *World) Export() (State, error) {
	rb, err := w.rngSrc.MarshalBinary()
	if err != nil {
		return State{}, fmt.Errorf("export rng: %w", err)
	}
	st := State{
		Tick:   w.tick,
		NextID: w.reg.nextID,
		Growth: w.growth.state(),
		RNG:    rb,
		Totals: w.totals,
	}
	for pos, as := range w.Agents() {
		if sf, ok := w.reg.get(as.ID).Strategy.(behavior.Stateful); ok {
			b, err := sf.MarshalState()
			if err != nil {
				return State{}, fmt.Errorf("export agent %d (%s): %w", as.ID, as.Strategy, err)
			}
			as.State = b
		}
		st.Agents = append(st.Agents, AgentRecord{Pos: pos, AgentState: as})
	}
	for c := range w.Resources() {
		st.Resources = append(st.Resources, c)
	}
	return st, nil
}

// Restore rebuilds a world from cfg and a previously exported State.
// Unlike Populate, any inconsistency is an error: a snapshot that does not
// fit its own config is corrupt.
func Restore(cfg Config, strategies *behavior.Registry, st State) (*World, error) {
	w, err := New(cfg, strategies)
	if err != nil {
		return nil, err
	}
	if len(st.RNG) > 0 {
		if err := w.rngSrc.UnmarshalBinary(st.RNG); err != nil {
			return nil, fmt.Errorf("restore rng: %w", err)
		}
	}
	for _, c := range st.Resources {
		if !w.grid.AddResource(c) {
			return nil, fmt.Errorf("restore resource at %v: cell unavailable", c)
		}
	}
	for _, rec := range st.Agents {
		s, err := w.strategies.New(rec.Strategy, w.params(0))
		if err != nil {
			return nil, fmt.Errorf("restore agent %d: %w", rec.ID, err)
		}
		if len(rec.State) > 0 {
			sf, ok := s.(behavior.Stateful)
			if !ok {
				return nil, fmt.Errorf("restore agent %d: strategy %q has no state", rec.ID, rec.Strategy)
			}
			if err := sf.UnmarshalState(rec.State); err != nil {
				return nil, fmt.Errorf("restore agent %d: %w", rec.ID, err)
			}
		}
		a := &Agent{ID: rec.ID, Pos: rec.Pos, Energy: rec.Energy, Strategy: s, Sigil: rec.Sigil}
		if a.Sigil == 0 {
			a.Sigil = s.Sigil()
		}
		if !w.reg.restore(&w.grid, a) {
			return nil, &InvariantError{ID: rec.ID, Coord: rec.Pos, Cell: w.grid.Get(rec.Pos), Reason: "cannot restore agent"}
		}
	}
	if st.NextID > w.reg.nextID {
		w.reg.nextID = st.NextID
	}
	w.tick = st.Tick
	w.totals = st.Totals
	w.stats.resetAt(st.Tick)
	if st.Growth.Rate != 0 {
		w.growth = newGrowth(st.Growth.Rate)
		w.cfg.GrowthRate = w.growth.rate
		w.growth.elapsed = st.Growth.Elapsed
		if st.Growth.Interval > 0 {
			w.growth.interval = st.Growth.Interval
		}
	}
	return w, nil
}
