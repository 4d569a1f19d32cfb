package world

import (
	"fmt"
	"time"

	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/grid"
)

// RunMeta is the runner-level context stored alongside world state.
type RunMeta struct {
	RunID     string
	Restarts  uint64
	StartedAt time.Time
	Speed     int
}

func (w *World) ExportSnapshot(meta RunMeta, final bool) (snapshot.SnapshotV1, error) {
	st, err := w.Export()
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	cfg := w.cfg
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   meta.RunID,
			Tick:    st.Tick,
			Final:   final,
		},
		Config: snapshot.ConfigV1{
			Size:               cfg.Size,
			Seed:               cfg.Seed,
			ResourceCount:      cfg.ResourceCount,
			InitialEnergyMin:   cfg.InitialEnergyMin,
			InitialEnergyMax:   cfg.InitialEnergyMax,
			ResourceEnergy:     cfg.ResourceEnergy,
			IdleCost:           cfg.IdleCost,
			MoveCost:           cfg.MoveCost,
			ReproductionEnergy: cfg.ReproductionEnergy,
			MoveRate:           cfg.MoveRate,
			VisionReach:        cfg.VisionReach,
		},
		Restarts:  meta.Restarts,
		StartedAt: meta.StartedAt,
		Speed:     meta.Speed,
		Growth:    snapshot.GrowthV1{Rate: st.Growth.Rate, Elapsed: st.Growth.Elapsed, Interval: st.Growth.Interval},
		RNG:       st.RNG,
		Counters: snapshot.CountersV1{
			NextAgent:        st.NextID,
			Ticks:            st.Totals.Ticks,
			Births:           st.Totals.Births,
			Deaths:           st.Totals.Deaths,
			Moves:            st.Totals.Moves,
			Looks:            st.Totals.Looks,
			Eaten:            st.Totals.Eaten,
			Grown:            st.Totals.Grown,
			GrowthEvents:     st.Totals.GrowthEvents,
			RejectedStale:    st.Totals.RejectedStale,
			RejectedOccupied: st.Totals.RejectedOccupied,
		},
	}
	for _, pe := range cfg.Population {
		snap.Config.Population = append(snap.Config.Population, snapshot.PopulationV1{Strategy: pe.Strategy, Count: pe.Count})
	}
	snap.Agents = make([]snapshot.AgentV1, 0, len(st.Agents))
	for _, a := range st.Agents {
		snap.Agents = append(snap.Agents, snapshot.AgentV1{
			ID:       a.ID,
			X:        a.Pos.X,
			Y:        a.Pos.Y,
			Energy:   a.Energy,
			Strategy: a.Strategy,
			Sigil:    a.Sigil,
			State:    a.State,
		})
	}
	snap.Resources = make([]snapshot.ResourceV1, 0, len(st.Resources))
	for _, c := range st.Resources {
		snap.Resources = append(snap.Resources, snapshot.ResourceV1{X: c.X, Y: c.Y})
	}
	return snap, nil
}

// ConfigFromSnapshot rebuilds the Config a snapshot was taken with.
// StrictInvariants is an operational flag and is not persisted.
func ConfigFromSnapshot(s snapshot.SnapshotV1) Config {
	c := s.Config
	cfg := Config{
		Size:               c.Size,
		Seed:               c.Seed,
		ResourceCount:      c.ResourceCount,
		InitialEnergyMin:   c.InitialEnergyMin,
		InitialEnergyMax:   c.InitialEnergyMax,
		ResourceEnergy:     c.ResourceEnergy,
		IdleCost:           c.IdleCost,
		MoveCost:           c.MoveCost,
		ReproductionEnergy: c.ReproductionEnergy,
		MoveRate:           c.MoveRate,
		VisionReach:        c.VisionReach,
		GrowthRate:         s.Growth.Rate,
		Speed:              s.Speed,
	}
	for _, p := range c.Population {
		cfg.Population = append(cfg.Population, PopulationEntry{Strategy: p.Strategy, Count: p.Count})
	}
	return cfg
}

// RestoreSnapshot rebuilds a world and its run metadata from a snapshot.
func RestoreSnapshot(s snapshot.SnapshotV1, strategies *behavior.Registry, strict bool) (*World, RunMeta, error) {
	if s.Header.Version != snapshot.Version {
		return nil, RunMeta{}, fmt.Errorf("restore: %w: %d", snapshot.ErrVersion, s.Header.Version)
	}
	cfg := ConfigFromSnapshot(s)
	cfg.StrictInvariants = strict
	st := State{
		Tick:   s.Header.Tick,
		NextID: s.Counters.NextAgent,
		Growth: GrowthState{Rate: s.Growth.Rate, Elapsed: s.Growth.Elapsed, Interval: s.Growth.Interval},
		RNG:    s.RNG,
		Totals: Totals{
			Ticks:            s.Counters.Ticks,
			Births:           s.Counters.Births,
			Deaths:           s.Counters.Deaths,
			Moves:            s.Counters.Moves,
			Looks:            s.Counters.Looks,
			Eaten:            s.Counters.Eaten,
			Grown:            s.Counters.Grown,
			GrowthEvents:     s.Counters.GrowthEvents,
			RejectedStale:    s.Counters.RejectedStale,
			RejectedOccupied: s.Counters.RejectedOccupied,
		},
	}
	for _, a := range s.Agents {
		st.Agents = append(st.Agents, AgentRecord{
			Pos:        grid.Coord{X: a.X, Y: a.Y},
			AgentState: AgentState{ID: a.ID, Energy: a.Energy, Strategy: a.Strategy, Sigil: a.Sigil, State: a.State},
		})
	}
	for _, r := range s.Resources {
		st.Resources = append(st.Resources, grid.Coord{X: r.X, Y: r.Y})
	}
	w, err := Restore(cfg, strategies, st)
	if err != nil {
		return nil, RunMeta{}, err
	}
	meta := RunMeta{RunID: s.Header.RunID, Restarts: s.Restarts, StartedAt: s.StartedAt, Speed: w.cfg.Speed}
	return w, meta, nil
}
