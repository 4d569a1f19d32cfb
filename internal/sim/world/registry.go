package world

import (
	"slices"

	"eyes.sim/internal/sim/grid"
)

type outcome uint8

const (
	applied outcome = iota
	rejectedStale
	rejectedOccupied
)

// registry is the authoritative id -> agent map. Every mutation is checked
// against the grid it is handed, and the grid is written in the same step.
type registry struct {
	agents         map[uint64]*Agent
	nextID         uint64
	resourceEnergy int
}

func newRegistry(resourceEnergy int) registry {
	return registry{agents: map[uint64]*Agent{}, nextID: 1, resourceEnergy: resourceEnergy}
}

func (r *registry) len() int { return len(r.agents) }

func (r *registry) get(id uint64) *Agent { return r.agents[id] }

// keys returns a sorted point-in-time copy of the registered ids.
func (r *registry) keys() []uint64 {
	out := make([]uint64, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// eat consumes a resource at c, if any, crediting a.
func (r *registry) eat(g *grid.Grid, a *Agent, c grid.Coord) bool {
	if !g.RemoveResource(c) {
		return false
	}
	a.Energy += r.resourceEnergy
	return true
}

// insert registers a at a.Pos with a fresh id. A target already holding an
// agent drops the insert without consuming an id.
func (r *registry) insert(g *grid.Grid, a *Agent) (oc outcome, ate bool) {
	if a == nil || a.ID != 0 || !g.InBounds(a.Pos) {
		return rejectedStale, false
	}
	if g.Get(a.Pos).IsAgent() {
		return rejectedOccupied, false
	}
	ate = r.eat(g, a, a.Pos)
	a.ID = r.nextID
	r.nextID++
	r.agents[a.ID] = a
	g.Set(a.Pos, a.cell())
	return applied, ate
}

// restore registers a under its existing id. Used when rebuilding a world.
func (r *registry) restore(g *grid.Grid, a *Agent) bool {
	if a.ID == 0 || r.agents[a.ID] != nil || !g.InBounds(a.Pos) || !g.Get(a.Pos).IsEmpty() {
		return false
	}
	r.agents[a.ID] = a
	g.Set(a.Pos, a.cell())
	if a.ID >= r.nextID {
		r.nextID = a.ID + 1
	}
	return true
}

// validate reports whether id is registered at from and the grid agrees.
func (r *registry) validate(g *grid.Grid, id uint64, from grid.Coord) (*Agent, bool) {
	a := r.agents[id]
	if a == nil || a.Pos != from || !g.Get(from).HoldsAgent(id) {
		return nil, false
	}
	return a, true
}

func (r *registry) remove(g *grid.Grid, id uint64, from grid.Coord) outcome {
	if _, ok := r.validate(g, id, from); !ok {
		return rejectedStale
	}
	g.Set(from, grid.EmptyCell())
	delete(r.agents, id)
	return applied
}

func (r *registry) move(g *grid.Grid, id uint64, from, to grid.Coord) (oc outcome, ate bool) {
	a, ok := r.validate(g, id, from)
	if !ok {
		return rejectedStale, false
	}
	if to == from {
		return applied, false
	}
	if !g.InBounds(to) {
		return rejectedStale, false
	}
	if g.Get(to).IsAgent() {
		return rejectedOccupied, false
	}
	ate = r.eat(g, a, to)
	g.Set(from, grid.EmptyCell())
	a.Pos = to
	g.Set(to, a.cell())
	return applied, ate
}
