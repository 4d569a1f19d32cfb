package world

import (
	"eyes.sim/internal/sim/behavior"
	"eyes.sim/internal/sim/grid"
)

// Agent is registered once its AddAgent update is applied. ID 0 means
// not yet registered.
type Agent struct {
	ID       uint64
	Pos      grid.Coord
	Energy   int
	Strategy behavior.Strategy
	Sigil    rune
}

func NewAgent(pos grid.Coord, energy int, s behavior.Strategy) *Agent {
	return &Agent{Pos: pos, Energy: energy, Strategy: s, Sigil: s.Sigil()}
}

func (a *Agent) cell() grid.Cell { return grid.AgentCell(a.ID, a.Sigil) }

// spawnPoint is where a child lands: one step west, or east at the west wall.
func spawnPoint(parent grid.Coord) grid.Coord {
	if parent.X == 0 {
		return grid.Coord{X: parent.X + 1, Y: parent.Y}
	}
	return grid.Coord{X: parent.X - 1, Y: parent.Y}
}

// computeAgent runs one agent's share of the compute phase. It reads the
// tick-start grid and only writes to the agent itself and the queue.
func (w *World) computeAgent(a *Agent, st *TickStats) {
	a.Energy -= w.cfg.IdleCost
	if a.Energy <= 0 {
		w.queue.Push(Update{Kind: UpdateRemove, ID: a.ID, From: a.Pos})
		return
	}

	act := a.Strategy.Decide(behavior.Context{Tick: w.tick, Energy: a.Energy})
	switch act.Kind {
	case behavior.ActMove:
		to := w.grid.Step(a.Pos, act.Dir)
		a.Energy -= w.cfg.MoveCost
		w.queue.Push(Update{Kind: UpdateMove, ID: a.ID, From: a.Pos, To: to})
	case behavior.ActReproduce:
		if act.Child == nil {
			return
		}
		child := a.Energy / 2
		a.Energy -= child
		w.queue.Push(Update{Kind: UpdateAdd, Agent: NewAgent(spawnPoint(a.Pos), child, act.Child)})
	case behavior.ActLook:
		a.Strategy.Vision(w.grid.Look(a.Pos, act.Dir, w.cfg.VisionReach))
		st.Looks++
	}
}
