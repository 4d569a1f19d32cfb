package world

import (
	"fmt"

	"eyes.sim/internal/sim/grid"
)

// InvariantError reports a grid/registry disagreement. It indicates a bug,
// never bad input.
type InvariantError struct {
	ID     uint64
	Coord  grid.Coord
	Cell   grid.Cell
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: agent %d at %v (cell %s/%d): %s",
		e.ID, e.Coord, e.Cell.Kind, e.Cell.ID, e.Reason)
}

// CheckInvariants scans the whole grid. It is O(size^2) and meant for tests
// and strict mode.
func (w *World) CheckInvariants() error {
	for _, id := range w.reg.keys() {
		a := w.reg.get(id)
		if got := w.grid.Get(a.Pos); !got.HoldsAgent(id) {
			return &InvariantError{ID: id, Coord: a.Pos, Cell: got, Reason: "grid does not hold registered agent"}
		}
		if a.ID != id {
			return &InvariantError{ID: id, Coord: a.Pos, Cell: w.grid.Get(a.Pos), Reason: fmt.Sprintf("agent carries id %d", a.ID)}
		}
	}
	agentCells := 0
	for c, cell := range w.grid.Cells() {
		if !cell.IsAgent() {
			continue
		}
		agentCells++
		a := w.reg.get(cell.ID)
		if a == nil || a.Pos != c {
			return &InvariantError{ID: cell.ID, Coord: c, Cell: cell, Reason: "grid holds unregistered or misplaced agent"}
		}
	}
	if agentCells != w.reg.len() {
		return &InvariantError{Reason: fmt.Sprintf("%d agent cells for %d registered agents", agentCells, w.reg.len())}
	}
	if got, want := w.grid.ResourceCount(), w.grid.CountKind(grid.Resource); got != want {
		return &InvariantError{Reason: fmt.Sprintf("resource count %d, grid holds %d", got, want)}
	}
	return nil
}
