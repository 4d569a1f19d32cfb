package world

import "eyes.sim/internal/sim/grid"

type UpdateKind uint8

const (
	UpdateAdd UpdateKind = iota
	UpdateMove
	UpdateRemove
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAdd:
		return "ADD"
	case UpdateMove:
		return "MOVE"
	case UpdateRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Update is a pending mutation produced during the compute phase.
type Update struct {
	Kind  UpdateKind
	Agent *Agent // UpdateAdd
	ID    uint64 // UpdateMove, UpdateRemove
	From  grid.Coord
	To    grid.Coord
}

// UpdateQueue is append-only until drained.
type UpdateQueue struct {
	items []Update
}

func (q *UpdateQueue) Push(u Update) { q.items = append(q.items, u) }

func (q *UpdateQueue) Len() int { return len(q.items) }

// drain hands back the pending updates in submission order and empties the
// queue. The returned slice is only valid until the next Push.
func (q *UpdateQueue) drain() []Update {
	out := q.items
	q.items = q.items[:0]
	return out
}

// apply commits queued updates in submission order. Rejections are
// counted and never abort the batch.
func (w *World) apply(st *TickStats) {
	for _, u := range w.queue.drain() {
		var oc outcome
		var ate bool
		switch u.Kind {
		case UpdateAdd:
			oc, ate = w.reg.insert(&w.grid, u.Agent)
			if oc == applied {
				st.Births++
			}
		case UpdateMove:
			oc, ate = w.reg.move(&w.grid, u.ID, u.From, u.To)
			if oc == applied && u.From != u.To {
				st.Moves++
			}
		case UpdateRemove:
			oc = w.reg.remove(&w.grid, u.ID, u.From)
			if oc == applied {
				st.Deaths++
			}
		}
		switch oc {
		case rejectedStale:
			st.RejectedStale++
		case rejectedOccupied:
			st.RejectedOccupied++
		}
		if ate {
			st.Eaten++
		}
	}
}
