// Package behavior holds the per-agent decision contract and the built-in
// strategy families. The tick engine only sees the Strategy interface.
package behavior

import (
	"fmt"

	"eyes.sim/internal/sim/grid"
)

type ActionKind uint8

const (
	ActNone ActionKind = iota
	ActMove
	ActReproduce
	ActLook
)

func (k ActionKind) String() string {
	switch k {
	case ActNone:
		return "NONE"
	case ActMove:
		return "MOVE"
	case ActReproduce:
		return "REPRODUCE"
	case ActLook:
		return "LOOK"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// Action is the single decision an agent makes per tick.
type Action struct {
	Kind  ActionKind
	Dir   grid.Direction // Move, Look
	Child Strategy       // Reproduce
}

func None() Action                    { return Action{Kind: ActNone} }
func Move(d grid.Direction) Action    { return Action{Kind: ActMove, Dir: d} }
func Look(d grid.Direction) Action    { return Action{Kind: ActLook, Dir: d} }
func Reproduce(child Strategy) Action { return Action{Kind: ActReproduce, Child: child} }

// Context is what an agent knows about itself when deciding. Energy is the
// agent's canonical value after the idle cost has been paid.
type Context struct {
	Tick   uint64
	Energy int
}

// Strategy is a pluggable decision unit. Decide must not touch shared
// state; it may mutate the strategy's own private fields.
type Strategy interface {
	Name() string
	Sigil() rune
	Decide(ctx Context) Action
	// Vision delivers the result of the agent's most recent Look.
	Vision(v grid.Vision)
}

// Stateful strategies can persist their private state (including random
// state) across a snapshot.
type Stateful interface {
	MarshalState() ([]byte, error)
	UnmarshalState(b []byte) error
}

// Params are the shared knobs handed to every factory.
type Params struct {
	ReproductionEnergy int
	MoveRate           float64 // 0..1, chance per tick of a random move
	Seed               uint64
}
