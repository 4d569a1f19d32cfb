package behavior

import (
	"encoding/json"

	"eyes.sim/internal/sim/grid"
)

const (
	LookerName = "looker"

	lookerTicksPerMove = 500
	lookerReproScale   = 10
)

type lookerPhase uint8

const (
	lookerLook lookerPhase = iota
	lookerMove
)

// Looker heads in one direction, alternating a Move and a Look every
// TicksPerMove ticks, and steers toward resource it sees ahead or at its
// flanks.
type Looker struct {
	p Params

	Dir          grid.Direction
	next         lookerPhase
	wait         int
	TicksPerMove int
	ReproScale   int
}

func NewLooker(p Params) Strategy {
	return &Looker{
		p:            p,
		Dir:          grid.North,
		next:         lookerLook,
		wait:         lookerTicksPerMove,
		TicksPerMove: lookerTicksPerMove,
		ReproScale:   lookerReproScale,
	}
}

func (s *Looker) Name() string { return LookerName }
func (s *Looker) Sigil() rune  { return 'L' }

func (s *Looker) Decide(ctx Context) Action {
	if ctx.Energy >= s.p.ReproductionEnergy*s.ReproScale {
		c := *s
		return Reproduce(&c)
	}
	if s.wait > 0 {
		s.wait--
		return None()
	}
	s.wait = s.TicksPerMove
	if s.next == lookerMove {
		s.next = lookerLook
		return Move(s.Dir)
	}
	s.next = lookerMove
	return Look(s.Dir)
}

func (s *Looker) Vision(v grid.Vision) {
	switch v.Toward(s.Dir).Kind {
	case grid.Resource:
		s.wait = 0
	case grid.Wall, grid.Agent:
		s.Dir = s.Dir.Opposite()
	case grid.Empty:
		for _, turn := range []grid.Direction{s.Dir.Left90(), s.Dir.Right90()} {
			if v.Toward(turn).IsResource() {
				s.Dir = turn
				s.wait = 0
			}
		}
	}
}

type lookerState struct {
	Dir          grid.Direction `json:"dir"`
	Next         lookerPhase    `json:"next"`
	Wait         int            `json:"wait"`
	TicksPerMove int            `json:"ticks_per_move"`
	ReproScale   int            `json:"repro_scale"`
}

func (s *Looker) MarshalState() ([]byte, error) {
	return json.Marshal(lookerState{
		Dir:          s.Dir,
		Next:         s.next,
		Wait:         s.wait,
		TicksPerMove: s.TicksPerMove,
		ReproScale:   s.ReproScale,
	})
}

func (s *Looker) UnmarshalState(b []byte) error {
	var st lookerState
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	s.Dir = st.Dir % 8
	s.next = st.Next
	s.wait = st.Wait
	s.TicksPerMove = st.TicksPerMove
	s.ReproScale = st.ReproScale
	return nil
}
