package behavior

import (
	"encoding/json"

	"eyes.sim/internal/sim/grid"
)

const RandomName = "random"

// Random walks in a uniformly random direction with probability MoveRate
// and reproduces as soon as it can afford to.
type Random struct {
	p   Params
	rng rngState
}

func NewRandom(p Params) Strategy {
	return &Random{p: p, rng: newRNG(p.Seed)}
}

func (s *Random) Name() string { return RandomName }
func (s *Random) Sigil() rune  { return 'R' }

func (s *Random) Decide(ctx Context) Action {
	if ctx.Energy >= s.p.ReproductionEnergy {
		child := s.p
		child.Seed = s.rng.fork()
		return Reproduce(NewRandom(child))
	}
	if s.rng.r.Float64() < s.p.MoveRate {
		return Move(grid.Directions[s.rng.r.IntN(len(grid.Directions))])
	}
	return None()
}

func (s *Random) Vision(grid.Vision) {}

type randomState struct {
	RNG []byte `json:"rng"`
}

func (s *Random) MarshalState() ([]byte, error) {
	b, err := s.rng.marshal()
	if err != nil {
		return nil, err
	}
	return json.Marshal(randomState{RNG: b})
}

func (s *Random) UnmarshalState(b []byte) error {
	var st randomState
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	return s.rng.unmarshal(st.RNG)
}
