package behavior

import "math/rand/v2"

type rngState struct {
	src *rand.PCG
	r   *rand.Rand
}

func newRNG(seed uint64) rngState {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return rngState{src: src, r: rand.New(src)}
}

// fork derives an independent generator for a child strategy.
func (s rngState) fork() uint64 { return s.r.Uint64() }

func (s rngState) marshal() ([]byte, error) { return s.src.MarshalBinary() }

func (s rngState) unmarshal(b []byte) error { return s.src.UnmarshalBinary(b) }
