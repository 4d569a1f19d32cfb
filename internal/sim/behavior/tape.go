package behavior

import (
	"encoding/json"
	"fmt"

	"eyes.sim/internal/sim/grid"
)

const (
	TapeName = "tape"

	TapeLen          = 1000
	tapeStepsPerTick = 16
	tapeRegisters    = 5
	// Register that receives the kind of the cell ahead after a Look.
	tapeSeeRegister = 4
	// Expected number of flipped bits per 1000 words in a child tape.
	tapeMutationPermille = 5
)

// Opcodes live in the low 4 bits of a tape word; the upper 12 bits are the
// operand.
const (
	OpNop uint16 = iota
	OpLoadI
	OpLoadR
	OpStore
	OpInc
	OpDec
	OpJmp
	OpJz
	OpJnz
	OpEnergy
	OpMove
	OpLook
	OpBreed
	OpSee
	OpAdd
	OpHalt
)

func Encode(op, arg uint16) uint16 { return op&0xF | arg<<4 }

func decode(w uint16) (op, arg uint16) { return w & 0xF, w >> 4 }

// Tape is a tiny register machine. Each tick it executes instructions from
// its tape until one yields an action or the step budget runs out.
type Tape struct {
	p   Params
	rng rngState

	IP       uint16
	A        uint16
	I        [tapeRegisters]uint16
	Mutation int // permille
	Genome   []uint16
}

func NewTape(p Params) Strategy {
	t := &Tape{p: p, rng: newRNG(p.Seed), Mutation: tapeMutationPermille}
	t.Genome = make([]uint16, TapeLen)
	for i := range t.Genome {
		t.Genome[i] = uint16(t.rng.r.Uint32())
	}
	return t
}

// NewTapeProgram builds a tape running the given program from the start.
// Shorter programs are padded with OpHalt.
func NewTapeProgram(p Params, program []uint16) *Tape {
	t := &Tape{p: p, rng: newRNG(p.Seed), Mutation: tapeMutationPermille}
	t.Genome = make([]uint16, TapeLen)
	for i := range t.Genome {
		t.Genome[i] = OpHalt
	}
	copy(t.Genome, program)
	return t
}

func (t *Tape) Name() string { return TapeName }
func (t *Tape) Sigil() rune  { return 'G' }

func (t *Tape) Decide(ctx Context) Action {
	for step := 0; step < tapeStepsPerTick; step++ {
		op, arg := decode(t.Genome[t.IP])
		t.IP = (t.IP + 1) % uint16(len(t.Genome))

		switch op {
		case OpLoadI:
			t.A = arg
		case OpLoadR:
			t.A = t.I[int(arg)%tapeRegisters]
		case OpStore:
			t.I[int(arg)%tapeRegisters] = t.A
		case OpInc:
			t.A++
		case OpDec:
			t.A--
		case OpJmp:
			t.IP = arg % uint16(len(t.Genome))
		case OpJz:
			if t.A == 0 {
				t.IP = arg % uint16(len(t.Genome))
			}
		case OpJnz:
			if t.A != 0 {
				t.IP = arg % uint16(len(t.Genome))
			}
		case OpEnergy:
			t.A = energyWord(ctx.Energy)
		case OpMove:
			return Move(grid.Direction(t.A % 8))
		case OpLook:
			return Look(grid.Direction(t.A % 8))
		case OpBreed:
			if ctx.Energy >= t.p.ReproductionEnergy {
				return Reproduce(t.child())
			}
		case OpSee:
			t.A = t.I[tapeSeeRegister]
		case OpAdd:
			t.A += t.I[int(arg)%tapeRegisters]
		case OpHalt:
			return None()
		}
	}
	return None()
}

// energyWord scales energy into a register, in hundreds.
func energyWord(e int) uint16 {
	if e <= 0 {
		return 0
	}
	if e/100 > 0xFFFF {
		return 0xFFFF
	}
	return uint16(e / 100)
}

func (t *Tape) Vision(v grid.Vision) {
	t.I[tapeSeeRegister] = uint16(v.Front().Kind)
}

func (t *Tape) child() *Tape {
	cp := t.p
	cp.Seed = t.rng.fork()
	c := &Tape{p: cp, rng: newRNG(cp.Seed), Mutation: t.Mutation}
	c.Genome = make([]uint16, len(t.Genome))
	copy(c.Genome, t.Genome)
	for i := range c.Genome {
		if t.Mutation > 0 && t.rng.r.IntN(1000) < t.Mutation {
			c.Genome[i] ^= 1 << t.rng.r.IntN(16)
		}
	}
	return c
}

type tapeState struct {
	IP       uint16                `json:"ip"`
	A        uint16                `json:"a"`
	I        [tapeRegisters]uint16 `json:"i"`
	Mutation int                   `json:"mutation"`
	Genome   []uint16              `json:"genome"`
	RNG      []byte                `json:"rng"`
}

func (t *Tape) MarshalState() ([]byte, error) {
	rb, err := t.rng.marshal()
	if err != nil {
		return nil, err
	}
	return json.Marshal(tapeState{IP: t.IP, A: t.A, I: t.I, Mutation: t.Mutation, Genome: t.Genome, RNG: rb})
}

func (t *Tape) UnmarshalState(b []byte) error {
	var st tapeState
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	if len(st.Genome) == 0 {
		return fmt.Errorf("tape state: empty genome")
	}
	if int(st.IP) >= len(st.Genome) {
		return fmt.Errorf("tape state: ip %d out of range", st.IP)
	}
	t.IP, t.A, t.I, t.Mutation, t.Genome = st.IP, st.A, st.I, st.Mutation, st.Genome
	return t.rng.unmarshal(st.RNG)
}
