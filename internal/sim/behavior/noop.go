package behavior

import "eyes.sim/internal/sim/grid"

const NoopName = "noop"

// Noop never acts. Useful as a resource sink and for tests.
type Noop struct{}

func NewNoop(Params) Strategy { return Noop{} }

func (Noop) Name() string          { return NoopName }
func (Noop) Sigil() rune           { return 'N' }
func (Noop) Decide(Context) Action { return None() }
func (Noop) Vision(grid.Vision)    {}
