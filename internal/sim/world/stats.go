package world

// TickStats describes what happened during one Tick.
type TickStats struct {
	Tick uint64

	Births int
	Deaths int
	Moves  int
	Looks  int
	Eaten  int

	Grown       int
	GrowthFired bool

	RejectedStale    int
	RejectedOccupied int

	// Population after the apply phase.
	Agents    int
	Resources int
}

// Totals accumulate TickStats over the life of a world.
type Totals struct {
	Ticks            uint64
	Births           uint64
	Deaths           uint64
	Moves            uint64
	Looks            uint64
	Eaten            uint64
	Grown            uint64
	GrowthEvents     uint64
	RejectedStale    uint64
	RejectedOccupied uint64
}

func (t *Totals) add(st TickStats) {
	t.Ticks++
	t.Births += uint64(st.Births)
	t.Deaths += uint64(st.Deaths)
	t.Moves += uint64(st.Moves)
	t.Looks += uint64(st.Looks)
	t.Eaten += uint64(st.Eaten)
	t.Grown += uint64(st.Grown)
	if st.GrowthFired {
		t.GrowthEvents++
	}
	t.RejectedStale += uint64(st.RejectedStale)
	t.RejectedOccupied += uint64(st.RejectedOccupied)
}

type StatsBucket struct {
	Births int
	Deaths int
	Eaten  int
	Grown  int
}

// Stats keeps a rolling window of activity split into fixed-size buckets.
type Stats struct {
	bucketTicks uint64
	windowTicks uint64

	buckets []StatsBucket
	curIdx  int
	curBase uint64 // start tick (inclusive) of current bucket
}

func NewStats(bucketTicks, windowTicks uint64) *Stats {
	if bucketTicks <= 0 {
		bucketTicks = 100
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := int(windowTicks / bucketTicks)
	if n < 1 {
		n = 1
	}
	return &Stats{
		bucketTicks: bucketTicks,
		windowTicks: uint64(n) * bucketTicks,
		buckets:     make([]StatsBucket, n),
	}
}

func (s *Stats) rotate(nowTick uint64) {
	if s == nil {
		return
	}
	// Move forward until nowTick is in [curBase, curBase+bucketTicks).
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

func (s *Stats) Record(st TickStats) {
	if s == nil {
		return
	}
	s.rotate(st.Tick)
	b := &s.buckets[s.curIdx]
	b.Births += st.Births
	b.Deaths += st.Deaths
	b.Eaten += st.Eaten
	b.Grown += st.Grown
}

func (s *Stats) WindowTicks() uint64 {
	if s == nil {
		return 0
	}
	return s.windowTicks
}

// Summarize sums the buckets covering the window ending at nowTick.
func (s *Stats) Summarize(nowTick uint64) StatsBucket {
	if s == nil {
		return StatsBucket{}
	}
	s.rotate(nowTick)
	var out StatsBucket
	for _, b := range s.buckets {
		out.Births += b.Births
		out.Deaths += b.Deaths
		out.Eaten += b.Eaten
		out.Grown += b.Grown
	}
	return out
}

// resetAt clears the window and aligns the current bucket with tick.
func (s *Stats) resetAt(tick uint64) {
	if s == nil {
		return
	}
	clear(s.buckets)
	s.curIdx = 0
	s.curBase = tick - tick%s.bucketTicks
}
