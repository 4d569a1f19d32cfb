package world

import "time"

const (
	MinSpeed = 1
	MaxSpeed = 10
)

// Each speed trades how often the loop checks in with renderers against
// how long it sleeps when it does.
var (
	speedTicks = [MaxSpeed]uint64{1, 1, 1, 1, 10, 50, 100, 500, 1000, 1000}
	speedDelay = [MaxSpeed]time.Duration{
		300 * time.Millisecond,
		10 * time.Millisecond,
		2 * time.Millisecond,
		time.Millisecond,
		time.Millisecond,
		time.Millisecond,
		time.Millisecond,
		time.Millisecond,
		time.Millisecond,
		0,
	}
)

// SpeedTicks is the number of ticks between boundary checks at speed s.
func SpeedTicks(s int) uint64 { return speedTicks[min(max(s, MinSpeed), MaxSpeed)-1] }

// SpeedDelay is the sleep taken at each boundary at speed s.
func SpeedDelay(s int) time.Duration { return speedDelay[min(max(s, MinSpeed), MaxSpeed)-1] }
