package terminal

import (
	"github.com/gdamore/tcell/v2"

	"eyes.sim/internal/sim/world"
)

// KeyCommand maps a key press to a runner command. Space toggles between
// PAUSE and RESUME depending on the last frame seen. help reports the help
// key, which is handled locally.
func KeyCommand(key tcell.Key, r rune, paused bool) (cmd world.Command, help bool) {
	switch key {
	case tcell.KeyUp:
		return world.CmdSpeedUp, false
	case tcell.KeyDown:
		return world.CmdSpeedDown, false
	case tcell.KeyRight:
		return world.CmdGrowthRateUp, false
	case tcell.KeyLeft:
		return world.CmdGrowthRateDown, false
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return world.CmdQuit, false
	case tcell.KeyRune:
	default:
		return world.CmdNone, false
	}

	switch r {
	case 'q':
		return world.CmdQuit, false
	case 'r':
		return world.CmdReset, false
	case ' ':
		if paused {
			return world.CmdResume, false
		}
		return world.CmdPause, false
	case 's':
		return world.CmdSave, false
	case 'l':
		return world.CmdLoad, false
	case 'h':
		return world.CmdNone, true
	}
	return world.CmdNone, false
}

var helpLines = []string{
	"-------------- COMMANDS ---------------",
	"",
	"             q:   quit",
	"             r:   reset world",
	"         space:   pause/resume",
	"             s:   save snapshot",
	"             l:   load latest snapshot",
	"       up/down:   speed up/down",
	"    left/right:   growth rate up/down",
	"             h:   toggle this help",
	"",
	"---------------------------------------",
	"",
	"  launch with -reset to rewrite the",
	"  tuning file with defaults",
}
