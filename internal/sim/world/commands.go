package world

import (
	"fmt"
	"strings"
)

// Command is a coarse control request from a renderer. Commands are
// applied at tick boundaries, one per boundary, in arrival order.
type Command uint8

const (
	CmdNone Command = iota
	CmdQuit
	CmdReset
	CmdPause
	CmdResume
	CmdSpeedUp
	CmdSpeedDown
	CmdGrowthRateUp
	CmdGrowthRateDown
	CmdSave
	CmdLoad
)

var commandNames = [...]string{
	CmdNone:           "NONE",
	CmdQuit:           "QUIT",
	CmdReset:          "RESET",
	CmdPause:          "PAUSE",
	CmdResume:         "RESUME",
	CmdSpeedUp:        "SPEED_UP",
	CmdSpeedDown:      "SPEED_DOWN",
	CmdGrowthRateUp:   "GROWTH_RATE_UP",
	CmdGrowthRateDown: "GROWTH_RATE_DOWN",
	CmdSave:           "SAVE",
	CmdLoad:           "LOAD",
}

func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

func ParseCommand(s string) (Command, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range commandNames {
		if n == u {
			return Command(i), nil
		}
	}
	return CmdNone, fmt.Errorf("unknown command %q", s)
}

// CommandNames lists every command in wire form.
func CommandNames() []string {
	out := make([]string, len(commandNames))
	copy(out, commandNames[:])
	return out
}
