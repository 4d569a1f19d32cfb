//go:build !ebiten

package window

import (
	"context"
	"errors"

	"eyes.sim/internal/sim/world"
)

var ErrUnavailable = errors.New("window renderer requires building with the 'ebiten' tag")

// Available reports whether this build can open a window.
func Available() bool { return false }

// Run always fails without the ebiten build tag.
func Run(context.Context, <-chan world.Frame, chan<- world.Command, int, int) error {
	return ErrUnavailable
}
