//go:build ebiten

package window

import (
	"context"
	"errors"
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"eyes.sim/internal/sim/world"
)

const (
	panelWidth   = 200
	panelPadding = 8
	lineHeight   = 16
)

// Available reports whether this build can open a window.
func Available() bool { return true }

// Game adapts the runner's frame stream to the ebiten.Game interface.
type Game struct {
	ctx      context.Context
	frames   <-chan world.Frame
	commands chan<- world.Command

	scale int
	last  world.Frame
	have  bool

	img *ebiten.Image
	buf []byte
}

func newGame(ctx context.Context, frames <-chan world.Frame, commands chan<- world.Command, size, scale int) *Game {
	return &Game{
		ctx:      ctx,
		frames:   frames,
		commands: commands,
		scale:    scale,
		img:      ebiten.NewImage(size, size),
		buf:      make([]byte, 4*size*size),
	}
}

// Update drains the newest frame and turns key presses into commands.
func (g *Game) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
drain:
	for {
		select {
		case f, ok := <-g.frames:
			if !ok {
				return ebiten.Termination
			}
			g.last, g.have = f, true
		default:
			break drain
		}
	}

	if cmd := g.keyCommand(); cmd != world.CmdNone {
		select {
		case g.commands <- cmd:
		default:
			// Runner is behind; drop the key press.
		}
		if cmd == world.CmdQuit {
			return ebiten.Termination
		}
	}
	return nil
}

func (g *Game) keyCommand() world.Command {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyQ), inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		return world.CmdQuit
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		if g.last.Paused {
			return world.CmdResume
		}
		return world.CmdPause
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		return world.CmdReset
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		return world.CmdSave
	case inpututil.IsKeyJustPressed(ebiten.KeyL):
		return world.CmdLoad
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowUp):
		return world.CmdSpeedUp
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowDown):
		return world.CmdSpeedDown
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight):
		return world.CmdGrowthRateUp
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft):
		return world.CmdGrowthRateDown
	}
	return world.CmdNone
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 20, G: 20, B: 24, A: 255})
	if !g.have || g.last.Grid.Len() != len(g.buf)/4 {
		return
	}
	FillRGBA(g.buf, &g.last.Grid)
	g.img.WritePixels(g.buf)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.img, op)

	f := g.last
	lines := []string{
		fmt.Sprintf("ticks      %d", f.Tick),
		fmt.Sprintf("ticks/s    %.0f", f.TicksPerSec),
		fmt.Sprintf("restarts   %d", f.Restarts),
		fmt.Sprintf("living     %d", f.Agents),
		fmt.Sprintf("deceased   %d", f.Deceased),
		fmt.Sprintf("resources  %d", f.Resources),
		fmt.Sprintf("speed      %d", f.Speed),
		fmt.Sprintf("growth     %d", f.GrowthRate),
	}
	if f.Paused {
		lines = append(lines, "", "PAUSED")
	}
	x := f.Size*g.scale + panelPadding
	for i, s := range lines {
		text.Draw(screen, s, basicfont.Face7x13, x, panelPadding+lineHeight*(i+1), color.RGBA{R: 220, G: 220, B: 230, A: 255})
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	side := g.img.Bounds().Dx() * g.scale
	return side + panelWidth, side
}

// Run opens a window and blocks until it is closed. It must be called from
// the main goroutine.
func Run(ctx context.Context, frames <-chan world.Frame, commands chan<- world.Command, size, scale int) error {
	if scale <= 0 {
		scale = 8
	}
	game := newGame(ctx, frames, commands, size, scale)
	ebiten.SetWindowTitle("eyes")
	ebiten.SetWindowSize(size*scale+panelWidth, size*scale)
	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}
