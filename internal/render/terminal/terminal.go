// Package terminal draws frames in a tcell screen: the grid on the left and
// a status pane on the right.
package terminal

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"

	"eyes.sim/internal/sim/grid"
	"eyes.sim/internal/sim/world"
)

const (
	statusWidth  = 33
	statusMargin = 14
	dateFormat   = "06-01-02 15:04:05"
)

var (
	styleEmpty    = tcell.StyleDefault.Background(tcell.ColorBlack)
	styleResource = tcell.StyleDefault.Foreground(tcell.ColorGreen).Background(tcell.ColorBlack)
	styleAgent    = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	styleLabel    = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	styleValue    = tcell.StyleDefault
	styleBorder   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	stylePaused   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
)

// canvas is the part of tcell.Screen the drawing code needs.
type canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (int, int)
}

type Renderer struct {
	screen   tcell.Screen
	frames   <-chan world.Frame
	commands chan<- world.Command
	now      func() time.Time

	last     world.Frame
	haveLast bool
	showHelp bool
}

// Open initialises the terminal. Call Close to restore it.
func Open(frames <-chan world.Frame, commands chan<- world.Command) (*Renderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()
	return New(screen, frames, commands), nil
}

func New(screen tcell.Screen, frames <-chan world.Frame, commands chan<- world.Command) *Renderer {
	return &Renderer{
		screen:   screen,
		frames:   frames,
		commands: commands,
		now:      time.Now,
	}
}

func (r *Renderer) Close() { r.screen.Fini() }

// Run draws frames and forwards key presses until quit is pressed, the
// frame channel closes or ctx ends.
func (r *Renderer) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := r.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-r.frames:
			if !ok {
				return nil
			}
			r.last, r.haveLast = f, true
			r.redraw()
		case ev := <-events:
			if !r.handleEvent(ctx, ev) {
				return nil
			}
		}
	}
}

// handleEvent returns false when the renderer should stop.
func (r *Renderer) handleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		cmd, help := KeyCommand(ev.Key(), ev.Rune(), r.last.Paused)
		if help {
			r.showHelp = !r.showHelp
			r.redraw()
			return true
		}
		if cmd == world.CmdNone {
			return true
		}
		select {
		case r.commands <- cmd:
		case <-ctx.Done():
			return false
		}
		return cmd != world.CmdQuit
	case *tcell.EventResize:
		r.screen.Sync()
		r.redraw()
	}
	return true
}

func (r *Renderer) redraw() {
	r.screen.Clear()
	if r.haveLast {
		draw(r.screen, r.last, r.now())
	}
	if r.showHelp {
		drawHelp(r.screen)
	}
	r.screen.Show()
}

// draw lays out the grid and the status pane for f.
func draw(c canvas, f world.Frame, now time.Time) {
	w, h := c.Size()
	gridW := min(max(w-statusWidth, 0), f.Size)
	gridH := min(max(h, 0), f.Size)
	drawGrid(c, &f.Grid, gridW, gridH)

	paneW := min(statusWidth, w-gridW)
	if paneW < 3 || h < 3 {
		return
	}
	box(c, gridW, 0, paneW, h)

	runtime := max(now.Sub(f.StartedAt), 0)
	rows := []struct{ label, value string }{
		{"ticks:", humanize.Comma(int64(f.Tick))},
		{"ticks/s:", humanize.Comma(int64(f.TicksPerSec))},
		{"restarts:", humanize.Comma(int64(f.Restarts))},
		{"started:", f.StartedAt.Local().Format(dateFormat)},
		{"runtime:", humanize.Comma(int64(runtime / time.Second))},
		{},
		{"living:", humanize.Comma(int64(f.Agents))},
		{"deceased:", humanize.Comma(int64(f.Deceased))},
		{"resources:", humanize.Comma(int64(f.Resources))},
		{"window:", humanize.Comma(int64(f.WindowTicks))},
		{"births:", humanize.Comma(int64(f.Window.Births))},
		{"deaths:", humanize.Comma(int64(f.Window.Deaths))},
		{},
		{"speed:", humanize.Comma(int64(f.Speed))},
		{"growth rate:", humanize.Comma(int64(f.GrowthRate))},
	}
	y := 1
	for _, row := range rows {
		if row.label != "" {
			status(c, gridW, paneW, h, y, row.label, row.value)
		}
		y++
	}
	if f.Paused && y+1 < h-1 {
		text(c, gridW+1, y+1, paneW-2, "PAUSED", stylePaused)
	}
	footer(c, gridW, paneW, h, " q: quit, h: help ")
}

func drawGrid(c canvas, g *grid.Grid, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cell := g.Get(grid.Coord{X: x, Y: y})
			switch cell.Kind {
			case grid.Resource:
				c.SetContent(x, y, 'o', nil, styleResource)
			case grid.Agent:
				c.SetContent(x, y, cell.Sigil, nil, styleAgent)
			default:
				c.SetContent(x, y, ' ', nil, styleEmpty)
			}
		}
	}
}

func status(c canvas, x0, w, h, y int, label, value string) {
	if y >= h-1 || y <= 0 {
		return
	}
	text(c, x0+1, y, statusMargin-1, label, styleLabel)
	text(c, x0+statusMargin, y, w-statusMargin-1, value, styleValue)
}

func footer(c canvas, x0, w, h int, s string) {
	left := x0 + max((w-len(s))/2, 1)
	text(c, left, h-1, w-2, s, styleValue)
}

func drawHelp(c canvas) {
	w, h := c.Size()
	bw, bh := 44, len(helpLines)+2
	x0, y0 := max((w-bw)/2, 0), max((h-bh)/2, 0)
	for y := y0; y < y0+bh && y < h; y++ {
		for x := x0; x < x0+bw && x < w; x++ {
			c.SetContent(x, y, ' ', nil, styleValue)
		}
	}
	box(c, x0, y0, bw, bh)
	for i, line := range helpLines {
		text(c, x0+2, y0+1+i, bw-3, line, styleValue)
	}
}

func box(c canvas, x0, y0, w, h int) {
	x1, y1 := x0+w-1, y0+h-1
	for x := x0 + 1; x < x1; x++ {
		c.SetContent(x, y0, tcell.RuneHLine, nil, styleBorder)
		c.SetContent(x, y1, tcell.RuneHLine, nil, styleBorder)
	}
	for y := y0 + 1; y < y1; y++ {
		c.SetContent(x0, y, tcell.RuneVLine, nil, styleBorder)
		c.SetContent(x1, y, tcell.RuneVLine, nil, styleBorder)
	}
	c.SetContent(x0, y0, tcell.RuneULCorner, nil, styleBorder)
	c.SetContent(x1, y0, tcell.RuneURCorner, nil, styleBorder)
	c.SetContent(x0, y1, tcell.RuneLLCorner, nil, styleBorder)
	c.SetContent(x1, y1, tcell.RuneLRCorner, nil, styleBorder)
}

// text writes s at (x, y), truncated to width cells.
func text(c canvas, x, y, width int, s string, style tcell.Style) {
	i := 0
	for _, r := range s {
		if i >= width {
			return
		}
		c.SetContent(x+i, y, r, nil, style)
		i++
	}
}
