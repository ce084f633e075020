// Package render draws driver state on an ANSI terminal: the pointer grid
// tracked by the mouse driver, the recent keyboard input and kernel log lines
// coloured by level.
package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/CodeDestroyer19/universeK/device/ps2/mouse"
)

const (
	emptyCell   = "."
	pointerCell = "+"
	pressedCell = "#"
)

var pointerStyle = ansi.Style{}.Reverse(true)

// Frame is a snapshot of the state to draw.
type Frame struct {
	Width, Height int

	X, Y    int
	Buttons uint8

	// Text is the keyboard input so far; only its tail is shown.
	Text string

	Status string
}

// Rows returns the number of terminal rows Draw uses for f.
func (f Frame) Rows() int {
	return f.Height + 2
}

// Draw clears the screen and renders f. The grid occupies the first Height
// rows, followed by the key log and the status line.
func Draw(w io.Writer, f Frame) error {
	var b strings.Builder

	b.WriteString(ansi.HideCursor)
	b.WriteString(ansi.EraseEntireScreen)
	b.WriteString(ansi.CursorHomePosition)

	row := strings.Repeat(emptyCell, f.Width)
	for y := 0; y < f.Height; y++ {
		b.WriteString(ansi.CursorPosition(1, y+1))
		b.WriteString(row)
	}

	if f.X >= 0 && f.X < f.Width && f.Y >= 0 && f.Y < f.Height {
		cell := pointerCell
		if f.Buttons&(mouse.ButtonLeft|mouse.ButtonRight|mouse.ButtonMiddle) != 0 {
			cell = pressedCell
		}
		b.WriteString(ansi.CursorPosition(f.X+1, f.Y+1))
		b.WriteString(pointerStyle.Styled(cell))
	}

	b.WriteString(ansi.CursorPosition(1, f.Height+1))
	text := Printable(f.Text)
	if excess := ansi.StringWidth(text) - f.Width; excess > 0 {
		text = ansi.TruncateLeft(text, excess, "")
	}
	b.WriteString(text)

	b.WriteString(ansi.CursorPosition(1, f.Height+2))
	b.WriteString(ansi.Truncate(f.Status, f.Width, ""))

	_, err := io.WriteString(w, b.String())
	return err
}

// Restore shows the cursor again and moves it below a frame of the given
// number of rows.
func Restore(w io.Writer, rows int) error {
	_, err := io.WriteString(w, ansi.CursorPosition(1, rows+1)+ansi.ShowCursor)
	return err
}

// Printable replaces the control characters produced by the keymap with
// visible escapes.
func Printable(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch == '\b':
			b.WriteString(`\b`)
		case ch < 0x20 || ch >= 0x7f:
			b.WriteByte('?')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
