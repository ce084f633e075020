package main

import (
	"github.com/CodeDestroyer19/universeK/device/ps2/keyboard"
	"github.com/CodeDestroyer19/universeK/device/ps2/mouse"
	"github.com/CodeDestroyer19/universeK/internal/scenario"
)

// Control keys understood in interactive mode.
const (
	keyCtrlB     = 0x02 // click the left button
	keyCtrlC     = 0x03
	keyCtrlD     = 0x04
	keyTab       = 0x09
	keyCtrlL     = 0x0c // toggle caps lock
	keyCR        = 0x0d
	keyEscape    = 0x1b
	keyBackspace = 0x7f
)

func tap(code uint8) scenario.Step {
	return scenario.Step{Key: &code}
}

func move(dx, dy int, buttons uint8) scenario.Step {
	return scenario.Step{Mouse: &scenario.MouseMove{DX: dx, DY: dy, Buttons: buttons}}
}

// decodeHostInput translates bytes read from a raw-mode terminal into
// scenario steps. Arrow keys move the pointer by step cells. An incomplete
// escape sequence at the end of buf is returned in rest so that it can be
// completed by the next read.
func decodeHostInput(buf []byte, step int) (steps []scenario.Step, rest []byte, quit bool) {
	for i := 0; i < len(buf); i++ {
		switch ch := buf[i]; ch {
		case keyCtrlC, keyCtrlD:
			return steps, nil, true
		case keyCR:
			steps = append(steps, tap(keyboard.ScanEnter))
		case keyBackspace:
			steps = append(steps, tap(keyboard.ScanBackspace))
		case keyTab:
			steps = append(steps, tap(0x0f))
		case keyCtrlL:
			steps = append(steps, tap(keyboard.ScanCapsLock))
		case keyCtrlB:
			steps = append(steps, move(0, 0, mouse.ButtonLeft), move(0, 0, 0))
		case keyEscape:
			if i+1 == len(buf) || (buf[i+1] == '[' && i+2 == len(buf)) {
				return steps, buf[i:], false
			}
			if buf[i+1] != '[' {
				steps = append(steps, tap(keyboard.ScanEscape))
				continue
			}

			switch buf[i+2] {
			case 'A':
				steps = append(steps, move(0, step, 0))
			case 'B':
				steps = append(steps, move(0, -step, 0))
			case 'C':
				steps = append(steps, move(step, 0, 0))
			case 'D':
				steps = append(steps, move(-step, 0, 0))
			}
			i += 2
		default:
			if _, _, ok := scenario.ScancodeFor(ch); ok {
				steps = append(steps, scenario.Step{Type: string(ch)})
			}
		}
	}
	return steps, nil, false
}
