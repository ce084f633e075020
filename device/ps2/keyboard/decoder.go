package keyboard

// LED bits understood by the set-LEDs device command.
const (
	LEDScrollLock = 1 << 0
	LEDNumLock    = 1 << 1
	LEDCapsLock   = 1 << 2
)

// Modifiers is the modifier and lock state at the time of an event.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool

	CapsLock   bool
	NumLock    bool
	ScrollLock bool
}

// LEDs returns the LED byte that reflects the lock state.
func (m Modifiers) LEDs() uint8 {
	var leds uint8
	if m.ScrollLock {
		leds |= LEDScrollLock
	}
	if m.NumLock {
		leds |= LEDNumLock
	}
	if m.CapsLock {
		leds |= LEDCapsLock
	}
	return leds
}

// Event is delivered to keyboard subscribers for every scancode.
type Event struct {
	// Scancode is the raw byte read from the controller, including the
	// release bit.
	Scancode uint8

	// Char is the translated character or 0 if the key has none.
	Char byte

	Pressed bool
	Mods    Modifiers
}

// Decoder tracks modifier state across scancodes and translates them into
// events. The zero value uses USKeymap.
type Decoder struct {
	Mods   Modifiers
	Keymap *Keymap
}

// Feed decodes one scancode. The second return value reports that a lock key
// toggled and the keyboard LEDs must be resynchronized.
func (d *Decoder) Feed(scancode uint8) (Event, bool) {
	var (
		code       = scancode &^ releaseBit
		pressed    = scancode&releaseBit == 0
		ledsChange bool
	)

	switch code {
	case ScanLeftShift, ScanRightShift:
		d.Mods.Shift = pressed
	case ScanLeftCtrl:
		d.Mods.Ctrl = pressed
	case ScanLeftAlt:
		d.Mods.Alt = pressed
	case ScanCapsLock:
		if pressed {
			d.Mods.CapsLock = !d.Mods.CapsLock
			ledsChange = true
		}
	case ScanNumLock:
		if pressed {
			d.Mods.NumLock = !d.Mods.NumLock
			ledsChange = true
		}
	case ScanScrollLock:
		if pressed {
			d.Mods.ScrollLock = !d.Mods.ScrollLock
			ledsChange = true
		}
	}

	keymap := d.Keymap
	if keymap == nil {
		keymap = &USKeymap
	}

	ch := keymap[code]
	if d.Mods.Shift && ch >= 'a' && ch <= 'z' {
		ch -= 'a' - 'A'
	}

	return Event{
		Scancode: scancode,
		Char:     ch,
		Pressed:  pressed,
		Mods:     d.Mods,
	}, ledsChange
}

// Reset clears all modifier and lock state.
func (d *Decoder) Reset() {
	d.Mods = Modifiers{}
}
