package keyboard

// Scancodes (set 1) with special meaning to the decoder.
const (
	ScanEscape     = 0x01
	ScanBackspace  = 0x0e
	ScanEnter      = 0x1c
	ScanLeftCtrl   = 0x1d
	ScanLeftShift  = 0x2a
	ScanRightShift = 0x36
	ScanLeftAlt    = 0x38
	ScanSpace      = 0x39
	ScanCapsLock   = 0x3a
	ScanNumLock    = 0x45
	ScanScrollLock = 0x46

	// releaseBit is set in the break code of every key.
	releaseBit = 0x80
)

// Keymap translates a scancode (release bit cleared) to a character. A zero
// entry means the key has no printable representation.
type Keymap [128]byte

// USKeymap is the US QWERTY layout.
var USKeymap = Keymap{
	0, 27, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b',
	'\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n',
	0, 'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`',
	0, '\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/', 0,
	'*', 0, ' ',
}
