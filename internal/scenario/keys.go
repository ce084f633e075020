package scenario

import "github.com/CodeDestroyer19/universeK/device/ps2/keyboard"

// reverseKeymap maps a character to the scancode producing it on the US
// layout.
var reverseKeymap = func() (m [128]uint8) {
	for code, ch := range keyboard.USKeymap {
		if ch != 0 && ch < 128 && m[ch] == 0 {
			m[ch] = uint8(code)
		}
	}
	return m
}()

// ScancodeFor returns the set-1 make code that types ch and whether shift
// must be held. The decoder only applies shift to letters, so upper-case
// letters are the only shifted characters.
func ScancodeFor(ch byte) (code uint8, shift bool, ok bool) {
	if ch >= 'A' && ch <= 'Z' {
		ch += 'a' - 'A'
		shift = true
	}
	if ch >= 128 || reverseKeymap[ch] == 0 {
		return 0, false, false
	}
	return reverseKeymap[ch], shift, true
}
