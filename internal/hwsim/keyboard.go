package hwsim

// PS/2 device command and response bytes shared by the keyboard and mouse
// models.
const (
	DevReset       = 0xff
	DevResend      = 0xfe
	DevSetDefaults = 0xf6
	DevDisable     = 0xf5
	DevEnable      = 0xf4
	DevSampleRate  = 0xf3
	DevIdentify    = 0xf2
	DevSetLEDs     = 0xed

	RespACK          = 0xfa
	RespResend       = 0xfe
	RespSelfTestPass = 0xaa
	RespSelfTestFail = 0xfc
)

// Faults configures failure injection for a simulated PS/2 device.
type Faults struct {
	// Silent drops every response.
	Silent bool

	// NakCommand answers the given command byte with RespResend instead
	// of an ACK. Zero disables the fault.
	NakCommand uint8

	// FailSelfTest reports RespSelfTestFail after a reset.
	FailSelfTest bool
}

// Keyboard models a PS/2 keyboard emitting scancode set 1 (as seen after
// controller translation).
type Keyboard struct {
	Faults Faults

	scanning     bool
	leds         uint8
	expectingLED bool

	// ReceivedCommands records every byte sent by the host.
	ReceivedCommands []uint8

	// LEDWrites records every LED state set by the host.
	LEDWrites []uint8
}

// NewKeyboard returns a keyboard that has completed its power-on self test.
func NewKeyboard() *Keyboard {
	return &Keyboard{scanning: true}
}

// LEDs returns the current LED state (scroll=1, num=2, caps=4).
func (k *Keyboard) LEDs() uint8 {
	return k.leds
}

// Scanning reports whether the keyboard is sending scancodes.
func (k *Keyboard) Scanning() bool {
	return k.scanning
}

// HandleCommand implements PS2Device.
func (k *Keyboard) HandleCommand(c *I8042, cmd uint8) {
	k.ReceivedCommands = append(k.ReceivedCommands, cmd)

	if k.expectingLED {
		k.expectingLED = false
		k.leds = cmd & 0x07
		k.LEDWrites = append(k.LEDWrites, k.leds)
		k.respond(c, RespACK)
		return
	}

	if k.Faults.NakCommand != 0 && cmd == k.Faults.NakCommand {
		k.respond(c, RespResend)
		return
	}

	switch cmd {
	case DevReset:
		k.scanning = true
		k.leds = 0
		k.respond(c, RespACK)
		if k.Faults.FailSelfTest {
			k.respond(c, RespSelfTestFail)
		} else {
			k.respond(c, RespSelfTestPass)
		}
	case DevSetDefaults:
		k.respond(c, RespACK)
	case DevEnable:
		k.scanning = true
		k.respond(c, RespACK)
	case DevDisable:
		k.scanning = false
		k.respond(c, RespACK)
	case DevSetLEDs:
		k.expectingLED = true
		k.respond(c, RespACK)
	case DevIdentify:
		k.respond(c, RespACK)
		k.respond(c, 0xab)
		k.respond(c, 0x83)
	default:
		k.respond(c, RespResend)
	}
}

func (k *Keyboard) respond(c *I8042, value uint8) {
	if k.Faults.Silent {
		return
	}
	c.QueueKeyboard(value)
}

// Press queues the make code for scancode.
func (k *Keyboard) Press(c *I8042, scancode uint8) {
	if k.scanning {
		c.QueueKeyboard(scancode & 0x7f)
	}
}

// Release queues the break code for scancode.
func (k *Keyboard) Release(c *I8042, scancode uint8) {
	if k.scanning {
		c.QueueKeyboard(scancode | 0x80)
	}
}
