package hwsim

// Mouse models a standard 3-byte PS/2 mouse on the aux port.
type Mouse struct {
	Faults Faults

	streaming     bool
	expectingRate bool
	sampleRate    uint8

	// ReceivedCommands records every byte sent by the host through the
	// aux port.
	ReceivedCommands []uint8
}

// NewMouse returns a mouse that is powered on but not streaming.
func NewMouse() *Mouse {
	return &Mouse{sampleRate: 100}
}

// Streaming reports whether the mouse reports movement.
func (m *Mouse) Streaming() bool {
	return m.streaming
}

// HandleCommand implements PS2Device.
func (m *Mouse) HandleCommand(c *I8042, cmd uint8) {
	m.ReceivedCommands = append(m.ReceivedCommands, cmd)

	if m.expectingRate {
		m.expectingRate = false
		m.sampleRate = cmd
		m.respond(c, RespACK)
		return
	}

	if m.Faults.NakCommand != 0 && cmd == m.Faults.NakCommand {
		m.respond(c, RespResend)
		return
	}

	switch cmd {
	case DevReset:
		m.streaming = false
		m.sampleRate = 100
		m.respond(c, RespACK)
		if m.Faults.FailSelfTest {
			m.respond(c, RespSelfTestFail)
			return
		}
		m.respond(c, RespSelfTestPass)
		m.respond(c, 0x00) // device id
	case DevSetDefaults:
		m.sampleRate = 100
		m.respond(c, RespACK)
	case DevEnable:
		m.streaming = true
		m.respond(c, RespACK)
	case DevDisable:
		m.streaming = false
		m.respond(c, RespACK)
	case DevSampleRate:
		m.expectingRate = true
		m.respond(c, RespACK)
	case DevIdentify:
		m.respond(c, RespACK)
		m.respond(c, 0x00)
	default:
		m.respond(c, RespResend)
	}
}

func (m *Mouse) respond(c *I8042, value uint8) {
	if m.Faults.Silent {
		return
	}
	c.QueueAux(value)
}

// Packet encodes a movement report. dx and dy are clamped to [-256, 255];
// positive dy means "up" as on real hardware.
func Packet(dx, dy int, buttons uint8) [3]uint8 {
	clamp := func(v int) int {
		switch {
		case v > 255:
			return 255
		case v < -256:
			return -256
		}
		return v
	}
	dx, dy = clamp(dx), clamp(dy)

	b0 := uint8(0x08) | buttons&0x07
	if dx < 0 {
		b0 |= 0x10
	}
	if dy < 0 {
		b0 |= 0x20
	}

	return [3]uint8{b0, uint8(dx), uint8(dy)}
}

// Move queues a movement packet if the mouse is streaming.
func (m *Mouse) Move(c *I8042, dx, dy int, buttons uint8) {
	if !m.streaming {
		return
	}
	for _, b := range Packet(dx, dy, buttons) {
		c.QueueAux(b)
	}
}

// SendRaw queues arbitrary bytes on the aux port regardless of the streaming
// state. It is used to inject malformed packets.
func (m *Mouse) SendRaw(c *I8042, data ...uint8) {
	for _, b := range data {
		c.QueueAux(b)
	}
}
