package hwsim

// PIT ports.
const (
	PITChannel0Port = 0x40
	PITCommandPort  = 0x43
)

// PIT models the programming interface of channel 0 of an 8253/8254.
type PIT struct {
	mode    uint8
	reload  uint16
	written int
}

// NewPIT returns an unprogrammed timer.
func NewPIT() *PIT {
	return &PIT{}
}

// Ports returns the ports decoded by the timer.
func (p *PIT) Ports() []uint16 {
	return []uint16{PITChannel0Port, PITCommandPort}
}

// Mode returns the last command byte written for channel 0.
func (p *PIT) Mode() uint8 {
	return p.mode
}

// Reload returns the channel 0 reload value.
func (p *PIT) Reload() uint16 {
	return p.reload
}

// In implements PortDevice.
func (p *PIT) In(port uint16) uint8 {
	if port == PITChannel0Port {
		return uint8(p.reload)
	}
	return 0xff
}

// Out implements PortDevice.
func (p *PIT) Out(port uint16, value uint8) {
	switch port {
	case PITCommandPort:
		if value>>6 == 0 {
			p.mode = value
			p.written = 0
		}
	case PITChannel0Port:
		// lobyte/hibyte access mode
		if p.written == 0 {
			p.reload = p.reload&0xff00 | uint16(value)
		} else {
			p.reload = p.reload&0x00ff | uint16(value)<<8
		}
		p.written = (p.written + 1) % 2
	}
}
