package hwsim

// Port assignments of the cascaded 8259 pair.
const (
	MasterCommandPort = 0x20
	MasterDataPort    = 0x21
	SlaveCommandPort  = 0xa0
	SlaveDataPort     = 0xa1
)

const (
	picICW1Init      = 0x10
	picICW1NeedsICW4 = 0x01
	picOCW3Flag      = 0x08
	picOCW3ReadISR   = 0x03
	picOCW3ReadIRR   = 0x02
	picOCW2EOI       = 0x20
	picOCW2Specific  = 0x40
	picCascadeLine   = 2
)

// chip is a single 8259A.
type chip struct {
	initStep   int // 0: operational, 2..4: expecting ICW2..ICW4
	needsICW4  bool
	vectorBase uint8
	cascade    uint8
	mode       uint8
	imr        uint8
	irr        uint8
	isr        uint8
	readISR    bool
	eois       int
	inits      int
}

func (c *chip) writeCommand(value uint8) {
	switch {
	case value&picICW1Init != 0:
		c.initStep = 2
		c.needsICW4 = value&picICW1NeedsICW4 != 0
		c.imr = 0
		c.isr = 0
		c.irr = 0
		c.readISR = false
		c.inits++
	case value&picOCW3Flag != 0:
		switch value & 0x03 {
		case picOCW3ReadISR:
			c.readISR = true
		case picOCW3ReadIRR:
			c.readISR = false
		}
	case value&picOCW2EOI != 0:
		c.eois++
		if value&picOCW2Specific != 0 {
			c.isr &^= 1 << (value & 0x07)
			return
		}
		// non-specific EOI clears the highest priority in-service bit
		for line := uint8(0); line < 8; line++ {
			if c.isr&(1<<line) != 0 {
				c.isr &^= 1 << line
				return
			}
		}
	}
}

func (c *chip) readCommand() uint8 {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

func (c *chip) writeData(value uint8) {
	switch c.initStep {
	case 2:
		c.vectorBase = value &^ 0x07
		c.initStep = 3
	case 3:
		c.cascade = value
		c.initStep = 4
		if !c.needsICW4 {
			c.initStep = 0
		}
	case 4:
		c.mode = value
		c.initStep = 0
	default:
		c.imr = value
	}
}

// pending returns the highest priority unmasked request that is not
// blocked by an in-service line of equal or higher priority.
func (c *chip) pending() (uint8, bool) {
	requests := c.irr &^ c.imr
	for line := uint8(0); line < 8; line++ {
		bit := uint8(1) << line
		if c.isr&bit != 0 {
			return 0, false
		}
		if requests&bit != 0 {
			return line, true
		}
	}
	return 0, false
}

// PIC models a master/slave 8259A pair in edge triggered mode. Requests are
// latched by Raise and delivered by Acknowledge.
type PIC struct {
	chips [2]chip
}

// NewPIC returns a PIC pair in its power-on state: every line is masked and
// the vector bases overlap the CPU exceptions until the pair is remapped.
func NewPIC() *PIC {
	p := &PIC{}
	p.chips[0].vectorBase = 0x08
	p.chips[1].vectorBase = 0x70
	p.chips[0].imr = 0xff
	p.chips[1].imr = 0xff
	return p
}

// Ports returns the ports decoded by the pair.
func (p *PIC) Ports() []uint16 {
	return []uint16{MasterCommandPort, MasterDataPort, SlaveCommandPort, SlaveDataPort}
}

// In implements PortDevice.
func (p *PIC) In(port uint16) uint8 {
	switch port {
	case MasterCommandPort:
		return p.chips[0].readCommand()
	case MasterDataPort:
		return p.chips[0].imr
	case SlaveCommandPort:
		return p.chips[1].readCommand()
	case SlaveDataPort:
		return p.chips[1].imr
	}
	return 0xff
}

// Out implements PortDevice.
func (p *PIC) Out(port uint16, value uint8) {
	switch port {
	case MasterCommandPort:
		p.chips[0].writeCommand(value)
	case MasterDataPort:
		p.chips[0].writeData(value)
	case SlaveCommandPort:
		p.chips[1].writeCommand(value)
	case SlaveDataPort:
		p.chips[1].writeData(value)
	}
}

// Raise latches an interrupt request on line (0-15).
func (p *PIC) Raise(line uint8) {
	if line >= 16 {
		return
	}
	if line >= 8 {
		p.chips[1].irr |= 1 << (line - 8)
		return
	}
	p.chips[0].irr |= 1 << line
}

// Pending reports whether Acknowledge would deliver an interrupt.
func (p *PIC) Pending() bool {
	_, ok := p.next()
	return ok
}

func (p *PIC) next() (uint8, bool) {
	master := &p.chips[0]
	slave := &p.chips[1]

	// the cascade input follows the slave's output
	if _, ok := slave.pending(); ok {
		master.irr |= 1 << picCascadeLine
	} else {
		master.irr &^= 1 << picCascadeLine
	}

	line, ok := master.pending()
	if !ok {
		return 0, false
	}
	if line != picCascadeLine {
		return line, true
	}

	slaveLine, ok := slave.pending()
	if !ok {
		return 0, false
	}
	return 8 + slaveLine, true
}

// Acknowledge emulates the INTA cycle: it moves the highest priority request
// to in-service and returns its line and vector.
func (p *PIC) Acknowledge() (line uint8, vector uint8, ok bool) {
	line, ok = p.next()
	if !ok {
		return 0, 0, false
	}

	if line >= 8 {
		slaveBit := uint8(1) << (line - 8)
		p.chips[1].irr &^= slaveBit
		p.chips[1].isr |= slaveBit
		p.chips[0].isr |= 1 << picCascadeLine
		p.chips[0].irr &^= 1 << picCascadeLine
		return line, p.chips[1].vectorBase + line - 8, true
	}

	bit := uint8(1) << line
	p.chips[0].irr &^= bit
	p.chips[0].isr |= bit
	return line, p.chips[0].vectorBase + line, true
}

// Mask returns the combined interrupt mask (slave in the high byte).
func (p *PIC) Mask() uint16 {
	return uint16(p.chips[0].imr) | uint16(p.chips[1].imr)<<8
}

// InService returns the combined in-service register.
func (p *PIC) InService() uint16 {
	return uint16(p.chips[0].isr) | uint16(p.chips[1].isr)<<8
}

// VectorBases returns the vector bases programmed through ICW2.
func (p *PIC) VectorBases() (master, slave uint8) {
	return p.chips[0].vectorBase, p.chips[1].vectorBase
}

// EOIs returns the number of EOI commands received by each chip.
func (p *PIC) EOIs() (master, slave int) {
	return p.chips[0].eois, p.chips[1].eois
}

// Initialized reports whether both chips completed an ICW1-ICW4 sequence.
func (p *PIC) Initialized() bool {
	return p.chips[0].inits > 0 && p.chips[0].initStep == 0 &&
		p.chips[1].inits > 0 && p.chips[1].initStep == 0
}
