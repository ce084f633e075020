package cpu

// delayPort is the POST diagnostic port. Writes to it have no side-effects
// but take roughly one microsecond to complete on the ISA bus.
const delayPort = 0x80

// HWPorts routes port accesses to the in/out instructions.
type HWPorts struct{}

// PortReadByte implements Ports.
func (HWPorts) PortReadByte(port uint16) uint8 { return PortReadByte(port) }

// PortWriteByte implements Ports.
func (HWPorts) PortWriteByte(port uint16, val uint8) { PortWriteByte(port, val) }

// PortReadWord implements Ports.
func (HWPorts) PortReadWord(port uint16) uint16 { return PortReadWord(port) }

// PortWriteWord implements Ports.
func (HWPorts) PortWriteWord(port uint16, val uint16) { PortWriteWord(port, val) }

// PortReadDword implements Ports.
func (HWPorts) PortReadDword(port uint16) uint32 { return PortReadDword(port) }

// PortWriteDword implements Ports.
func (HWPorts) PortWriteDword(port uint16, val uint32) { PortWriteDword(port, val) }

// IODelay implements Ports.
func (HWPorts) IODelay() { IODelay() }

// IODelay performs a dummy write to the POST diagnostic port.
func IODelay() {
	PortWriteByte(delayPort, 0)
}

var _ Ports = HWPorts{}
