package cpu

// Ports is implemented by objects that service x86 port I/O. Drivers receive
// a Ports value instead of calling the Port* functions directly so that
// protocol tests can plug in simulated controllers.
type Ports interface {
	PortReadByte(port uint16) uint8
	PortWriteByte(port uint16, val uint8)
	PortReadWord(port uint16) uint16
	PortWriteWord(port uint16, val uint16)
	PortReadDword(port uint16) uint32
	PortWriteDword(port uint16, val uint32)

	// IODelay blocks for a short, fixed amount of time so that slow
	// controllers can absorb back-to-back writes.
	IODelay()
}
