package cpu

// Raw x86 port I/O. Each access is a single in/out instruction; callers that
// talk to slow legacy devices insert IODelay between accesses themselves.

// PortReadByte executes inb on port.
func PortReadByte(port uint16) uint8

// PortReadWord executes inw on port.
func PortReadWord(port uint16) uint16

// PortReadDword executes inl on port.
func PortReadDword(port uint16) uint32

// PortWriteByte executes outb of val to port.
func PortWriteByte(port uint16, val uint8)

// PortWriteWord executes outw of val to port.
func PortWriteWord(port uint16, val uint16)

// PortWriteDword executes outl of val to port.
func PortWriteDword(port uint16, val uint32)

// LoadIDT executes lidt. descriptorAddr holds the 10-byte pseudo-descriptor:
// a 16-bit limit followed by the 64-bit table base.
func LoadIDT(descriptorAddr uintptr)

// RFLAGS.IF; set while the CPU accepts maskable interrupts.
const flagIF = 1 << 9

// flagsFn is mocked by tests.
var flagsFn = Flags

// Flags returns RFLAGS as read by pushfq.
func Flags() uint64

// EnableInterrupts executes sti.
func EnableInterrupts()

// DisableInterrupts executes cli.
func DisableInterrupts()

// Halt executes hlt. Execution resumes after the next unmasked interrupt
// (or an NMI).
func Halt()

// InterruptsEnabled reports whether RFLAGS.IF is set.
func InterruptsEnabled() bool {
	return flagsFn()&flagIF != 0
}
