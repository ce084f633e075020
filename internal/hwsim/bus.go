// Package hwsim simulates the legacy PC devices that the kernel drivers talk
// to over I/O ports: a cascaded 8259 pair, an i8042 PS/2 controller with a
// keyboard and a mouse attached, a 16550 UART transmitter and the 8253 PIT.
//
// The simulation is synchronous. Devices react to port writes immediately and
// queue their responses in the controller output buffer, so drivers written
// against cpu.Ports can be exercised on the host without timing games.
//
// Importing hwsim switches kernel/sync to a software interrupt flag.
package hwsim

import (
	"fmt"

	"github.com/CodeDestroyer19/universeK/kernel/cpu"
	"github.com/CodeDestroyer19/universeK/kernel/sync"
)

// PortDevice is a device that decodes one or more 8-bit I/O ports.
type PortDevice interface {
	In(port uint16) uint8
	Out(port uint16, value uint8)
}

// Access is a single port transaction recorded by the Bus.
type Access struct {
	Port  uint16
	Value uint8
	Write bool
}

func (a Access) String() string {
	if a.Write {
		return fmt.Sprintf("out 0x%02x -> 0x%x", a.Value, a.Port)
	}
	return fmt.Sprintf("in  0x%x -> 0x%02x", a.Port, a.Value)
}

// Bus routes port accesses to the mapped devices and records every
// transaction. Reads from unmapped ports float high (0xff).
type Bus struct {
	devices map[uint16]PortDevice

	// Log holds every byte transaction in order. IODelay calls are logged
	// as writes to the delay port.
	Log []Access

	// Delays counts IODelay calls.
	Delays int

	// Record disables logging when false. It is set by NewBus.
	Record bool
}

// NewBus returns an empty bus with recording enabled.
func NewBus() *Bus {
	return &Bus{
		devices: make(map[uint16]PortDevice),
		Record:  true,
	}
}

// Map attaches dev to the given ports, replacing any previous mapping.
func (b *Bus) Map(dev PortDevice, ports ...uint16) {
	for _, port := range ports {
		b.devices[port] = dev
	}
}

// Writes returns the values written to port in order.
func (b *Bus) Writes(port uint16) []uint8 {
	var out []uint8
	for _, a := range b.Log {
		if a.Write && a.Port == port {
			out = append(out, a.Value)
		}
	}
	return out
}

// ResetLog discards the transaction log and delay counter.
func (b *Bus) ResetLog() {
	b.Log = b.Log[:0]
	b.Delays = 0
}

func (b *Bus) record(a Access) {
	if b.Record {
		b.Log = append(b.Log, a)
	}
}

// PortReadByte implements cpu.Ports.
func (b *Bus) PortReadByte(port uint16) uint8 {
	value := uint8(0xff)
	if dev, ok := b.devices[port]; ok {
		value = dev.In(port)
	}
	b.record(Access{Port: port, Value: value})
	return value
}

// PortWriteByte implements cpu.Ports.
func (b *Bus) PortWriteByte(port uint16, value uint8) {
	b.record(Access{Port: port, Value: value, Write: true})
	if dev, ok := b.devices[port]; ok {
		dev.Out(port, value)
	}
}

// PortReadWord implements cpu.Ports as two byte reads.
func (b *Bus) PortReadWord(port uint16) uint16 {
	return uint16(b.PortReadByte(port)) | uint16(b.PortReadByte(port+1))<<8
}

// PortWriteWord implements cpu.Ports as two byte writes.
func (b *Bus) PortWriteWord(port uint16, value uint16) {
	b.PortWriteByte(port, uint8(value))
	b.PortWriteByte(port+1, uint8(value>>8))
}

// PortReadDword implements cpu.Ports as two word reads.
func (b *Bus) PortReadDword(port uint16) uint32 {
	return uint32(b.PortReadWord(port)) | uint32(b.PortReadWord(port+2))<<16
}

// PortWriteDword implements cpu.Ports as two word writes.
func (b *Bus) PortWriteDword(port uint16, value uint32) {
	b.PortWriteWord(port, uint16(value))
	b.PortWriteWord(port+2, uint16(value>>16))
}

// DelayPort is the port that IODelay writes to on real hardware.
const DelayPort = 0x80

// IODelay implements cpu.Ports.
func (b *Bus) IODelay() {
	b.Delays++
	b.record(Access{Port: DelayPort, Write: true})
}

var _ cpu.Ports = (*Bus)(nil)

func init() {
	// Drivers exercised against the simulator run in ring 3.
	sync.UseSoftwareFlag()
}
