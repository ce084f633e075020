// Package uart provides a polled driver for the transmit side of a 16550
// compatible serial port. The kernel uses it as its log sink.
package uart

import (
	"io"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// COM1 is the base port of the first serial port.
const COM1 = 0x3f8

// Register offsets from the base port.
const (
	regData        = 0 // DLAB=0: transmit holding; DLAB=1: divisor low
	regIntEnable   = 1 // DLAB=0: interrupt enable; DLAB=1: divisor high
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5
)

const (
	lineControlDLAB = 0x80
	lineControl8N1  = 0x03
	fifoEnableClear = 0xc7 // enable, clear both FIFOs, 14 byte threshold
	modemDTRRTSOut2 = 0x0b
	lineStatusTHRE  = 0x20

	// BaseClock is the UART input clock divided by 16.
	BaseClock = 115200

	// DefaultBaud is the rate the port is programmed to.
	DefaultBaud = 38400

	// txPollLimit bounds the wait for the transmit holding register.
	txPollLimit = 1 << 16
)

var errBadBaud = &kernel.Error{Module: "uart", Message: "baud rate must divide the base clock", Kind: kernel.KindInvalidArgument}

// Port is a polled 16550 transmitter.
type Port struct {
	ports cpu.Ports
	base  uint16
	baud  uint32

	// dropped counts bytes discarded because the transmitter never
	// became ready.
	dropped int
}

// New returns a driver for the UART at base running at DefaultBaud.
func New(ports cpu.Ports, base uint16) *Port {
	return &Port{ports: ports, base: base, baud: DefaultBaud}
}

// SetBaud changes the rate used by the next DriverInit call.
func (p *Port) SetBaud(baud uint32) *kernel.Error {
	if baud == 0 || baud > BaseClock || BaseClock%baud != 0 {
		return errBadBaud
	}
	p.baud = baud
	return nil
}

// Dropped returns the number of bytes that could not be transmitted.
func (p *Port) Dropped() int {
	return p.dropped
}

// Write transmits p byte by byte. Bytes that cannot be sent within the poll
// budget are dropped; Write always reports success so that logging never
// fails.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		if !p.waitTransmitter() {
			p.dropped++
			continue
		}
		p.ports.PortWriteByte(p.base+regData, b)
	}
	return len(data), nil
}

func (p *Port) waitTransmitter() bool {
	for i := 0; i < txPollLimit; i++ {
		if p.ports.PortReadByte(p.base+regLineStatus)&lineStatusTHRE != 0 {
			return true
		}
	}
	return false
}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string {
	return "uart16550"
}

// DriverVersion returns the version of this driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit programs the port for 8N1 at the configured rate with
// interrupts off.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	divisor := uint16(BaseClock / p.baud)

	p.ports.PortWriteByte(p.base+regIntEnable, 0)
	p.ports.PortWriteByte(p.base+regLineControl, lineControlDLAB)
	p.ports.PortWriteByte(p.base+regData, uint8(divisor))
	p.ports.PortWriteByte(p.base+regIntEnable, uint8(divisor>>8))
	p.ports.PortWriteByte(p.base+regLineControl, lineControl8N1)
	p.ports.PortWriteByte(p.base+regFIFOControl, fifoEnableClear)
	p.ports.PortWriteByte(p.base+regModemCtrl, modemDTRRTSOut2)

	kfmt.Fprintf(w, "port 0x%x at %d baud 8N1\n", p.base, p.baud)
	return nil
}

var _ io.Writer = (*Port)(nil)

func probeForCOM1(host *device.Host) device.Driver {
	if host.Config != nil && !host.Config.SerialEnabled {
		return nil
	}
	return New(host.Ports, COM1)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Class: device.ClassChar,
		Probe: probeForCOM1,
	})
}
