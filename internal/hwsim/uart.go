package hwsim

import "bytes"

// COM1Base is the base port of the first serial port.
const COM1Base = 0x3f8

const (
	uartData        = 0
	uartIER         = 1
	uartFCR         = 2
	uartLCR         = 3
	uartMCR         = 4
	uartLSR         = 5
	uartLCRDLAB     = 0x80
	uartLSRTHREmpty = 0x20
	uartLSRIdle     = 0x40
)

// UART models the transmit side of a 16550. Bytes written to the transmit
// holding register are collected in Output.
type UART struct {
	Base uint16

	Output bytes.Buffer

	lcr     uint8
	divisor uint16
	regs    [8]uint8
}

// NewUART returns a UART decoding the 8 ports starting at base.
func NewUART(base uint16) *UART {
	return &UART{Base: base}
}

// Ports returns the ports decoded by the UART.
func (u *UART) Ports() []uint16 {
	ports := make([]uint16, 8)
	for i := range ports {
		ports[i] = u.Base + uint16(i)
	}
	return ports
}

// Divisor returns the programmed baud rate divisor.
func (u *UART) Divisor() uint16 {
	return u.divisor
}

// LineControl returns the last value written to the line control register.
func (u *UART) LineControl() uint8 {
	return u.lcr
}

// In implements PortDevice.
func (u *UART) In(port uint16) uint8 {
	switch reg := port - u.Base; reg {
	case uartLSR:
		return uartLSRTHREmpty | uartLSRIdle
	case uartLCR:
		return u.lcr
	default:
		return u.regs[reg&7]
	}
}

// Out implements PortDevice.
func (u *UART) Out(port uint16, value uint8) {
	reg := port - u.Base
	dlab := u.lcr&uartLCRDLAB != 0

	switch {
	case reg == uartData && dlab:
		u.divisor = u.divisor&0xff00 | uint16(value)
	case reg == uartIER && dlab:
		u.divisor = u.divisor&0x00ff | uint16(value)<<8
	case reg == uartData:
		u.Output.WriteByte(value)
	case reg == uartLCR:
		u.lcr = value
	default:
		u.regs[reg&7] = value
	}
}
