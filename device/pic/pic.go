// Package pic drives the cascaded pair of 8259A programmable interrupt
// controllers found on every PC compatible machine.
package pic

import (
	"io"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// I/O ports of the master and slave chips.
const (
	MasterCommand = 0x20
	MasterData    = 0x21
	SlaveCommand  = 0xa0
	SlaveData     = 0xa1
)

// Vector offsets programmed by Init. Lines 0-7 are delivered on
// MasterOffset+line and lines 8-15 on SlaveOffset+line-8.
const (
	MasterOffset = 0x20
	SlaveOffset  = 0x28
)

const (
	icw1Init      = 0x11 // edge triggered, cascade mode, ICW4 follows
	icw3Master    = 0x04 // slave attached to IR2
	icw3Slave     = 0x02 // cascade identity
	icw4Mode8086  = 0x01
	cmdEOI        = 0x20
	ocw3ReadIRR   = 0x0a
	ocw3ReadISR   = 0x0b
	slaveLineBase = 8
)

// LineSet is a bitmap of IRQ lines; bit n stands for line n.
type LineSet uint16

// Lines returns the set containing the supplied lines.
func Lines(lines ...irq.Line) LineSet {
	var set LineSet
	for _, l := range lines {
		if l.Valid() {
			set |= 1 << l
		}
	}
	return set
}

// Has reports whether l is a member of s.
func (s LineSet) Has(l irq.Line) bool {
	return l.Valid() && s&(1<<l) != 0
}

var (
	// DefaultActiveLines is the set of lines left unmasked when Init is
	// asked for the legacy configuration.
	DefaultActiveLines = Lines(irq.LineTimer, irq.LineKeyboard, irq.LineCascade, irq.LineMouse)

	// bootActiveLines is used when the controller is brought up by the
	// HAL. Every other line is unmasked by the driver that owns it once
	// its handler has been installed.
	bootActiveLines = Lines(irq.LineCascade)
)

// Controller is the driver for the master/slave 8259A pair.
type Controller struct {
	ports      cpu.Ports
	savedMasks [2]uint8
}

// New returns a controller that performs I/O through ports.
func New(ports cpu.Ports) *Controller {
	return &Controller{ports: ports}
}

func (c *Controller) write(port uint16, value uint8) {
	c.ports.PortWriteByte(port, value)
	c.ports.IODelay()
}

// Init remaps the pair to MasterOffset/SlaveOffset and leaves only the lines
// in active unmasked. The masks in effect before the remap are available
// through SavedMasks.
func (c *Controller) Init(active LineSet) {
	c.savedMasks[0] = c.ports.PortReadByte(MasterData)
	c.savedMasks[1] = c.ports.PortReadByte(SlaveData)

	c.write(MasterCommand, icw1Init)
	c.write(SlaveCommand, icw1Init)
	c.write(MasterData, MasterOffset)
	c.write(SlaveData, SlaveOffset)
	c.write(MasterData, icw3Master)
	c.write(SlaveData, icw3Slave)
	c.write(MasterData, icw4Mode8086)
	c.write(SlaveData, icw4Mode8086)

	mask := ^uint16(active)
	c.write(MasterData, uint8(mask))
	c.write(SlaveData, uint8(mask>>8))
}

// SavedMasks returns the master and slave masks read by the last Init call.
func (c *Controller) SavedMasks() (master, slave uint8) {
	return c.savedMasks[0], c.savedMasks[1]
}

func dataPort(line irq.Line) (uint16, uint8) {
	if line >= slaveLineBase {
		return SlaveData, uint8(1) << (line - slaveLineBase)
	}
	return MasterData, uint8(1) << line
}

// MaskIRQ stops the controller from raising line. Invalid lines are ignored.
func (c *Controller) MaskIRQ(line irq.Line) {
	if !line.Valid() {
		return
	}

	port, bit := dataPort(line)
	c.ports.PortWriteByte(port, c.ports.PortReadByte(port)|bit)
}

// UnmaskIRQ allows the controller to raise line. Invalid lines are ignored.
func (c *Controller) UnmaskIRQ(line irq.Line) {
	if !line.Valid() {
		return
	}

	port, bit := dataPort(line)
	c.ports.PortWriteByte(port, c.ports.PortReadByte(port)&^bit)
}

// IsMasked reports whether line is currently masked.
func (c *Controller) IsMasked(line irq.Line) bool {
	if !line.Valid() {
		return true
	}

	port, bit := dataPort(line)
	return c.ports.PortReadByte(port)&bit != 0
}

// SendEOI acknowledges line. Lines served by the slave need an EOI on both
// chips and the slave must be acknowledged first.
func (c *Controller) SendEOI(line irq.Line) {
	if line >= slaveLineBase {
		c.ports.PortWriteByte(SlaveCommand, cmdEOI)
	}
	c.ports.PortWriteByte(MasterCommand, cmdEOI)
}

// Disable masks every line on both chips.
func (c *Controller) Disable() {
	c.ports.PortWriteByte(MasterData, 0xff)
	c.ports.PortWriteByte(SlaveData, 0xff)
}

// ReadIRR returns the combined interrupt request register. The slave
// occupies the high byte.
func (c *Controller) ReadIRR() uint16 {
	return c.readRegister(ocw3ReadIRR)
}

// ReadISR returns the combined in-service register. The slave occupies the
// high byte.
func (c *Controller) ReadISR() uint16 {
	return c.readRegister(ocw3ReadISR)
}

func (c *Controller) readRegister(ocw3 uint8) uint16 {
	c.ports.PortWriteByte(MasterCommand, ocw3)
	c.ports.PortWriteByte(SlaveCommand, ocw3)
	return uint16(c.ports.PortReadByte(MasterCommand)) | uint16(c.ports.PortReadByte(SlaveCommand))<<8
}

// DriverName returns the name of this driver.
func (c *Controller) DriverName() string {
	return "pic8259"
}

// DriverVersion returns the version of this driver.
func (c *Controller) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit remaps the controller and masks everything but the cascade
// line.
func (c *Controller) DriverInit(w io.Writer) *kernel.Error {
	c.Init(bootActiveLines)

	master, slave := c.SavedMasks()
	kfmt.Fprintf(w, "remapped to 0x%2x/0x%2x (firmware masks 0x%2x/0x%2x)\n", MasterOffset, SlaveOffset, master, slave)
	return nil
}

var (
	_ irq.EOISender     = (*Controller)(nil)
	_ device.LineMasker = (*Controller)(nil)
)

// probeForPIC returns the controller that the host routes EOIs and line
// masks through. Every PC has one so the probe never fails when the host was
// set up with a Controller.
func probeForPIC(host *device.Host) device.Driver {
	if c, ok := host.Lines.(*Controller); ok {
		return c
	}
	return nil
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderChipset,
		Class: device.ClassPlatform,
		Probe: probeForPIC,
	})
}
