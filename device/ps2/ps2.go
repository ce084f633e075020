// Package ps2 contains the i8042 controller plumbing shared by the PS/2
// keyboard and mouse drivers: bounded status polls, controller and device
// command writes, the configuration byte and a small handshake runner.
package ps2

import (
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// Controller ports. The status register is read from CommandPort.
const (
	DataPort    = 0x60
	CommandPort = 0x64
)

// Status register bits.
const (
	StatusOutputFull = 0x01
	StatusInputFull  = 0x02
	StatusSystemFlag = 0x04
	StatusAuxData    = 0x20
	StatusTimeout    = 0x40
	StatusParity     = 0x80
)

// Configuration byte bits.
const (
	ConfigPort1IRQ      = 0x01
	ConfigPort2IRQ      = 0x02
	ConfigSystemFlag    = 0x04
	ConfigPort1ClockOff = 0x10
	ConfigPort2ClockOff = 0x20
	ConfigTranslation   = 0x40
)

// Controller commands.
const (
	CmdReadConfig   = 0x20
	CmdWriteConfig  = 0x60
	CmdDisableAux   = 0xa7
	CmdEnableAux    = 0xa8
	CmdTestAux      = 0xa9
	CmdSelfTest     = 0xaa
	CmdTestPort1    = 0xab
	CmdDisablePort1 = 0xad
	CmdEnablePort1  = 0xae
	CmdWriteAux     = 0xd4
)

// Device commands and responses.
const (
	DevSetLEDs     = 0xed
	DevIdentify    = 0xf2
	DevSampleRate  = 0xf3
	DevEnable      = 0xf4
	DevDisable     = 0xf5
	DevSetDefaults = 0xf6
	DevReset       = 0xff

	RespACK            = 0xfa
	RespResend         = 0xfe
	RespSelfTestPassed = 0xaa

	controllerTestPassed = 0x55
	portTestPassed       = 0x00
)

// flushLimit bounds Flush in case the output-full bit is stuck.
const flushLimit = 64

var (
	errInputTimeout  = &kernel.Error{Module: "ps2", Message: "timed out waiting for the controller input buffer to drain", Kind: kernel.KindTimeout}
	errOutputTimeout = &kernel.Error{Module: "ps2", Message: "timed out waiting for a response byte", Kind: kernel.KindTimeout}
	errUnexpected    = &kernel.Error{Module: "ps2", Message: "unexpected response byte", Kind: kernel.KindProtocol}
	errSelfTest      = &kernel.Error{Module: "ps2", Message: "controller self-test failed", Kind: kernel.KindProtocol}
	errPortTest      = &kernel.Error{Module: "ps2", Message: "port test failed", Kind: kernel.KindProtocol}
	errUnknownOp     = &kernel.Error{Module: "ps2", Message: "unknown handshake operation", Kind: kernel.KindInvalidArgument}
)

// Timeouts are poll budgets expressed as status register reads.
type Timeouts struct {
	// IO bounds waits for the input buffer and for controller replies.
	IO int

	// ACK bounds waits for device acknowledgments.
	ACK int

	// SelfTest bounds waits for the result of a device reset.
	SelfTest int
}

// DefaultTimeouts returns the budgets used when no configuration is
// available.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		IO:       bootcfg.DefaultIOTimeout,
		ACK:      bootcfg.DefaultACKTimeout,
		SelfTest: bootcfg.DefaultSelfTestTimeout,
	}
}

// TimeoutsFromConfig extracts the poll budgets from the boot configuration.
func TimeoutsFromConfig(cfg *bootcfg.Config) Timeouts {
	if cfg == nil {
		return DefaultTimeouts()
	}
	return Timeouts{IO: cfg.IOTimeout, ACK: cfg.ACKTimeout, SelfTest: cfg.SelfTestTimeout}
}

// Port identifies one of the two device ports behind the controller.
type Port uint8

// The controller ports.
const (
	PortKeyboard Port = iota
	PortAux
)

func (p Port) String() string {
	if p == PortAux {
		return "aux"
	}
	return "keyboard"
}

// portSinks receive bytes that a driver read from the shared output buffer
// while waiting for a response from its own device. They are called with
// interrupts disabled.
var portSinks [2]func(uint8)

func portOf(status uint8) Port {
	if status&StatusAuxData != 0 {
		return PortAux
	}
	return PortKeyboard
}

// SetPortSink installs fn as the receiver of stray bytes that belong to port.
// A nil fn drops them.
func SetPortSink(port Port, fn func(uint8)) {
	portSinks[port&1] = fn
}

// Controller talks to the i8042 through a cpu.Ports implementation.
type Controller struct {
	ports    cpu.Ports
	Timeouts Timeouts

	// Port is the device port whose responses ReadPort and the handshake
	// runner wait for. The zero value is the keyboard port.
	Port Port
}

// NewController returns a controller using the supplied ports and budgets.
func NewController(ports cpu.Ports, timeouts Timeouts) *Controller {
	return &Controller{ports: ports, Timeouts: timeouts}
}

// Status returns the controller status register.
func (c *Controller) Status() uint8 {
	return c.ports.PortReadByte(CommandPort)
}

// Data reads the data port without checking the status register. Interrupt
// handlers use it once they have inspected the status themselves.
func (c *Controller) Data() uint8 {
	return c.ports.PortReadByte(DataPort)
}

// WaitInput polls until the controller is ready to accept a byte.
func (c *Controller) WaitInput() *kernel.Error {
	for i := 0; i < c.Timeouts.IO; i++ {
		if c.Status()&StatusInputFull == 0 {
			return nil
		}
	}
	return errInputTimeout
}

// WaitOutput polls at most budget times until a byte can be read.
func (c *Controller) WaitOutput(budget int) *kernel.Error {
	for i := 0; i < budget; i++ {
		if c.Status()&StatusOutputFull != 0 {
			return nil
		}
	}
	return errOutputTimeout
}

// SendCommand writes a controller command.
func (c *Controller) SendCommand(cmd uint8) *kernel.Error {
	if err := c.WaitInput(); err != nil {
		return err
	}
	c.ports.PortWriteByte(CommandPort, cmd)
	return nil
}

// WriteData writes a byte to the data port. Bytes written this way reach the
// device on the first port unless a controller command is waiting for them.
func (c *Controller) WriteData(value uint8) *kernel.Error {
	if err := c.WaitInput(); err != nil {
		return err
	}
	c.ports.PortWriteByte(DataPort, value)
	return nil
}

// WriteAux sends a byte to the device on the second (aux) port.
func (c *Controller) WriteAux(value uint8) *kernel.Error {
	if err := c.SendCommand(CmdWriteAux); err != nil {
		return err
	}
	return c.WriteData(value)
}

// ReadData waits at most budget polls for a byte and returns it.
func (c *Controller) ReadData(budget int) (uint8, *kernel.Error) {
	if err := c.WaitOutput(budget); err != nil {
		return 0, err
	}
	return c.Data(), nil
}

// ReadPort waits at most budget polls for a byte sent by the device on port.
// Bytes from the other port that arrive first are handed to that port's
// sink and do not count as a response.
func (c *Controller) ReadPort(port Port, budget int) (uint8, *kernel.Error) {
	for i := 0; i < budget; i++ {
		status := c.Status()
		if status&StatusOutputFull == 0 {
			continue
		}

		from, b := portOf(status), c.Data()
		if from == port {
			return b, nil
		}

		if sink := portSinks[from]; sink != nil {
			sink(b)
		} else {
			kfmt.Debugf("ps2", "dropping 0x%2x from the %s port", b, from.String())
		}
	}
	return 0, errOutputTimeout
}

// Flush empties the output buffer and returns how many bytes were dropped.
// Bytes from the other port are handed to its sink when one is installed.
func (c *Controller) Flush() int {
	var dropped int
	for i := 0; i < flushLimit; i++ {
		status := c.Status()
		if status&StatusOutputFull == 0 {
			break
		}

		from, b := portOf(status), c.Data()
		if sink := portSinks[from]; from != c.Port && sink != nil {
			sink(b)
			continue
		}
		dropped++
	}
	return dropped
}

// ReadConfig returns the controller configuration byte. Controller replies
// never carry the aux flag, so stray aux bytes are passed to the aux sink.
func (c *Controller) ReadConfig() (uint8, *kernel.Error) {
	if err := c.SendCommand(CmdReadConfig); err != nil {
		return 0, err
	}
	return c.ReadPort(PortKeyboard, c.Timeouts.IO)
}

// WriteConfig replaces the controller configuration byte.
func (c *Controller) WriteConfig(value uint8) *kernel.Error {
	if err := c.SendCommand(CmdWriteConfig); err != nil {
		return err
	}
	return c.WriteData(value)
}

// UpdateConfig sets and clears bits of the configuration byte and returns
// the value written.
func (c *Controller) UpdateConfig(set, clear uint8) (uint8, *kernel.Error) {
	cfg, err := c.ReadConfig()
	if err != nil {
		return 0, err
	}

	cfg = (cfg | set) &^ clear
	return cfg, c.WriteConfig(cfg)
}

// SelfTest runs the controller self-test. Some controllers reset their
// configuration byte as a side effect so callers should rewrite it.
func (c *Controller) SelfTest() *kernel.Error {
	if err := c.SendCommand(CmdSelfTest); err != nil {
		return err
	}

	res, err := c.ReadData(c.Timeouts.SelfTest)
	if err != nil {
		return err
	}
	if res != controllerTestPassed {
		kfmt.Warnf("ps2", "controller self-test returned 0x%2x", res)
		return errSelfTest
	}
	return nil
}

// TestPort runs the interface test of the first port or, when aux is set,
// the second port.
func (c *Controller) TestPort(aux bool) *kernel.Error {
	cmd := uint8(CmdTestPort1)
	if aux {
		cmd = CmdTestAux
	}

	if err := c.SendCommand(cmd); err != nil {
		return err
	}

	res, err := c.ReadData(c.Timeouts.IO)
	if err != nil {
		return err
	}
	if res != portTestPassed {
		kfmt.Warnf("ps2", "port test 0x%2x returned 0x%2x", cmd, res)
		return errPortTest
	}
	return nil
}
