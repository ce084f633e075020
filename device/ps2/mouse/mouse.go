// Package mouse implements the PS/2 mouse driver. The driver enables the
// controller aux port, brings the mouse up with a bounded handshake and
// decodes 3-byte movement packets in its IRQ12 handler.
package mouse

import (
	"io"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/ps2"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/kernel/notify"
	"github.com/CodeDestroyer19/universeK/kernel/sync"
)

const module = "mouse"

// State is the lifecycle state of the driver.
type State uint8

// The driver states.
const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

// Ioctl requests.
const (
	// IoctlGetPosition returns x<<16 | y.
	IoctlGetPosition uint32 = iota + 1

	// IoctlSetGrid resizes the pointer grid. The argument is
	// width<<16 | height.
	IoctlSetGrid

	// IoctlResetDecoder drops a partially received packet.
	IoctlResetDecoder
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	withoutInterruptsFn = sync.WithoutInterrupts

	errBadGrid = &kernel.Error{Module: module, Message: "grid dimensions must be positive", Kind: kernel.KindInvalidArgument}
)

// maxPending bounds the aux bytes another driver may hand over between two
// IRQ12 deliveries. It covers a few whole packets.
const maxPending = 12

// Driver is the PS/2 mouse driver.
type Driver struct {
	host  *device.Host
	ctrl  *ps2.Controller
	state State

	decoder     *Decoder
	subscribers notify.List[Event]

	// pending holds aux bytes read by the keyboard while it waited for
	// an ACK. They are decoded by the next IRQ12.
	pending      [maxPending]uint8
	pendingCount int

	spurious int
	resyncs  int
}

// New returns a mouse driver for a pointer grid of the configured size.
func New(host *device.Host) *Driver {
	width, height := bootcfg.DefaultGridWidth, bootcfg.DefaultGridHeight
	if host.Config != nil {
		width, height = host.Config.GridWidth, host.Config.GridHeight
	}

	ctrl := ps2.NewController(host.Ports, ps2.TimeoutsFromConfig(host.Config))
	ctrl.Port = ps2.PortAux

	return &Driver{
		host:    host,
		ctrl:    ctrl,
		decoder: NewDecoder(width, height),
	}
}

// State returns the driver state.
func (d *Driver) State() State {
	return d.state
}

// Spurious returns the number of IRQ12 deliveries that found no aux byte in
// the controller.
func (d *Driver) Spurious() int {
	return d.spurious
}

// Resyncs returns the number of partial packets dropped because of a
// spurious interrupt.
func (d *Driver) Resyncs() int {
	return d.resyncs
}

// Position returns the last known pointer position.
func (d *Driver) Position() (x, y int) {
	withoutInterruptsFn(func() {
		x, y = d.decoder.Position()
	})
	return x, y
}

// deviceSteps resets the mouse and enables streaming. Every byte goes
// through the aux write prefix.
var deviceSteps = []ps2.Step{
	ps2.SendAux("disable streaming", ps2.DevDisable),
	ps2.Expect("disable streaming ack", ps2.RespACK),
	ps2.SendAux("reset", ps2.DevReset),
	ps2.Expect("reset ack", ps2.RespACK),
	ps2.ExpectSelfTest("self-test"),
	ps2.Skip("device id"),
	ps2.SendAux("set defaults", ps2.DevSetDefaults),
	ps2.Expect("set defaults ack", ps2.RespACK),
	ps2.SendAux("enable streaming", ps2.DevEnable),
	ps2.Expect("enable streaming ack", ps2.RespACK),
}

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "ps2-mouse"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit enables the aux port and its interrupt, resets the mouse and
// installs the IRQ12 handler. On failure the line stays masked and the aux
// port is disabled.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	d.host.Lines.MaskIRQ(irq.LineMouse)

	// Controller replies look like keyboard bytes. Pending keystrokes go
	// to the keyboard before the config byte is requested.
	dropped := d.ctrl.Flush()

	if err := d.ctrl.SendCommand(ps2.CmdEnableAux); err != nil {
		return d.fail(err)
	}

	cfg, err := d.ctrl.UpdateConfig(ps2.ConfigPort2IRQ, ps2.ConfigPort2ClockOff)
	if err != nil {
		return d.fail(err)
	}
	kfmt.Fprintf(w, "controller config 0x%2x\n", cfg)

	if dropped += d.ctrl.Flush(); dropped != 0 {
		kfmt.Fprintf(w, "discarded %d stale bytes\n", dropped)
	}

	if _, err = d.ctrl.Run(module, deviceSteps); err != nil {
		return d.fail(err)
	}

	if err = d.host.IRQs.Install(irq.LineMouse, d.handleIRQ); err != nil {
		return d.fail(err)
	}

	d.decoder.Reset()
	d.pendingCount = 0
	d.state = StateReady
	ps2.SetPortSink(ps2.PortAux, d.queueByte)
	d.host.Lines.UnmaskIRQ(irq.LineMouse)

	width, height := d.decoder.Bounds()
	kfmt.Fprintf(w, "pointer grid %dx%d\n", width, height)
	return nil
}

// fail leaves the aux port disabled with its interrupt turned off in the
// configuration byte, so a dead mouse cannot raise IRQ12.
func (d *Driver) fail(err *kernel.Error) *kernel.Error {
	ps2.SetPortSink(ps2.PortAux, nil)
	if _, cfgErr := d.ctrl.UpdateConfig(ps2.ConfigPort2ClockOff, ps2.ConfigPort2IRQ); cfgErr != nil {
		kfmt.Warnf(module, "could not clear the aux interrupt: %s", cfgErr.Message)
	}
	_ = d.ctrl.SendCommand(ps2.CmdDisableAux)
	d.state = StateFailed
	return err
}

// DriverCleanup detaches the driver from IRQ12 and disables the aux port.
func (d *Driver) DriverCleanup() {
	if d.state != StateReady {
		return
	}

	ps2.SetPortSink(ps2.PortAux, nil)
	d.host.Lines.MaskIRQ(irq.LineMouse)
	d.host.IRQs.Uninstall(irq.LineMouse)
	_ = d.ctrl.SendCommand(ps2.CmdDisableAux)
	d.state = StateUninitialized
}

// Subscribe registers fn to receive an event for every decoded packet.
// Callbacks run in interrupt context in subscription order.
func (d *Driver) Subscribe(fn func(Event)) (notify.Handle, *kernel.Error) {
	var (
		h   notify.Handle
		err *kernel.Error
	)

	withoutInterruptsFn(func() {
		h, err = d.subscribers.Subscribe(fn)
	})
	return h, err
}

// Unsubscribe removes a subscription. It reports whether h was registered.
func (d *Driver) Unsubscribe(h notify.Handle) bool {
	var found bool
	withoutInterruptsFn(func() {
		found = d.subscribers.Unsubscribe(h)
	})
	return found
}

// Ioctl implements device.Controller.
func (d *Driver) Ioctl(request uint32, arg uintptr) (uintptr, *kernel.Error) {
	switch request {
	case IoctlGetPosition:
		x, y := d.Position()
		return uintptr(x)<<16 | uintptr(y), nil
	case IoctlSetGrid:
		width, height := int(arg>>16&0xffff), int(arg&0xffff)
		if width == 0 || height == 0 {
			return 0, errBadGrid
		}
		withoutInterruptsFn(func() {
			d.decoder.SetBounds(width, height)
		})
		return 0, nil
	case IoctlResetDecoder:
		withoutInterruptsFn(func() {
			d.decoder.Reset()
			d.pendingCount = 0
		})
		return 0, nil
	default:
		return 0, device.ErrNotSupported
	}
}

// handleIRQ runs with interrupts disabled. The registry sends the EOI.
//
// Bytes handed over by the keyboard are decoded first. The IRQ raised for
// them finds the output buffer empty and is not spurious.
func (d *Driver) handleIRQ(_ *gate.Registers) {
	hadPending := d.pendingCount != 0
	for i := 0; i < d.pendingCount; i++ {
		d.feed(d.pending[i])
	}
	d.pendingCount = 0

	status := d.ctrl.Status()
	if status&ps2.StatusOutputFull == 0 || status&ps2.StatusAuxData == 0 {
		if hadPending {
			return
		}
		d.spurious++
		if d.decoder.Cycle() != 0 {
			d.decoder.Reset()
			d.resyncs++
		}
		kfmt.Debugf(module, "spurious interrupt (status 0x%2x)", status)
		return
	}

	d.feed(d.ctrl.Data())
}

// queueByte is the aux port sink.
func (d *Driver) queueByte(b uint8) {
	if d.pendingCount == maxPending {
		kfmt.Warnf(module, "dropping aux byte 0x%2x; %d already pending", b, maxPending)
		return
	}
	d.pending[d.pendingCount] = b
	d.pendingCount++
}

func (d *Driver) feed(b uint8) {
	ev, ok := d.decoder.Feed(b)
	if !ok {
		if d.decoder.Cycle() == 0 {
			kfmt.Debugf(module, "dropping out of sync byte 0x%2x", b)
		}
		return
	}

	d.subscribers.Deliver(ev)
}

var (
	_ device.Controller = (*Driver)(nil)
	_ device.Cleaner    = (*Driver)(nil)
)

func probeForMouse(host *device.Host) device.Driver {
	if host.Config != nil && !host.Config.MouseEnabled {
		return nil
	}
	if host.IRQs == nil || host.Lines == nil {
		return nil
	}
	return New(host)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderInput + 1,
		Class: device.ClassChar,
		Probe: probeForMouse,
	})
}
