// Package keyboard implements the PS/2 keyboard driver. The driver brings
// the keyboard up with a bounded handshake, decodes scancode set 1 in its
// IRQ1 handler, keeps the lock LEDs in sync and fans decoded events out to
// up to notify.MaxSubscribers consumers.
package keyboard

import (
	"io"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/ps2"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/kernel/notify"
	"github.com/CodeDestroyer19/universeK/kernel/sync"
)

const module = "keyboard"

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
	// IoctlGetLEDs returns the LED byte last sent to the keyboard.
	IoctlGetLEDs uint32 = iota + 1

	// IoctlSyncLEDs resends the LED byte.
	IoctlSyncLEDs

	// IoctlFlushInput discards buffered characters.
	IoctlFlushInput
)

const (
	inputBufferSize = 256

	// maxInFlight bounds the scancodes that may precede an LED command
	// ACK. They were sent before the keyboard saw the command.
	maxInFlight = 8
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	withoutInterruptsFn = sync.WithoutInterrupts

	errNotReady = &kernel.Error{Module: module, Message: "keyboard is not initialized", Kind: kernel.KindInvalidArgument}
	errNoACK    = &kernel.Error{Module: module, Message: "no ACK for LED command", Kind: kernel.KindProtocol}
)

// Driver is the PS/2 keyboard driver.
type Driver struct {
	host  *device.Host
	ctrl  *ps2.Controller
	state State

	decoder     Decoder
	subscribers notify.List[Event]

	// input buffers the characters of key presses for Read.
	input      [inputBufferSize]byte
	inputHead  int
	inputCount int

	// deferred holds scancodes read while waiting for an LED ACK.
	deferred      [maxInFlight]uint8
	deferredCount int

	leds     uint8
	spurious int
}

// New returns a keyboard driver that uses the controller ports, IRQ registry
// and line masker of host.
func New(host *device.Host) *Driver {
	return &Driver{
		host: host,
		ctrl: ps2.NewController(host.Ports, ps2.TimeoutsFromConfig(host.Config)),
	}
}

// State returns the driver state.
func (d *Driver) State() State {
	return d.state
}

// Modifiers returns the current modifier state.
func (d *Driver) Modifiers() Modifiers {
	return d.decoder.Mods
}

// Spurious returns the number of IRQ1 deliveries that found no keyboard byte
// in the controller.
func (d *Driver) Spurious() int {
	return d.spurious
}

// initSteps is the reset/defaults/enable handshake.
var initSteps = []ps2.Step{
	ps2.Command("enable port", ps2.CmdEnablePort1),
	ps2.Send("reset", ps2.DevReset),
	ps2.Expect("reset ack", ps2.RespACK),
	ps2.ExpectSelfTest("self-test"),
	ps2.Send("set defaults", ps2.DevSetDefaults),
	ps2.Expect("set defaults ack", ps2.RespACK),
	ps2.Send("enable scanning", ps2.DevEnable),
	ps2.Expect("enable scanning ack", ps2.RespACK),
}

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "ps2-keyboard"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit resets the keyboard, enables scanning and installs the IRQ1
// handler. On failure the line stays masked and the first PS/2 port is
// disabled.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	if dropped := d.ctrl.Flush(); dropped != 0 {
		kfmt.Fprintf(w, "discarded %d stale bytes\n", dropped)
	}

	if _, err := d.ctrl.Run(module, initSteps); err != nil {
		return d.fail(err)
	}

	if err := d.host.IRQs.Install(irq.LineKeyboard, d.handleIRQ); err != nil {
		return d.fail(err)
	}

	d.decoder.Reset()
	d.leds = 0
	d.deferredCount = 0
	d.state = StateReady
	ps2.SetPortSink(ps2.PortKeyboard, d.deferScancode)
	d.host.Lines.UnmaskIRQ(irq.LineKeyboard)
	return nil
}

func (d *Driver) fail(err *kernel.Error) *kernel.Error {
	ps2.SetPortSink(ps2.PortKeyboard, nil)
	d.host.Lines.MaskIRQ(irq.LineKeyboard)
	_ = d.ctrl.SendCommand(ps2.CmdDisablePort1)
	d.state = StateFailed
	return err
}

// DriverCleanup detaches the driver from IRQ1 and disables the first port.
func (d *Driver) DriverCleanup() {
	if d.state != StateReady {
		return
	}

	ps2.SetPortSink(ps2.PortKeyboard, nil)
	d.host.Lines.MaskIRQ(irq.LineKeyboard)
	d.host.IRQs.Uninstall(irq.LineKeyboard)
	_ = d.ctrl.SendCommand(ps2.CmdDisablePort1)
	d.state = StateUninitialized
}

// Subscribe registers fn to receive every decoded event. Callbacks run in
// interrupt context in subscription order.
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

// Read copies buffered characters into p. It never blocks and returns 0 when
// no key has been pressed since the last call.
func (d *Driver) Read(p []byte) (int, error) {
	var n int
	withoutInterruptsFn(func() {
		for ; n < len(p) && d.inputCount > 0; n++ {
			p[n] = d.input[d.inputHead]
			d.inputHead = (d.inputHead + 1) % inputBufferSize
			d.inputCount--
		}
	})
	return n, nil
}

// Ioctl implements device.Controller.
func (d *Driver) Ioctl(request uint32, _ uintptr) (uintptr, *kernel.Error) {
	switch request {
	case IoctlGetLEDs:
		return uintptr(d.leds), nil
	case IoctlSyncLEDs:
		if d.state != StateReady {
			return 0, errNotReady
		}
		withoutInterruptsFn(func() {
			d.syncLEDs()
			d.processDeferred()
		})
		return uintptr(d.leds), nil
	case IoctlFlushInput:
		withoutInterruptsFn(func() {
			d.inputHead, d.inputCount = 0, 0
		})
		return 0, nil
	default:
		return 0, device.ErrNotSupported
	}
}

// handleIRQ runs with interrupts disabled. The registry sends the EOI.
//
// Scancodes deferred while another exchange owned the controller arrived
// before whatever is in the output buffer now, so they are decoded first.
// The IRQ raised for them finds the buffer empty and is not spurious.
func (d *Driver) handleIRQ(_ *gate.Registers) {
	hadDeferred := d.processDeferred()

	status := d.ctrl.Status()
	if status&ps2.StatusOutputFull == 0 || status&ps2.StatusAuxData != 0 {
		if !hadDeferred {
			d.spurious++
			kfmt.Debugf(module, "spurious interrupt (status 0x%2x)", status)
		}
		return
	}

	d.process(d.ctrl.Data())
	d.processDeferred()
}

// deferScancode queues a scancode read by someone else's exchange. It is
// installed as the keyboard port sink.
func (d *Driver) deferScancode(b uint8) {
	if d.deferredCount == maxInFlight {
		kfmt.Warnf(module, "dropping scancode 0x%2x; %d already pending", b, maxInFlight)
		return
	}
	d.deferred[d.deferredCount] = b
	d.deferredCount++
}

// processDeferred handles the deferred scancodes in arrival order and
// reports whether there were any. Processing one may defer more.
func (d *Driver) processDeferred() bool {
	if d.deferredCount == 0 {
		return false
	}
	for i := 0; i < d.deferredCount; i++ {
		d.process(d.deferred[i])
	}
	d.deferredCount = 0
	return true
}

func (d *Driver) process(scancode uint8) {
	kfmt.Tracef(module, "scancode 0x%2x", scancode)

	ev, ledsChanged := d.decoder.Feed(scancode)
	if ledsChanged {
		d.syncLEDs()
	}

	if ev.Pressed && ev.Char != 0 {
		d.bufferChar(ev.Char)
	}

	d.subscribers.Deliver(ev)
}

func (d *Driver) bufferChar(ch byte) {
	if d.inputCount == inputBufferSize {
		// drop the oldest character
		d.inputHead = (d.inputHead + 1) % inputBufferSize
		d.inputCount--
	}

	d.input[(d.inputHead+d.inputCount)%inputBufferSize] = ch
	d.inputCount++
}

// syncLEDs sends the lock state to the keyboard. A failed exchange is logged
// and leaves the decoder state untouched.
func (d *Driver) syncLEDs() {
	leds := d.decoder.Mods.LEDs()

	err := d.ctrl.WriteData(ps2.DevSetLEDs)
	if err == nil {
		err = d.awaitACK()
	}
	if err == nil {
		err = d.ctrl.WriteData(leds)
	}
	if err == nil {
		err = d.awaitACK()
	}

	if err != nil {
		kfmt.Warnf(module, "LED update failed: %s", err.Message)
		return
	}
	d.leds = leds
}

// awaitACK reads keyboard bytes until the keyboard acknowledges a command.
// Scancodes that were already queued ahead of the ACK are deferred. Aux
// bytes go to the mouse through the aux port sink.
func (d *Driver) awaitACK() *kernel.Error {
	for {
		b, err := d.ctrl.ReadPort(ps2.PortKeyboard, d.ctrl.Timeouts.ACK)
		switch {
		case err != nil:
			return err
		case b == ps2.RespACK:
			return nil
		case b == ps2.RespResend || d.deferredCount == maxInFlight:
			return errNoACK
		}

		d.deferred[d.deferredCount] = b
		d.deferredCount++
	}
}

var (
	_ device.Controller = (*Driver)(nil)
	_ device.Cleaner    = (*Driver)(nil)
	_ io.Reader         = (*Driver)(nil)
)

func probeForKeyboard(host *device.Host) device.Driver {
	if host.Config != nil && !host.Config.KeyboardEnabled {
		return nil
	}
	if host.IRQs == nil || host.Lines == nil {
		return nil
	}
	return New(host)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderInput,
		Class: device.ClassChar,
		Probe: probeForKeyboard,
	})
}
