// Package pit drives channel 0 of the 8253/8254 programmable interval timer
// and keeps the system tick count.
package pit

import (
	"io"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/kernel/sync"
)

// Timer ports.
const (
	Channel0Port = 0x40
	CommandPort  = 0x43
)

const (
	// BaseFrequency is the input clock of the timer in Hz.
	BaseFrequency = 1193180

	// cmdSquareWave selects channel 0, lobyte/hibyte access, mode 3 and
	// binary counting.
	cmdSquareWave = 0x36
)

// Ioctl requests.
const (
	// IoctlGetTicks returns the number of timer interrupts so far.
	IoctlGetTicks uint32 = iota + 1

	// IoctlGetFrequency returns the programmed frequency in Hz.
	IoctlGetFrequency
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	withoutInterruptsFn = sync.WithoutInterrupts

	errBadFrequency = &kernel.Error{Module: "pit", Message: "frequency out of range", Kind: kernel.KindInvalidArgument}
)

// Timer is the channel 0 driver.
type Timer struct {
	host  *device.Host
	hz    uint32
	ticks uint64
}

// New returns a timer that fires hz times per second once initialized.
func New(host *device.Host, hz uint32) *Timer {
	return &Timer{host: host, hz: hz}
}

// Divisor returns the reload value for hz.
func Divisor(hz uint32) (uint16, *kernel.Error) {
	if hz < bootcfg.MinPITHz || hz > BaseFrequency {
		return 0, errBadFrequency
	}
	return uint16(BaseFrequency / hz), nil
}

// Ticks returns the number of timer interrupts serviced.
func (t *Timer) Ticks() uint64 {
	var ticks uint64
	withoutInterruptsFn(func() {
		ticks = t.ticks
	})
	return ticks
}

// UptimeMillis converts the tick count to milliseconds.
func (t *Timer) UptimeMillis() uint64 {
	return t.Ticks() * 1000 / uint64(t.hz)
}

// DriverName returns the name of this driver.
func (t *Timer) DriverName() string {
	return "pit8254"
}

// DriverVersion returns the version of this driver.
func (t *Timer) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit programs channel 0 and installs the IRQ0 handler.
func (t *Timer) DriverInit(w io.Writer) *kernel.Error {
	divisor, err := Divisor(t.hz)
	if err != nil {
		return err
	}

	ports := t.host.Ports
	ports.PortWriteByte(CommandPort, cmdSquareWave)
	ports.PortWriteByte(Channel0Port, uint8(divisor))
	ports.PortWriteByte(Channel0Port, uint8(divisor>>8))

	if err = t.host.IRQs.Install(irq.LineTimer, t.handleIRQ); err != nil {
		return err
	}
	t.host.Lines.UnmaskIRQ(irq.LineTimer)

	kfmt.Fprintf(w, "%d Hz (divisor %d)\n", t.hz, divisor)
	return nil
}

// DriverCleanup stops tick accounting.
func (t *Timer) DriverCleanup() {
	t.host.Lines.MaskIRQ(irq.LineTimer)
	t.host.IRQs.Uninstall(irq.LineTimer)
}

// Ioctl implements device.Controller.
func (t *Timer) Ioctl(request uint32, _ uintptr) (uintptr, *kernel.Error) {
	switch request {
	case IoctlGetTicks:
		return uintptr(t.Ticks()), nil
	case IoctlGetFrequency:
		return uintptr(t.hz), nil
	default:
		return 0, device.ErrNotSupported
	}
}

func (t *Timer) handleIRQ(_ *gate.Registers) {
	t.ticks++
}

var (
	_ device.Controller = (*Timer)(nil)
	_ device.Cleaner    = (*Timer)(nil)
)

func probeForPIT(host *device.Host) device.Driver {
	if host.IRQs == nil || host.Lines == nil {
		return nil
	}

	hz := uint32(bootcfg.DefaultPITHz)
	if host.Config != nil {
		hz = host.Config.PITHz
	}
	return New(host, hz)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderPlatform,
		Class: device.ClassPlatform,
		Probe: probeForPIT,
	})
}
