package keyboard

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/pic"
	"github.com/CodeDestroyer19/universeK/device/ps2"
	"github.com/CodeDestroyer19/universeK/device/ps2/mouse"
	"github.com/CodeDestroyer19/universeK/internal/hwsim"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/kernel/notify"
)

func newTestHost() (*device.Host, *hwsim.Machine) {
	m := hwsim.NewMachine()

	ctl := pic.New(m.Bus)
	ctl.Init(pic.Lines(irq.LineCascade))

	cfg := bootcfg.Default()
	cfg.IOTimeout, cfg.ACKTimeout, cfg.SelfTestTimeout = 32, 32, 32

	return &device.Host{
		Ports:  m.Bus,
		IRQs:   irq.NewRegistry(ctl),
		Lines:  ctl,
		Config: &cfg,
	}, m
}

func initTestDriver(t *testing.T) (*Driver, *device.Host, *hwsim.Machine) {
	host, m := newTestHost()
	drv := New(host)

	var buf bytes.Buffer
	if err := drv.DriverInit(&buf); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	// drain interrupts latched by the handshake responses
	m.Deliver(host.IRQs)
	return drv, host, m
}

func lineMasked(m *hwsim.Machine, line irq.Line) bool {
	return m.PIC.Mask()&(1<<line) != 0
}

func TestDriverInit(t *testing.T) {
	drv, host, m := initTestDriver(t)

	if drv.State() != StateReady {
		t.Fatalf("expected driver to be ready; got state %d", drv.State())
	}

	if !host.IRQs.Installed(irq.LineKeyboard) {
		t.Fatal("expected IRQ1 handler to be installed")
	}

	if lineMasked(m, irq.LineKeyboard) {
		t.Fatal("expected IRQ1 to be unmasked")
	}

	exp := []uint8{ps2.DevReset, ps2.DevSetDefaults, ps2.DevEnable}
	if got := m.Keyboard.ReceivedCommands; !bytes.Equal(got, exp) {
		t.Fatalf("expected keyboard to receive %v; got %v", exp, got)
	}
}

func TestDriverInitFailures(t *testing.T) {
	specs := []struct {
		faults  hwsim.Faults
		expKind kernel.ErrorKind
	}{
		{hwsim.Faults{Silent: true}, kernel.KindTimeout},
		{hwsim.Faults{FailSelfTest: true}, kernel.KindProtocol},
		{hwsim.Faults{NakCommand: ps2.DevReset}, kernel.KindProtocol},
		{hwsim.Faults{NakCommand: ps2.DevSetDefaults}, kernel.KindProtocol},
		{hwsim.Faults{NakCommand: ps2.DevEnable}, kernel.KindProtocol},
	}

	for specIndex, spec := range specs {
		host, m := newTestHost()
		m.Keyboard.Faults = spec.faults

		drv := New(host)
		err := drv.DriverInit(&bytes.Buffer{})
		if !kernel.Is(err, spec.expKind) {
			t.Errorf("[spec %d] expected error of kind %s; got %v", specIndex, spec.expKind, err)
			continue
		}

		if drv.State() != StateFailed {
			t.Errorf("[spec %d] expected driver state to be failed; got %d", specIndex, drv.State())
		}

		if host.IRQs.Installed(irq.LineKeyboard) {
			t.Errorf("[spec %d] expected IRQ1 handler not to be installed", specIndex)
		}

		if !lineMasked(m, irq.LineKeyboard) {
			t.Errorf("[spec %d] expected IRQ1 to stay masked", specIndex)
		}

		cmds := m.Controller.Commands
		if len(cmds) == 0 || cmds[len(cmds)-1] != ps2.CmdDisablePort1 {
			t.Errorf("[spec %d] expected the first port to be disabled; controller commands: %v", specIndex, cmds)
		}
	}
}

func TestDriverInitFlushesStaleBytes(t *testing.T) {
	host, m := newTestHost()
	m.Controller.QueueKeyboard(0x1e)
	m.Controller.QueueKeyboard(0x9e)

	var buf bytes.Buffer
	if err := New(host).DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	if exp, got := "discarded 2 stale bytes\n", buf.String(); got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}

func TestEventDelivery(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var order []int
	var events []Event
	for i := 0; i < 2; i++ {
		id := i
		if _, err := drv.Subscribe(func(ev Event) {
			order = append(order, id)
			if id == 0 {
				events = append(events, ev)
			}
		}); err != nil {
			t.Fatal(err)
		}
	}

	m.PressKey(ScanLeftShift)
	m.TypeKey(0x1e)
	m.ReleaseKey(ScanLeftShift)
	m.TypeKey(0x30)
	m.Deliver(host.IRQs)

	exp := []Event{
		{Scancode: ScanLeftShift, Pressed: true, Mods: Modifiers{Shift: true}},
		{Scancode: 0x1e, Char: 'A', Pressed: true, Mods: Modifiers{Shift: true}},
		{Scancode: 0x9e, Char: 'A', Mods: Modifiers{Shift: true}},
		{Scancode: ScanLeftShift | releaseBit},
		{Scancode: 0x30, Char: 'b', Pressed: true},
		{Scancode: 0xb0, Char: 'b'},
	}

	if len(events) != len(exp) {
		t.Fatalf("expected %d events; got %d: %+v", len(exp), len(events), events)
	}
	for i := range exp {
		if events[i] != exp[i] {
			t.Errorf("[event %d] expected %+v; got %+v", i, exp[i], events[i])
		}
	}

	for i, id := range order {
		if id != i%2 {
			t.Fatalf("expected subscribers to be invoked in registration order; got %v", order)
		}
	}

	buf := make([]byte, 8)
	n, _ := drv.Read(buf)
	if exp, got := "Ab", string(buf[:n]); got != exp {
		t.Fatalf("expected Read to return %q; got %q", exp, got)
	}

	if n, _ = drv.Read(buf); n != 0 {
		t.Fatalf("expected no more buffered input; got %d bytes", n)
	}
}

func TestCapsLockSyncsLEDsOnce(t *testing.T) {
	drv, host, m := initTestDriver(t)

	m.PressKey(ScanCapsLock)
	m.Deliver(host.IRQs)
	m.ReleaseKey(ScanCapsLock)
	m.Deliver(host.IRQs)

	if exp, got := []uint8{LEDCapsLock}, m.Keyboard.LEDWrites; !bytes.Equal(got, exp) {
		t.Fatalf("expected LED writes %v; got %v", exp, got)
	}

	if !drv.Modifiers().CapsLock {
		t.Fatal("expected caps lock to be latched")
	}

	if leds, err := drv.Ioctl(IoctlGetLEDs, 0); err != nil || leds != LEDCapsLock {
		t.Fatalf("expected LED ioctl to return %d; got %d (%v)", LEDCapsLock, leds, err)
	}

	// second press unlatches and sends exactly one more update
	m.TypeKey(ScanCapsLock)
	m.Deliver(host.IRQs)

	if exp, got := []uint8{LEDCapsLock, 0}, m.Keyboard.LEDWrites; !bytes.Equal(got, exp) {
		t.Fatalf("expected LED writes %v; got %v", exp, got)
	}

	// the LED ACKs must not be decoded as keys
	if n, _ := drv.Read(make([]byte, 4)); n != 0 {
		t.Fatalf("expected no buffered characters; got %d", n)
	}
}

func TestLEDSyncDefersInFlightScancodes(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var codes []uint8
	if _, err := drv.Subscribe(func(ev Event) { codes = append(codes, ev.Scancode) }); err != nil {
		t.Fatal(err)
	}

	// the 'a' press is queued ahead of the ACK for the LED command
	m.PressKey(ScanCapsLock)
	m.PressKey(0x1e)
	m.Deliver(host.IRQs)

	if exp, got := []uint8{LEDCapsLock}, m.Keyboard.LEDWrites; !bytes.Equal(got, exp) {
		t.Fatalf("expected LED writes %v; got %v", exp, got)
	}
	if exp := []uint8{ScanCapsLock, 0x1e}; !bytes.Equal(codes, exp) {
		t.Fatalf("expected scancodes %v; got %v", exp, codes)
	}

	buf := make([]byte, 4)
	if n, _ := drv.Read(buf); n != 1 || buf[0] != 'a' {
		t.Fatalf("expected to read \"a\"; got %q", buf[:n])
	}
}

func TestLEDSyncLeavesMouseBytesToTheMouse(t *testing.T) {
	kbd, host, m := initTestDriver(t)
	defer ps2.SetPortSink(ps2.PortKeyboard, nil)

	ms := mouse.New(host)
	if err := ms.DriverInit(&bytes.Buffer{}); err != nil {
		t.Fatalf("unexpected mouse init error: %v", err)
	}
	defer ps2.SetPortSink(ps2.PortAux, nil)
	m.Deliver(host.IRQs)

	var keys []Event
	if _, err := kbd.Subscribe(func(ev Event) { keys = append(keys, ev) }); err != nil {
		t.Fatal(err)
	}
	var moves []mouse.Event
	if _, err := ms.Subscribe(func(ev mouse.Event) { moves = append(moves, ev) }); err != nil {
		t.Fatal(err)
	}

	// a whole mouse packet is queued between the caps lock press and the
	// ACKs of the LED update it triggers
	mouseSpurious := ms.Spurious()
	m.Do(func() {
		m.Controller.QueueKeyboard(ScanCapsLock)
		m.Controller.QueueAux(0x08)
		m.Controller.QueueAux(0x05)
		m.Controller.QueueAux(0x03)
	})
	m.Deliver(host.IRQs)

	if len(keys) != 1 || keys[0].Scancode != ScanCapsLock {
		t.Fatalf("expected only the caps lock event; got %+v", keys)
	}
	if exp, got := []uint8{LEDCapsLock}, m.Keyboard.LEDWrites; !bytes.Equal(got, exp) {
		t.Fatalf("expected LED writes %v; got %v", exp, got)
	}

	if len(moves) != 1 {
		t.Fatalf("expected the mouse to decode one packet; got %+v", moves)
	}
	if x, y := ms.Position(); x != 5 || y != 0 {
		t.Fatalf("expected pointer at (5, 0); got (%d, %d)", x, y)
	}
	if got := ms.Spurious() - mouseSpurious; got != 0 {
		t.Fatalf("expected no spurious mouse interrupts; got %d", got)
	}
	if m.Controller.Pending() != 0 {
		t.Fatalf("expected the output buffer to be drained; %d bytes left", m.Controller.Pending())
	}
}

func TestKeystrokeDuringMouseInitIsKept(t *testing.T) {
	kbd, host, m := initTestDriver(t)
	defer ps2.SetPortSink(ps2.PortKeyboard, nil)

	var keys []Event
	if _, err := kbd.Subscribe(func(ev Event) { keys = append(keys, ev) }); err != nil {
		t.Fatal(err)
	}

	before := kbd.Spurious()
	m.PressKey(0x1e)

	ms := mouse.New(host)
	if err := ms.DriverInit(&bytes.Buffer{}); err != nil {
		t.Fatalf("expected the mouse to come up despite the keystroke; got %v", err)
	}
	defer ps2.SetPortSink(ps2.PortAux, nil)
	m.Deliver(host.IRQs)

	if len(keys) != 1 || keys[0].Scancode != 0x1e || keys[0].Char != 'a' {
		t.Fatalf("expected the 'a' press to be delivered; got %+v", keys)
	}
	if got := kbd.Spurious() - before; got != 0 {
		t.Fatalf("expected no spurious keyboard interrupts; got %d", got)
	}
}

func TestSpuriousIRQ(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var events int
	if _, err := drv.Subscribe(func(Event) { events++ }); err != nil {
		t.Fatal(err)
	}

	defer kfmt.SetLevel(kfmt.GetLevel())
	kfmt.SetLevel(kfmt.LevelDebug)
	var log bytes.Buffer
	kfmt.SetOutputSink(&log)
	defer kfmt.SetOutputSink(nil)

	before := drv.Spurious()
	m.Do(func() { m.PIC.Raise(uint8(irq.LineKeyboard)) })
	m.Deliver(host.IRQs)

	if got := drv.Spurious() - before; got != 1 {
		t.Fatalf("expected 1 spurious interrupt; got %d", got)
	}
	if exp := "[keyboard] spurious interrupt (status 0x04)"; !strings.Contains(log.String(), exp) {
		t.Fatalf("expected log to contain %q; got:\n%s", exp, log.String())
	}
	if events != 0 {
		t.Fatalf("expected no events; got %d", events)
	}

	// aux bytes are left for the mouse handler
	m.Do(func() {
		m.Controller.QueueAux(0x08)
		m.PIC.Raise(uint8(irq.LineKeyboard))
	})
	m.Deliver(host.IRQs)

	if m.Controller.Pending() != 1 {
		t.Fatal("expected the aux byte to stay in the controller")
	}
	if events != 0 {
		t.Fatalf("expected no events; got %d", events)
	}
}

func TestSubscribeCapacity(t *testing.T) {
	drv, _, _ := initTestDriver(t)

	var handles []notify.Handle
	for i := 0; i < notify.MaxSubscribers; i++ {
		h, err := drv.Subscribe(func(Event) {})
		if err != nil {
			t.Fatalf("expected subscription %d to succeed; got %v", i, err)
		}
		handles = append(handles, h)
	}

	if _, err := drv.Subscribe(func(Event) {}); !kernel.Is(err, kernel.KindCapacity) {
		t.Fatalf("expected a capacity error; got %v", err)
	}

	if !drv.Unsubscribe(handles[3]) {
		t.Fatal("expected unsubscribe to succeed")
	}
	if drv.Unsubscribe(handles[3]) {
		t.Fatal("expected second unsubscribe to report false")
	}

	if _, err := drv.Subscribe(func(Event) {}); err != nil {
		t.Fatalf("expected a freed slot to be reusable; got %v", err)
	}
}

func TestInputBufferOverflow(t *testing.T) {
	var drv Driver
	for i := 0; i < inputBufferSize+2; i++ {
		drv.bufferChar(byte(i))
	}

	buf := make([]byte, inputBufferSize+2)
	n, _ := drv.Read(buf)
	if n != inputBufferSize {
		t.Fatalf("expected %d buffered characters; got %d", inputBufferSize, n)
	}

	if buf[0] != 2 || buf[n-1] != byte((inputBufferSize+1)%256) {
		t.Fatalf("expected the oldest characters to be dropped; got first %d last %d", buf[0], buf[n-1])
	}
}

func TestIoctl(t *testing.T) {
	drv, host, m := initTestDriver(t)

	m.TypeKey(0x1e)
	m.Deliver(host.IRQs)

	if _, err := drv.Ioctl(IoctlFlushInput, 0); err != nil {
		t.Fatal(err)
	}
	if n, _ := drv.Read(make([]byte, 4)); n != 0 {
		t.Fatalf("expected flushed input; got %d bytes", n)
	}

	if _, err := drv.Ioctl(IoctlSyncLEDs, 0); err != nil {
		t.Fatal(err)
	}
	if exp, got := []uint8{0}, m.Keyboard.LEDWrites; !bytes.Equal(got, exp) {
		t.Fatalf("expected LED writes %v; got %v", exp, got)
	}

	if _, err := drv.Ioctl(0xdead, 0); err != device.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported; got %v", err)
	}

	if _, err := New(host).Ioctl(IoctlSyncLEDs, 0); err != errNotReady {
		t.Fatalf("expected errNotReady; got %v", err)
	}
}

func TestDriverCleanup(t *testing.T) {
	drv, host, m := initTestDriver(t)

	drv.DriverCleanup()

	if drv.State() != StateUninitialized {
		t.Fatalf("expected driver to be uninitialized; got state %d", drv.State())
	}
	if host.IRQs.Installed(irq.LineKeyboard) {
		t.Fatal("expected IRQ1 handler to be removed")
	}
	if !lineMasked(m, irq.LineKeyboard) {
		t.Fatal("expected IRQ1 to be masked")
	}

	// a second init succeeds since the line is free again
	if err := drv.DriverInit(&bytes.Buffer{}); err != nil {
		t.Fatalf("expected re-initialization to succeed; got %v", err)
	}
}

func TestProbe(t *testing.T) {
	host, _ := newTestHost()

	if drv := probeForKeyboard(host); drv == nil {
		t.Fatal("expected probe to return a driver")
	}

	host.Config.KeyboardEnabled = false
	if drv := probeForKeyboard(host); drv != nil {
		t.Fatal("expected probe to honor keyboard=off")
	}

	if drv := probeForKeyboard(&device.Host{}); drv != nil {
		t.Fatal("expected probe to fail without an IRQ registry")
	}

	drv := New(host)
	if exp, got := "ps2-keyboard", drv.DriverName(); got != exp {
		t.Fatalf("expected driver name %q; got %q", exp, got)
	}
	if major, minor, patch := drv.DriverVersion(); major != 1 || minor != 0 || patch != 0 {
		t.Fatalf("unexpected driver version %d.%d.%d", major, minor, patch)
	}
}
