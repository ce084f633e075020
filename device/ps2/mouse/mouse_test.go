package mouse

import (
	"bytes"
	"testing"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/pic"
	"github.com/CodeDestroyer19/universeK/device/ps2"
	"github.com/CodeDestroyer19/universeK/internal/hwsim"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
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

	if err := drv.DriverInit(&bytes.Buffer{}); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	// drain interrupts latched by the handshake responses
	m.Deliver(host.IRQs)
	return drv, host, m
}

func lineMasked(m *hwsim.Machine, line irq.Line) bool {
	return m.PIC.Mask()&(1<<line) != 0
}

func packetEvent(x, y int, dx, dy int, buttons uint8) Event {
	b0 := hwsim.Packet(dx, dy, buttons)[0]
	return Event{Buttons: buttons, X: x, Y: y, Scroll: (b0 >> 3) & 0x0f}
}

func TestDriverInit(t *testing.T) {
	host, m := newTestHost()
	drv := New(host)

	var buf bytes.Buffer
	if err := drv.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	if drv.State() != StateReady {
		t.Fatalf("expected driver to be ready; got state %d", drv.State())
	}

	if !host.IRQs.Installed(irq.LineMouse) {
		t.Fatal("expected IRQ12 handler to be installed")
	}

	if lineMasked(m, irq.LineMouse) {
		t.Fatal("expected IRQ12 to be unmasked")
	}

	cfg := m.Controller.Config()
	if cfg&ps2.ConfigPort2IRQ == 0 || cfg&ps2.ConfigPort2ClockOff != 0 {
		t.Fatalf("expected aux interrupt and clock to be enabled; config 0x%x", cfg)
	}

	exp := []uint8{ps2.DevDisable, ps2.DevReset, ps2.DevSetDefaults, ps2.DevEnable}
	if got := m.Mouse.ReceivedCommands; !bytes.Equal(got, exp) {
		t.Fatalf("expected mouse to receive %v; got %v", exp, got)
	}

	if !m.Mouse.Streaming() {
		t.Fatal("expected mouse to be streaming")
	}

	if len(m.Keyboard.ReceivedCommands) != 0 {
		t.Fatalf("expected no bytes to reach the keyboard; got %v", m.Keyboard.ReceivedCommands)
	}

	if !bytes.HasSuffix(buf.Bytes(), []byte("pointer grid 80x25\n")) {
		t.Fatalf("unexpected init output %q", buf.String())
	}
}

func TestDriverInitFailures(t *testing.T) {
	specs := []struct {
		faults  hwsim.Faults
		expKind kernel.ErrorKind
	}{
		{hwsim.Faults{Silent: true}, kernel.KindTimeout},
		{hwsim.Faults{FailSelfTest: true}, kernel.KindProtocol},
		{hwsim.Faults{NakCommand: ps2.DevDisable}, kernel.KindProtocol},
		{hwsim.Faults{NakCommand: ps2.DevSetDefaults}, kernel.KindProtocol},
		{hwsim.Faults{NakCommand: ps2.DevEnable}, kernel.KindProtocol},
	}

	for specIndex, spec := range specs {
		host, m := newTestHost()
		m.Mouse.Faults = spec.faults

		drv := New(host)
		err := drv.DriverInit(&bytes.Buffer{})
		if !kernel.Is(err, spec.expKind) {
			t.Errorf("[spec %d] expected error of kind %s; got %v", specIndex, spec.expKind, err)
			continue
		}

		if drv.State() != StateFailed {
			t.Errorf("[spec %d] expected driver state to be failed; got %d", specIndex, drv.State())
		}

		if host.IRQs.Installed(irq.LineMouse) {
			t.Errorf("[spec %d] expected IRQ12 handler not to be installed", specIndex)
		}

		if !lineMasked(m, irq.LineMouse) {
			t.Errorf("[spec %d] expected IRQ12 to stay masked", specIndex)
		}

		cmds := m.Controller.Commands
		if len(cmds) == 0 || cmds[len(cmds)-1] != ps2.CmdDisableAux {
			t.Errorf("[spec %d] expected the aux port to be disabled; controller commands: %v", specIndex, cmds)
		}

		if cfg := m.Controller.Config(); cfg&ps2.ConfigPort2IRQ != 0 || cfg&ps2.ConfigPort2ClockOff == 0 {
			t.Errorf("[spec %d] expected the aux interrupt and clock to be off; config 0x%02x", specIndex, cfg)
		}
	}
}

func TestDriverInitStuckController(t *testing.T) {
	host, m := newTestHost()
	m.Controller.StuckInputFull = true

	drv := New(host)
	if err := drv.DriverInit(&bytes.Buffer{}); !kernel.Is(err, kernel.KindTimeout) {
		t.Fatalf("expected a timeout error; got %v", err)
	}

	if drv.State() != StateFailed {
		t.Fatalf("expected driver state to be failed; got %d", drv.State())
	}
}

func TestMovement(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var events []Event
	if _, err := drv.Subscribe(func(ev Event) { events = append(events, ev) }); err != nil {
		t.Fatal(err)
	}

	m.MoveMouse(5, 3, ButtonLeft)
	m.MoveMouse(10, -4, 0)
	m.MoveMouse(-200, 0, ButtonRight)
	m.Deliver(host.IRQs)

	exp := []Event{
		packetEvent(5, 0, 5, 3, ButtonLeft),
		packetEvent(15, 4, 10, -4, 0),
		packetEvent(0, 4, -200, 0, ButtonRight),
	}

	if len(events) != len(exp) {
		t.Fatalf("expected %d events; got %d: %+v", len(exp), len(events), events)
	}
	for i := range exp {
		if events[i] != exp[i] {
			t.Errorf("[event %d] expected %+v; got %+v", i, exp[i], events[i])
		}
	}

	if x, y := drv.Position(); x != 0 || y != 4 {
		t.Fatalf("expected position (0, 4); got (%d, %d)", x, y)
	}
}

func TestSpuriousMidPacket(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var events int
	if _, err := drv.Subscribe(func(Event) { events++ }); err != nil {
		t.Fatal(err)
	}

	before := drv.Spurious()
	m.SendMouseBytes(0x08, 0x05)
	m.Deliver(host.IRQs)

	m.SpuriousMouseIRQ()
	m.Deliver(host.IRQs)

	if got := drv.Spurious() - before; got != 1 {
		t.Fatalf("expected 1 spurious interrupt; got %d", got)
	}
	if drv.Resyncs() != 1 {
		t.Fatalf("expected the partial packet to be dropped; resyncs %d", drv.Resyncs())
	}

	// the next packet is decoded from a clean state
	m.MoveMouse(1, 0, 0)
	m.Deliver(host.IRQs)

	if events != 1 {
		t.Fatalf("expected 1 event; got %d", events)
	}
	if x, y := drv.Position(); x != 1 || y != 0 {
		t.Fatalf("expected position (1, 0); got (%d, %d)", x, y)
	}
}

func TestKeyboardByteIsNotConsumed(t *testing.T) {
	drv, host, m := initTestDriver(t)

	before := drv.Spurious()
	m.Do(func() {
		m.Controller.QueueKeyboard(0x1e)
		m.PIC.Raise(uint8(irq.LineMouse))
	})
	m.Deliver(host.IRQs)

	if got := drv.Spurious() - before; got != 1 {
		t.Fatalf("expected 1 spurious interrupt; got %d", got)
	}

	if m.Controller.Pending() != 1 {
		t.Fatal("expected the keyboard byte to stay in the controller")
	}
}

func TestOutOfSyncBytesAreDropped(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var events []Event
	if _, err := drv.Subscribe(func(ev Event) { events = append(events, ev) }); err != nil {
		t.Fatal(err)
	}

	m.SendMouseBytes(0x00, 0x42)
	m.MoveMouse(3, 0, 0)
	m.Deliver(host.IRQs)

	if len(events) != 1 || events[0].X != 3 {
		t.Fatalf("expected a single event at x=3; got %+v", events)
	}
}

func TestSubscribers(t *testing.T) {
	drv, host, m := initTestDriver(t)

	var order []int
	var handles []notify.Handle
	for i := 0; i < notify.MaxSubscribers; i++ {
		id := i
		h, err := drv.Subscribe(func(Event) { order = append(order, id) })
		if err != nil {
			t.Fatalf("expected subscription %d to succeed; got %v", i, err)
		}
		handles = append(handles, h)
	}

	if _, err := drv.Subscribe(func(Event) {}); !kernel.Is(err, kernel.KindCapacity) {
		t.Fatalf("expected a capacity error; got %v", err)
	}

	if !drv.Unsubscribe(handles[0]) {
		t.Fatal("expected unsubscribe to succeed")
	}

	m.MoveMouse(1, 1, 0)
	m.Deliver(host.IRQs)

	exp := []int{1, 2, 3, 4, 5, 6, 7}
	if len(order) != len(exp) {
		t.Fatalf("expected delivery order %v; got %v", exp, order)
	}
	for i := range exp {
		if order[i] != exp[i] {
			t.Fatalf("expected delivery order %v; got %v", exp, order)
		}
	}
}

func TestIoctl(t *testing.T) {
	drv, host, m := initTestDriver(t)

	m.MoveMouse(70, -20, 0)
	m.Deliver(host.IRQs)

	pos, err := drv.Ioctl(IoctlGetPosition, 0)
	if err != nil {
		t.Fatal(err)
	}
	if exp := uintptr(70)<<16 | 20; pos != exp {
		t.Fatalf("expected packed position 0x%x; got 0x%x", exp, pos)
	}

	if _, err = drv.Ioctl(IoctlSetGrid, 40<<16|10); err != nil {
		t.Fatal(err)
	}
	if x, y := drv.Position(); x != 39 || y != 9 {
		t.Fatalf("expected position to be clamped to (39, 9); got (%d, %d)", x, y)
	}

	if _, err = drv.Ioctl(IoctlSetGrid, 40<<16); err != errBadGrid {
		t.Fatalf("expected errBadGrid; got %v", err)
	}

	m.SendMouseBytes(0x08)
	m.Deliver(host.IRQs)
	if _, err = drv.Ioctl(IoctlResetDecoder, 0); err != nil {
		t.Fatal(err)
	}
	if drv.decoder.Cycle() != 0 {
		t.Fatalf("expected decoder to be reset; cycle %d", drv.decoder.Cycle())
	}

	if _, err = drv.Ioctl(0xdead, 0); err != device.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported; got %v", err)
	}
}

func TestDriverCleanup(t *testing.T) {
	drv, host, m := initTestDriver(t)

	drv.DriverCleanup()

	if drv.State() != StateUninitialized {
		t.Fatalf("expected driver to be uninitialized; got state %d", drv.State())
	}
	if host.IRQs.Installed(irq.LineMouse) {
		t.Fatal("expected IRQ12 handler to be removed")
	}
	if !lineMasked(m, irq.LineMouse) {
		t.Fatal("expected IRQ12 to be masked")
	}
	if m.Controller.Config()&ps2.ConfigPort2ClockOff == 0 {
		t.Fatal("expected the aux port to be disabled")
	}

	if err := drv.DriverInit(&bytes.Buffer{}); err != nil {
		t.Fatalf("expected re-initialization to succeed; got %v", err)
	}
}

func TestProbe(t *testing.T) {
	host, _ := newTestHost()
	host.Config.GridWidth, host.Config.GridHeight = 320, 200

	drv, ok := probeForMouse(host).(*Driver)
	if !ok {
		t.Fatal("expected probe to return a mouse driver")
	}
	if w, h := drv.decoder.Bounds(); w != 320 || h != 200 {
		t.Fatalf("expected grid 320x200; got %dx%d", w, h)
	}

	host.Config.MouseEnabled = false
	if got := probeForMouse(host); got != nil {
		t.Fatal("expected probe to honor mouse=off")
	}

	if got := probeForMouse(&device.Host{}); got != nil {
		t.Fatal("expected probe to fail without an IRQ registry")
	}

	if w, h := New(&device.Host{}).decoder.Bounds(); w != bootcfg.DefaultGridWidth || h != bootcfg.DefaultGridHeight {
		t.Fatalf("expected default grid; got %dx%d", w, h)
	}

	if exp, got := "ps2-mouse", drv.DriverName(); got != exp {
		t.Fatalf("expected driver name %q; got %q", exp, got)
	}
	if major, minor, patch := drv.DriverVersion(); major != 1 || minor != 0 || patch != 0 {
		t.Fatalf("unexpected driver version %d.%d.%d", major, minor, patch)
	}
}
