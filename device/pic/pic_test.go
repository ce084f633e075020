package pic

import (
	"bytes"
	"testing"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/internal/hwsim"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
)

func newTestController() (*Controller, *hwsim.Bus, *hwsim.PIC) {
	bus := hwsim.NewBus()
	sim := hwsim.NewPIC()
	bus.Map(sim, sim.Ports()...)
	return New(bus), bus, sim
}

func TestInit(t *testing.T) {
	c, bus, sim := newTestController()

	c.Init(DefaultActiveLines)

	if !sim.Initialized() {
		t.Fatal("expected both chips to complete the ICW sequence")
	}

	if master, slave := sim.VectorBases(); master != MasterOffset || slave != SlaveOffset {
		t.Fatalf("expected vector bases 0x%x/0x%x; got 0x%x/0x%x", MasterOffset, SlaveOffset, master, slave)
	}

	if exp, got := uint16(0xeff8), sim.Mask(); got != exp {
		t.Fatalf("expected mask 0x%04x; got 0x%04x", exp, got)
	}

	if master, slave := c.SavedMasks(); master != 0xff || slave != 0xff {
		t.Fatalf("expected saved power-on masks 0xff/0xff; got 0x%x/0x%x", master, slave)
	}

	expWrites := []hwsim.Access{
		{Port: MasterCommand, Value: 0x11, Write: true},
		{Port: SlaveCommand, Value: 0x11, Write: true},
		{Port: MasterData, Value: 0x20, Write: true},
		{Port: SlaveData, Value: 0x28, Write: true},
		{Port: MasterData, Value: 0x04, Write: true},
		{Port: SlaveData, Value: 0x02, Write: true},
		{Port: MasterData, Value: 0x01, Write: true},
		{Port: SlaveData, Value: 0x01, Write: true},
		{Port: MasterData, Value: 0xf8, Write: true},
		{Port: SlaveData, Value: 0xef, Write: true},
	}

	// skip the two mask reads; every write must be followed by a delay
	log := bus.Log[2:]
	if exp, got := 2*len(expWrites), len(log); got != exp {
		t.Fatalf("expected %d accesses; got %d: %v", exp, got, log)
	}

	for i, exp := range expWrites {
		if got := log[2*i]; got != exp {
			t.Errorf("[access %d] expected %v; got %v", 2*i, exp, got)
		}
		if got := log[2*i+1]; got.Port != hwsim.DelayPort {
			t.Errorf("[access %d] expected an io delay; got %v", 2*i+1, got)
		}
	}
}

func TestMaskUnmask(t *testing.T) {
	c, _, sim := newTestController()
	c.Init(0)

	for line := irq.Line(0); line < irq.NumLines; line++ {
		if !c.IsMasked(line) {
			t.Fatalf("expected line %d to be masked", line)
		}

		c.UnmaskIRQ(line)
		if c.IsMasked(line) {
			t.Fatalf("expected line %d to be unmasked", line)
		}

		if exp, got := ^uint16(1<<line), sim.Mask(); got != exp {
			t.Fatalf("expected mask 0x%04x after unmasking line %d; got 0x%04x", exp, line, got)
		}

		c.MaskIRQ(line)
		if exp, got := uint16(0xffff), sim.Mask(); got != exp {
			t.Fatalf("expected mask 0x%04x after masking line %d; got 0x%04x", exp, line, got)
		}
	}

	// out of range lines are ignored
	c.UnmaskIRQ(16)
	if exp, got := uint16(0xffff), sim.Mask(); got != exp {
		t.Fatalf("expected mask to be unchanged; got 0x%04x", got)
	}
	if !c.IsMasked(16) {
		t.Fatal("expected invalid lines to report as masked")
	}
}

func TestSendEOI(t *testing.T) {
	for line := irq.Line(0); line < irq.NumLines; line++ {
		c, bus, _ := newTestController()
		c.SendEOI(line)

		var exp []hwsim.Access
		if line >= 8 {
			exp = append(exp, hwsim.Access{Port: SlaveCommand, Value: 0x20, Write: true})
		}
		exp = append(exp, hwsim.Access{Port: MasterCommand, Value: 0x20, Write: true})

		if len(bus.Log) != len(exp) {
			t.Fatalf("[line %d] expected %d writes; got %v", line, len(exp), bus.Log)
		}
		for i := range exp {
			if bus.Log[i] != exp[i] {
				t.Errorf("[line %d] expected write %d to be %v; got %v", line, i, exp[i], bus.Log[i])
			}
		}
	}
}

func TestEOIAccountingThroughRegistry(t *testing.T) {
	c, _, sim := newTestController()
	c.Init(Lines(irq.LineKeyboard, irq.LineCascade, irq.LineMouse))

	reg := irq.NewRegistry(c)
	if err := reg.Install(irq.LineKeyboard, func(*gate.Registers) {}); err != nil {
		t.Fatal(err)
	}

	deliver := func(line irq.Line) {
		sim.Raise(uint8(line))
		_, vector, ok := sim.Acknowledge()
		if !ok {
			t.Fatalf("expected line %d to be delivered", line)
		}
		reg.Dispatch(&gate.Registers{Vector: uint64(vector)})
	}

	// handled master line
	deliver(irq.LineKeyboard)
	if master, slave := sim.EOIs(); master != 1 || slave != 0 {
		t.Fatalf("expected 1/0 EOIs; got %d/%d", master, slave)
	}

	// unhandled slave line still gets acknowledged on both chips
	deliver(irq.LineMouse)
	if master, slave := sim.EOIs(); master != 2 || slave != 1 {
		t.Fatalf("expected 2/1 EOIs; got %d/%d", master, slave)
	}

	if got := sim.InService(); got != 0 {
		t.Fatalf("expected no lines in service; got 0x%04x", got)
	}
}

func TestReadRegisters(t *testing.T) {
	c, _, sim := newTestController()
	c.Init(Lines(irq.LineTimer, irq.LineCascade, irq.LineMouse))

	sim.Raise(0)
	sim.Raise(12)

	if exp, got := uint16(1<<0|1<<12), c.ReadIRR(); got&exp != exp {
		t.Fatalf("expected IRR to contain 0x%04x; got 0x%04x", exp, got)
	}

	sim.Acknowledge()
	if exp, got := uint16(1<<0), c.ReadISR(); got != exp {
		t.Fatalf("expected ISR 0x%04x; got 0x%04x", exp, got)
	}
}

func TestDisable(t *testing.T) {
	c, _, sim := newTestController()
	c.Init(DefaultActiveLines)
	c.Disable()

	if exp, got := uint16(0xffff), sim.Mask(); got != exp {
		t.Fatalf("expected mask 0x%04x; got 0x%04x", exp, got)
	}
}

func TestLineSet(t *testing.T) {
	set := Lines(irq.LineTimer, irq.LineMouse, irq.Line(99))
	if exp := LineSet(1<<0 | 1<<12); set != exp {
		t.Fatalf("expected set 0x%x; got 0x%x", exp, set)
	}

	if !set.Has(irq.LineMouse) || set.Has(irq.LineKeyboard) || set.Has(irq.Line(99)) {
		t.Fatal("unexpected membership result")
	}
}

func TestDriver(t *testing.T) {
	c, _, sim := newTestController()

	if got := probeForPIC(&device.Host{}); got != nil {
		t.Fatalf("expected probe to fail without a controller; got %v", got)
	}

	if got := probeForPIC(&device.Host{Lines: c}); got != c {
		t.Fatalf("expected probe to return the host controller; got %v", got)
	}

	if exp, got := "pic8259", c.DriverName(); got != exp {
		t.Fatalf("expected driver name %q; got %q", exp, got)
	}

	if major, minor, patch := c.DriverVersion(); major != 1 || minor != 0 || patch != 0 {
		t.Fatalf("unexpected driver version %d.%d.%d", major, minor, patch)
	}

	var buf bytes.Buffer
	if err := c.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	if exp, got := "remapped to 0x20/0x28 (firmware masks 0xff/0xff)\n", buf.String(); got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}

	if exp, got := uint16(0xfffb), sim.Mask(); got != exp {
		t.Fatalf("expected only the cascade line to be unmasked; got mask 0x%04x", got)
	}
}
