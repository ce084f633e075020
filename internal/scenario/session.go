package scenario

import (
	"fmt"
	"io"

	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/pic"
	"github.com/CodeDestroyer19/universeK/device/pit"
	"github.com/CodeDestroyer19/universeK/device/ps2/keyboard"
	"github.com/CodeDestroyer19/universeK/device/ps2/mouse"
	"github.com/CodeDestroyer19/universeK/internal/hwsim"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// Session is a simulated machine with the interrupt controller, timer and
// PS/2 drivers brought up the same way the kernel does at boot.
type Session struct {
	Machine  *hwsim.Machine
	Registry *irq.Registry
	PIC      *pic.Controller
	Timer    *pit.Timer
	Keyboard *keyboard.Driver
	Mouse    *mouse.Driver

	Config bootcfg.Config

	// Text accumulates the characters read from the keyboard driver.
	Text []byte

	// bootSpurious is the mouse spurious count once boot completed.
	bootSpurious int

	// buttons is the button state of the last mouse packet.
	buttons uint8
}

// Boot creates a machine and initializes the drivers enabled by cfg.
// Driver output is written to log prefixed with the driver name.
func Boot(cfg bootcfg.Config, log io.Writer) (*Session, error) {
	m := hwsim.NewMachine()
	ctl := pic.New(m.Bus)

	s := &Session{
		Machine:  m,
		Registry: irq.NewRegistry(ctl),
		PIC:      ctl,
		Config:   cfg,
	}
	host := &device.Host{
		Ports:  m.Bus,
		IRQs:   s.Registry,
		Lines:  ctl,
		Config: &s.Config,
	}

	s.Timer = pit.New(host, cfg.PITHz)
	drivers := []device.Driver{ctl, s.Timer}
	if cfg.KeyboardEnabled {
		s.Keyboard = keyboard.New(host)
		drivers = append(drivers, s.Keyboard)
	}
	if cfg.MouseEnabled {
		s.Mouse = mouse.New(host)
		drivers = append(drivers, s.Mouse)
	}

	for _, drv := range drivers {
		w := &kfmt.PrefixWriter{Sink: log, Prefix: []byte(drv.DriverName() + ": ")}
		if err := drv.DriverInit(w); err != nil {
			return nil, fmt.Errorf("%s: %w", drv.DriverName(), err)
		}
	}

	// Service the interrupts latched while the devices answered the
	// init handshakes.
	m.Deliver(s.Registry)
	if s.Mouse != nil {
		s.bootSpurious = s.Mouse.Spurious()
		if _, err := s.Mouse.Subscribe(func(ev mouse.Event) { s.buttons = ev.Buttons }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Apply performs one step and delivers the interrupts it raised.
func (s *Session) Apply(st Step) error {
	if err := st.validate(); err != nil {
		return err
	}

	m := s.Machine
	switch {
	case st.Type != "":
		for i := 0; i < len(st.Type); i++ {
			code, shift, _ := ScancodeFor(st.Type[i])
			if shift {
				m.PressKey(keyboard.ScanLeftShift)
				s.deliver()
			}
			m.TypeKey(code)
			s.deliver()
			if shift {
				m.ReleaseKey(keyboard.ScanLeftShift)
				s.deliver()
			}
		}
	case st.Key != nil:
		m.TypeKey(*st.Key)
	case st.Press != nil:
		m.PressKey(*st.Press)
	case st.Release != nil:
		m.ReleaseKey(*st.Release)
	case st.Mouse != nil:
		m.MoveMouse(st.Mouse.DX, st.Mouse.DY, st.Mouse.Buttons)
	case len(st.AuxBytes) != 0:
		m.SendMouseBytes(st.AuxBytes...)
	case st.SpuriousMouse:
		m.SpuriousMouseIRQ()
	case st.Ticks > 0:
		for i := 0; i < st.Ticks; i++ {
			m.Tick()
			s.deliver()
		}
	}

	s.deliver()
	return nil
}

func (s *Session) deliver() {
	s.Machine.Deliver(s.Registry)
	if s.Keyboard == nil {
		return
	}

	var buf [64]byte
	for {
		n, _ := s.Keyboard.Read(buf[:])
		if n == 0 {
			return
		}
		s.Text = append(s.Text, buf[:n]...)
	}
}

// Result is the driver state observed after a replay. Spurious only counts
// mouse interrupts raised after boot.
type Result struct {
	Pointer  Point
	Buttons  uint8
	Text     string
	LEDs     uint8
	Resyncs  int
	Spurious int
	Ticks    uint64
}

// Snapshot captures the current driver state.
func (s *Session) Snapshot() Result {
	r := Result{Text: string(s.Text)}
	if s.Mouse != nil {
		r.Pointer.X, r.Pointer.Y = s.Mouse.Position()
		r.Buttons = s.buttons
		r.Resyncs = s.Mouse.Resyncs()
		r.Spurious = s.Mouse.Spurious() - s.bootSpurious
	}
	if s.Keyboard != nil {
		leds, _ := s.Keyboard.Ioctl(keyboard.IoctlGetLEDs, 0)
		r.LEDs = uint8(leds)
	}
	if s.Timer != nil {
		r.Ticks = s.Timer.Ticks()
	}
	return r
}

// Run boots a session configured by the scenario command line and replays
// every step. onStep, if not nil, is invoked after each step.
func Run(sc *Scenario, log io.Writer, onStep func(index int, s *Session)) (*Session, error) {
	cfg := bootcfg.Parse(sc.CmdLine)

	s, err := Boot(cfg, log)
	if err != nil {
		return nil, err
	}

	for i, st := range sc.Steps {
		if err := s.Apply(st); err != nil {
			return s, fmt.Errorf("step %d: %w", i, err)
		}
		if onStep != nil {
			onStep(i, s)
		}
	}
	return s, nil
}

// Check compares r against exp and returns one message per mismatch.
func (exp Expectation) Check(r Result) []string {
	var failures []string
	if exp.Pointer != nil && *exp.Pointer != r.Pointer {
		failures = append(failures, fmt.Sprintf("pointer: expected (%d, %d); got (%d, %d)",
			exp.Pointer.X, exp.Pointer.Y, r.Pointer.X, r.Pointer.Y))
	}
	if exp.Text != nil && *exp.Text != r.Text {
		failures = append(failures, fmt.Sprintf("text: expected %q; got %q", *exp.Text, r.Text))
	}
	if exp.LEDs != nil && *exp.LEDs != r.LEDs {
		failures = append(failures, fmt.Sprintf("leds: expected 0x%02x; got 0x%02x", *exp.LEDs, r.LEDs))
	}
	if exp.Resyncs != nil && *exp.Resyncs != r.Resyncs {
		failures = append(failures, fmt.Sprintf("resyncs: expected %d; got %d", *exp.Resyncs, r.Resyncs))
	}
	if exp.Spurious != nil && *exp.Spurious != r.Spurious {
		failures = append(failures, fmt.Sprintf("spurious: expected %d; got %d", *exp.Spurious, r.Spurious))
	}
	if exp.Ticks != nil && *exp.Ticks != r.Ticks {
		failures = append(failures, fmt.Sprintf("ticks: expected %d; got %d", *exp.Ticks, r.Ticks))
	}
	return failures
}
