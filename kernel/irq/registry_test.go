package irq

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/kernel/sync"
)

type eoiRecorder struct {
	lines []Line
}

func (r *eoiRecorder) SendEOI(line Line) {
	r.lines = append(r.lines, line)
}

func mockCriticalSection(t *testing.T) *int {
	var calls int
	withoutInterruptsFn = func(fn func()) {
		calls++
		fn()
	}
	t.Cleanup(func() {
		withoutInterruptsFn = sync.WithoutInterrupts
	})
	return &calls
}

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	t.Cleanup(func() {
		kfmt.SetOutputSink(nil)
	})
	return &buf
}

func TestLineVectorMapping(t *testing.T) {
	for l := Line(0); l < NumLines; l++ {
		v := l.Vector()
		if exp := gate.Vector(32 + uint8(l)); v != exp {
			t.Errorf("line %d: expected vector %d; got %d", l, exp, v)
		}

		got, ok := LineFromVector(v)
		if !ok || got != l {
			t.Errorf("vector %d: expected line %d; got %d (ok=%t)", v, l, got, ok)
		}
	}

	for _, v := range []gate.Vector{0, 31, 48, 255} {
		if _, ok := LineFromVector(v); ok {
			t.Errorf("vector %d: expected no line mapping", v)
		}
	}
}

func TestInstallRejectsDuplicates(t *testing.T) {
	calls := mockCriticalSection(t)

	var (
		r       = NewRegistry(&eoiRecorder{})
		first   = func(*gate.Registers) {}
		second  = func(*gate.Registers) {}
		regions int
	)

	for line := Line(0); line < NumLines; line++ {
		if err := r.Install(line, first); err != nil {
			t.Fatalf("line %d: unexpected error: %v", line, err)
		}

		err := r.Install(line, second)
		if !kernel.Is(err, kernel.KindDuplicate) {
			t.Fatalf("line %d: expected duplicate registration error; got %v", line, err)
		}

		if !r.Installed(line) {
			t.Fatalf("line %d: expected the first handler to stay installed", line)
		}
		regions += 2
	}

	if *calls != regions {
		t.Fatalf("expected every install to run in a critical section (%d); got %d", regions, *calls)
	}
}

func TestInstallValidation(t *testing.T) {
	mockCriticalSection(t)
	r := NewRegistry(&eoiRecorder{})

	if err := r.Install(Line(16), func(*gate.Registers) {}); !kernel.Is(err, kernel.KindInvalidArgument) {
		t.Errorf("expected invalid argument error for line 16; got %v", err)
	}

	if err := r.Install(LineKeyboard, nil); !kernel.Is(err, kernel.KindInvalidArgument) {
		t.Errorf("expected invalid argument error for nil handler; got %v", err)
	}
}

func TestUninstall(t *testing.T) {
	mockCriticalSection(t)
	r := NewRegistry(&eoiRecorder{})

	// removing from an empty or invalid line is a no-op
	r.Uninstall(LineMouse)
	r.Uninstall(Line(200))

	if err := r.Install(LineMouse, func(*gate.Registers) {}); err != nil {
		t.Fatal(err)
	}

	r.Uninstall(LineMouse)
	if r.Installed(LineMouse) {
		t.Fatal("expected handler to be removed")
	}

	if err := r.Install(LineMouse, func(*gate.Registers) {}); err != nil {
		t.Fatalf("expected line to accept a new handler after Uninstall; got %v", err)
	}
}

func TestDispatchSendsExactlyOneEOI(t *testing.T) {
	mockCriticalSection(t)
	captureLog(t)

	for line := Line(0); line < NumLines; line++ {
		for _, installed := range []bool{true, false} {
			var (
				eoi     = &eoiRecorder{}
				r       = NewRegistry(eoi)
				invoked int
			)

			if installed {
				r.Install(line, func(regs *gate.Registers) {
					invoked++
					if len(eoi.lines) != 0 {
						t.Errorf("line %d: EOI sent before the handler ran", line)
					}
				})
			}

			r.Dispatch(&gate.Registers{Vector: uint64(line.Vector())})

			if len(eoi.lines) != 1 || eoi.lines[0] != line {
				t.Errorf("line %d (handler=%t): expected exactly one EOI for the line; got %v", line, installed, eoi.lines)
			}

			if installed && invoked != 1 {
				t.Errorf("line %d: expected handler to be invoked once; got %d", line, invoked)
			}

			stats := r.Stats(line)
			if installed && (stats.Delivered != 1 || stats.Unhandled != 0) {
				t.Errorf("line %d: unexpected stats %+v", line, stats)
			}
			if !installed && (stats.Delivered != 0 || stats.Unhandled != 1) {
				t.Errorf("line %d: unexpected stats %+v", line, stats)
			}
		}
	}
}

func TestDispatchUnhandledIRQIsLogged(t *testing.T) {
	buf := captureLog(t)
	r := NewRegistry(&eoiRecorder{})

	r.Dispatch(&gate.Registers{Vector: uint64(Line(7).Vector())})

	if exp := "[WARN][irq] unhandled IRQ 7\n"; buf.String() != exp {
		t.Fatalf("expected log output %q; got %q", exp, buf.String())
	}
}

func TestDispatchOutOfRangeVector(t *testing.T) {
	buf := captureLog(t)
	eoi := &eoiRecorder{}
	r := NewRegistry(eoi)

	r.Dispatch(&gate.Registers{Vector: 128})

	if len(eoi.lines) != 0 {
		t.Fatalf("expected no EOI for vector 128; got %v", eoi.lines)
	}

	if exp := "[WARN][irq] unhandled vector 128\n"; buf.String() != exp {
		t.Fatalf("expected log output %q; got %q", exp, buf.String())
	}
}

func TestDispatchExceptions(t *testing.T) {
	mockCriticalSection(t)
	buf := captureLog(t)
	defer func() {
		panicFn = kfmt.Panic
	}()

	var panicErr interface{}
	panicFn = func(e interface{}) {
		panicErr = e
	}

	eoi := &eoiRecorder{}
	r := NewRegistry(eoi)

	t.Run("with handler", func(t *testing.T) {
		var gotCode uint64
		if err := r.HandleException(gate.PageFaultException, func(regs *gate.Registers) {
			gotCode = regs.ErrorCode
			regs.RIP += 2
		}); err != nil {
			t.Fatal(err)
		}

		regs := gate.Registers{Vector: uint64(gate.PageFaultException), ErrorCode: 2, RIP: 0x1000}
		r.Dispatch(&regs)

		if gotCode != 2 || regs.RIP != 0x1002 {
			t.Fatalf("expected handler to see error code 2 and adjust RIP; got code %d, RIP 0x%x", gotCode, regs.RIP)
		}

		if panicErr != nil {
			t.Fatal("unexpected panic")
		}
	})

	t.Run("duplicate and invalid", func(t *testing.T) {
		err := r.HandleException(gate.PageFaultException, func(*gate.Registers) {})
		if !kernel.Is(err, kernel.KindDuplicate) {
			t.Errorf("expected duplicate error; got %v", err)
		}

		err = r.HandleException(gate.Vector(40), func(*gate.Registers) {})
		if !kernel.Is(err, kernel.KindInvalidArgument) {
			t.Errorf("expected invalid argument error; got %v", err)
		}
	})

	t.Run("without handler", func(t *testing.T) {
		buf.Reset()
		r.Dispatch(&gate.Registers{Vector: uint64(gate.GPFException), ErrorCode: 0x18, RIP: 0xdead})

		if panicErr != errUnhandledException {
			t.Fatalf("expected kernel panic with errUnhandledException; got %v", panicErr)
		}

		out := buf.String()
		if !strings.HasPrefix(out, "[ERROR][irq] unhandled exception 13 (error code 0x18)\n") {
			t.Fatalf("unexpected log output: %q", out)
		}

		if !strings.Contains(out, "RIP = 000000000000dead") {
			t.Fatalf("expected register dump in output; got %q", out)
		}
	})

	if len(eoi.lines) != 0 {
		t.Fatalf("expected exceptions to never send an EOI; got %v", eoi.lines)
	}
}
