package irq

import (
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/kernel/sync"
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	withoutInterruptsFn = sync.WithoutInterrupts
	panicFn             = kfmt.Panic
)

// LineStats holds the delivery counters of a single line.
type LineStats struct {
	// Delivered counts interrupts that reached a handler.
	Delivered uint64

	// Unhandled counts interrupts that arrived while no handler was
	// installed.
	Unhandled uint64
}

// Registry maps IRQ lines and exception vectors to handlers. A single
// Registry is created at boot and installed as the gate dispatcher. At most
// one handler can be installed per line; a second Install for an occupied
// line is rejected.
type Registry struct {
	eoi        EOISender
	lines      [NumLines]Handler
	exceptions [gate.NumExceptions]ExceptionHandler
	stats      [NumLines]LineStats
}

// NewRegistry returns an empty registry that acknowledges interrupts through
// eoi.
func NewRegistry(eoi EOISender) *Registry {
	return &Registry{eoi: eoi}
}

// Install registers h as the handler for line. It fails if the line is out of
// range or already has a handler.
func (r *Registry) Install(line Line, h Handler) *kernel.Error {
	if !line.Valid() {
		return errInvalidLine
	}
	if h == nil {
		return errNilHandler
	}

	var err *kernel.Error
	withoutInterruptsFn(func() {
		if r.lines[line] != nil {
			err = errLineInUse
			return
		}
		r.lines[line] = h
	})

	return err
}

// Uninstall removes the handler for line. Removing a handler from an empty
// or invalid line is a no-op.
func (r *Registry) Uninstall(line Line) {
	if !line.Valid() {
		return
	}

	withoutInterruptsFn(func() {
		r.lines[line] = nil
	})
}

// Installed reports whether line has a handler.
func (r *Registry) Installed(line Line) bool {
	return line.Valid() && r.lines[line] != nil
}

// HandleException registers h for the CPU exception v.
func (r *Registry) HandleException(v gate.Vector, h ExceptionHandler) *kernel.Error {
	if v >= gate.NumExceptions {
		return errInvalidException
	}
	if h == nil {
		return errNilHandler
	}

	var err *kernel.Error
	withoutInterruptsFn(func() {
		if r.exceptions[v] != nil {
			err = errExceptionInUse
			return
		}
		r.exceptions[v] = h
	})

	return err
}

// Stats returns the counters for line.
func (r *Registry) Stats(line Line) LineStats {
	if !line.Valid() {
		return LineStats{}
	}
	return r.stats[line]
}

// Dispatch routes the interrupt described by regs. It is invoked by the gate
// entry stubs with interrupts disabled.
//
// Hardware interrupts are acknowledged exactly once, after the handler (if
// any) returns. Exceptions without a handler dump the register state and
// panic.
func (r *Registry) Dispatch(regs *gate.Registers) {
	v := gate.Vector(regs.Vector)
	if regs.Vector > 0xff {
		kfmt.Warnf("irq", "unhandled vector %d", regs.Vector)
		return
	}

	switch {
	case v < gate.NumExceptions:
		if h := r.exceptions[v]; h != nil {
			h(regs)
			return
		}

		kfmt.Errorf("irq", "unhandled exception %d (error code 0x%x)", uint8(v), regs.ErrorCode)
		regs.DumpTo(kfmt.OutputSink())
		panicFn(errUnhandledException)
	default:
		line, ok := LineFromVector(v)
		if !ok {
			kfmt.Warnf("irq", "unhandled vector %d", uint8(v))
			return
		}

		if h := r.lines[line]; h != nil {
			r.stats[line].Delivered++
			h(regs)
		} else {
			r.stats[line].Unhandled++
			kfmt.Warnf("irq", "unhandled IRQ %d", uint8(line))
		}

		r.eoi.SendEOI(line)
	}
}

var _ gate.Dispatcher = (*Registry)(nil)
