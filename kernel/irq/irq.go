// Package irq routes hardware interrupts and CPU exceptions to the handlers
// registered by drivers and owns the end-of-interrupt acknowledgment.
package irq

import (
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
)

// Line is a legacy PIC interrupt request line.
type Line uint8

const (
	// NumLines is the number of lines served by the cascaded PIC pair.
	NumLines = 16

	// VectorBase is the vector that line 0 is remapped to.
	VectorBase = gate.NumExceptions
)

// Well-known lines.
const (
	LineTimer    = Line(0)
	LineKeyboard = Line(1)
	LineCascade  = Line(2)
	LineCOM1     = Line(4)
	LineMouse    = Line(12)
)

// Vector returns the vector that l is delivered on.
func (l Line) Vector() gate.Vector {
	return gate.Vector(VectorBase + uint8(l))
}

// Valid reports whether l is in [0, NumLines).
func (l Line) Valid() bool {
	return l < NumLines
}

// LineFromVector maps a vector back to its line. It returns false for vectors
// outside the remapped PIC range.
func LineFromVector(v gate.Vector) (Line, bool) {
	if v < VectorBase || v >= VectorBase+NumLines {
		return 0, false
	}
	return Line(v - VectorBase), true
}

// Handler services an interrupt request line. Handlers run with interrupts
// disabled and must not block, allocate or send an EOI; the registry
// acknowledges the line after the handler returns.
type Handler func(*gate.Registers)

// ExceptionHandler services a CPU exception. If the handler returns, any
// modifications to the supplied registers are propagated back to the location
// where the exception occurred.
type ExceptionHandler func(*gate.Registers)

// EOISender acknowledges an interrupt to the interrupt controller.
type EOISender interface {
	SendEOI(Line)
}

var (
	errInvalidLine = &kernel.Error{Module: "irq", Message: "invalid IRQ line", Kind: kernel.KindInvalidArgument}

	errInvalidException = &kernel.Error{Module: "irq", Message: "vector is not a CPU exception", Kind: kernel.KindInvalidArgument}

	errNilHandler = &kernel.Error{Module: "irq", Message: "nil handler", Kind: kernel.KindInvalidArgument}

	errLineInUse = &kernel.Error{Module: "irq", Message: "IRQ line already has a handler", Kind: kernel.KindDuplicate}

	errExceptionInUse = &kernel.Error{Module: "irq", Message: "exception already has a handler", Kind: kernel.KindDuplicate}

	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled CPU exception"}
)
