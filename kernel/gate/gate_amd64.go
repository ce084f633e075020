// Package gate wires the CPU's interrupt descriptor table to Go code. It owns
// the 256-entry vector table, the assembly entry stubs for vectors 0-47 and
// the register snapshot handed to the dispatcher.
package gate

//go:generate go run ../../tools/genstubs -o entries_amd64.s -vectors 48

import (
	"io"

	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

// Registers contains a snapshot of the CPU state when an exception or an
// interrupt occurs. The field order mirrors the push order of the entry
// stubs: the common entry pushes the data segment selectors last, so they sit
// at the lowest address. Changes to the struct are restored on return from
// the interrupt, except for FS and GS which are never reloaded.
type Registers struct {
	GS uint64
	FS uint64
	ES uint64
	DS uint64

	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Vector is the vector number pushed by the entry stub.
	Vector uint64

	// ErrorCode is the CPU-provided error code or 0 for vectors that do
	// not push one.
	ErrorCode uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "VEC = %16x ERR = %16x\n", r.Vector, r.ErrorCode)
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "DS  = %4x ES  = %4x FS  = %4x GS  = %4x\n", r.DS, r.ES, r.FS, r.GS)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// Vector identifies a slot in the interrupt descriptor table.
type Vector uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = Vector(0)

	// Debug is raised by debug traps and instruction breakpoints.
	Debug = Vector(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = Vector(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = Vector(3)

	// Overflow occurs when the INTO instruction is executed while the
	// overflow flag is set.
	Overflow = Vector(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = Vector(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = Vector(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available.
	DeviceNotAvailable = Vector(7)

	// DoubleFault occurs when an exception is raised while the CPU is
	// trying to invoke the handler of a prior exception.
	DoubleFault = Vector(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = Vector(10)

	// SegmentNotPresent occurs when the CPU attempts to load a segment or
	// gate whose present bit is clear.
	SegmentNotPresent = Vector(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address.
	StackSegmentFault = Vector(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = Vector(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = Vector(14)

	// FloatingPointException occurs when an x87 FPU error is pending.
	FloatingPointException = Vector(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = Vector(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = Vector(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set.
	SIMDFloatingPointException = Vector(19)

	// ControlProtection is raised by control-flow enforcement violations.
	ControlProtection = Vector(21)

	// VMMCommunication is raised by AMD SEV-ES guests.
	VMMCommunication = Vector(29)

	// SecurityException is raised by AMD SVM security events.
	SecurityException = Vector(30)
)

const (
	// NumExceptions is the number of vectors reserved by the CPU.
	NumExceptions = 32

	// NumStubs is the number of vectors that get an entry stub: the CPU
	// exceptions plus the 16 remapped PIC lines.
	NumStubs = 48
)

// HasErrorCode reports whether the CPU pushes an error code on the stack
// before invoking the handler for v. The entry stubs push a zero for every
// other vector so that all of them share the same frame layout.
func HasErrorCode(v Vector) bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GPFException, PageFaultException, AlignmentCheck,
		ControlProtection, VMMCommunication, SecurityException:
		return true
	}
	return false
}

// Dispatcher routes an interrupt to its handler. Dispatch runs with
// interrupts disabled on the interrupted stack; it must not block or
// allocate.
type Dispatcher interface {
	Dispatch(*Registers)
}

var (
	// entryAddrFn is mocked by tests and is automatically inlined by the
	// compiler.
	entryAddrFn = gateEntryAddr

	// activeDispatcher receives every interrupt delivered through an
	// entry stub. It is the only process-wide state of this package since
	// the stubs cannot carry a receiver.
	activeDispatcher Dispatcher
)

// Init clears t, points vectors 0-47 at their entry stubs as kernel
// interrupt gates, registers d as the dispatcher and loads t into the CPU.
// The table must stay at a fixed address for as long as it is loaded.
func Init(t *Table, d Dispatcher) {
	*t = Table{}
	for v := 0; v < NumStubs; v++ {
		t.Install(Vector(v), entryAddrFn(uint8(v)), KernelCodeSelector, InterruptGate)
	}

	activeDispatcher = d
	t.Load()
}

// dispatchFromStub is invoked by the common entry stub with a pointer to the
// saved register state.
//
//go:nosplit
func dispatchFromStub(regs *Registers) {
	if d := activeDispatcher; d != nil {
		d.Dispatch(regs)
	}
}

// gateEntryAddr returns the address of the entry stub for the given vector.
// index must be lower than NumStubs.
func gateEntryAddr(index uint8) uintptr
