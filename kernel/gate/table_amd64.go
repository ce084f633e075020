package gate

import (
	"unsafe"

	"github.com/CodeDestroyer19/universeK/kernel/cpu"
)

// GateFlags is the type/attribute byte of a gate descriptor.
type GateFlags uint8

const (
	// InterruptGate is a present, DPL0, 64-bit interrupt gate. The CPU
	// clears IF when entering it.
	InterruptGate GateFlags = 0x8E

	// TrapGate is a present, DPL0, 64-bit trap gate. IF is left untouched.
	TrapGate GateFlags = 0x8F

	gatePresent GateFlags = 1 << 7
)

const (
	// KernelCodeSelector is the GDT selector of the 64-bit kernel code
	// segment set up by the boot loader.
	KernelCodeSelector uint16 = 0x08

	// KernelDataSelector is the GDT selector loaded into DS/ES by the
	// common entry stub.
	KernelDataSelector uint16 = 0x10
)

// Entry is a 16-byte amd64 gate descriptor.
type Entry struct {
	OffsetLow  uint16
	Selector   uint16
	IST        uint8
	Flags      GateFlags
	OffsetMid  uint16
	OffsetHigh uint32
	_          uint32
}

// Offset returns the handler address encoded in e.
func (e *Entry) Offset() uintptr {
	return uintptr(e.OffsetLow) | uintptr(e.OffsetMid)<<16 | uintptr(e.OffsetHigh)<<32
}

// Present reports whether the CPU will accept e as a valid gate.
func (e *Entry) Present() bool {
	return e.Flags&gatePresent != 0
}

// Table is the interrupt descriptor table. The zero value has every gate
// marked as not present.
type Table [256]Entry

var (
	// loadIDTFn is mocked by tests and is automatically inlined by the
	// compiler.
	loadIDTFn = cpu.LoadIDT
)

// Install points vector at entryPoint.
func (t *Table) Install(vector Vector, entryPoint uintptr, selector uint16, flags GateFlags) {
	t[vector] = Entry{
		OffsetLow:  uint16(entryPoint),
		Selector:   selector,
		Flags:      flags,
		OffsetMid:  uint16(entryPoint >> 16),
		OffsetHigh: uint32(uint64(entryPoint) >> 32),
	}
}

// Clear marks vector as not present.
func (t *Table) Clear(vector Vector) {
	t[vector] = Entry{}
}

// Lookup returns the gate installed for vector.
func (t *Table) Lookup(vector Vector) (entryPoint uintptr, selector uint16, flags GateFlags, present bool) {
	e := &t[vector]
	return e.Offset(), e.Selector, e.Flags, e.Present()
}

// descriptor returns the 10-byte LIDT operand for t: a 16-bit limit followed
// by the 64-bit table address.
func (t *Table) descriptor() [10]byte {
	var (
		d     [10]byte
		limit = uint16(unsafe.Sizeof(*t) - 1)
		base  = uint64(uintptr(unsafe.Pointer(t)))
	)

	d[0], d[1] = byte(limit), byte(limit>>8)
	for i := 0; i < 8; i++ {
		d[2+i] = byte(base >> (8 * uint(i)))
	}

	return d
}

// Load makes t the active interrupt descriptor table.
func (t *Table) Load() {
	d := t.descriptor()
	loadIDTFn(uintptr(unsafe.Pointer(&d[0])))
}
