// Package sync provides the synchronization primitives available to a single
// core kernel whose only source of concurrency is hardware interrupts.
package sync

import "github.com/CodeDestroyer19/universeK/kernel/cpu"

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableFn           = cpu.DisableInterrupts
	enableFn            = cpu.EnableInterrupts
)

// IRQState records whether interrupts were enabled before a call to
// DisableInterrupts.
type IRQState bool

// DisableInterrupts clears the interrupt-enable flag and returns its previous
// value. The returned state must be passed to Restore once the critical
// section completes. Sections may nest; only the outermost Restore re-enables
// interrupts.
func DisableInterrupts() IRQState {
	state := IRQState(interruptsEnabledFn())
	disableFn()
	return state
}

// Restore re-enables interrupts if they were enabled when the matching
// DisableInterrupts call was made.
func (s IRQState) Restore() {
	if s {
		enableFn()
	}
}

// WithoutInterrupts runs fn with interrupt delivery disabled and restores the
// previous interrupt state afterwards. fn must not block: nothing can wake a
// waiter while interrupts are off.
func WithoutInterrupts(fn func()) {
	state := DisableInterrupts()
	fn()
	state.Restore()
}

// softIF backs the interrupt flag after a call to UseSoftwareFlag.
var softIF bool

// UseSoftwareFlag replaces the CPU interrupt flag with a variable. Code that
// runs the drivers as a regular host process calls it since cli and sti
// fault outside ring 0. The emulated flag starts out enabled.
func UseSoftwareFlag() {
	softIF = true
	interruptsEnabledFn = func() bool { return softIF }
	disableFn = func() { softIF = false }
	enableFn = func() { softIF = true }
}
