package kfmt

import (
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
)

const panicRule = "\n-----------------------------------\n"

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	disableInterruptsFn = cpu.DisableInterrupts
	cpuHaltFn           = cpu.Halt

	// errRuntimePanic is reused for causes that do not carry a module. It is
	// a package variable because the heap may be unusable at panic time.
	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// panicCause maps a recovered panic value to the error that gets reported.
// Values that are neither errors nor strings yield nil.
func panicCause(e interface{}) *kernel.Error {
	switch cause := e.(type) {
	case *kernel.Error:
		return cause
	case error:
		errRuntimePanic.Message = cause.Error()
	case string:
		errRuntimePanic.Message = cause
	default:
		return nil
	}
	return errRuntimePanic
}

// Panic masks interrupts, reports e and halts the CPU. Once interrupts are
// masked only an NMI can wake the CPU, so Panic never returns.
//
// The Go runtime's own panic path is redirected here.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	disableInterruptsFn()

	Printf(panicRule)
	if err := panicCause(e); err != nil {
		Printf("[%s] unrecoverable error: %s", err.Module, err.Message)
		if err.Kind != kernel.KindGeneric {
			Printf(" (%s)", err.Kind.String())
		}
		Printf("\n")
	}
	Printf("*** kernel panic: system halted ***")
	Printf(panicRule)

	cpuHaltFn()
}

// panicString receives runtime.throw calls.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	Panic(msg)
}
