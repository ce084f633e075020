// Package kmain contains the kernel entry point invoked by the rt0 code.
package kmain

import (
	"github.com/CodeDestroyer19/universeK/device"
	"github.com/CodeDestroyer19/universeK/device/pic"
	"github.com/CodeDestroyer19/universeK/kernel"
	"github.com/CodeDestroyer19/universeK/kernel/cpu"
	"github.com/CodeDestroyer19/universeK/kernel/gate"
	"github.com/CodeDestroyer19/universeK/kernel/hal"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/irq"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
	"github.com/CodeDestroyer19/universeK/multiboot"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// idt must live at a fixed address while it is loaded.
	idt gate.Table

	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	bootConfigFn       = bootcfg.FromBootCmdLine
	gateInitFn         = gate.Init
	enableInterruptsFn = cpu.EnableInterrupts
	idleFn             = idle
	panicFn            = kfmt.Panic

	// hostPorts is the port backend handed to every driver.
	hostPorts cpu.Ports = cpu.HWPorts{}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked after the rt0 code has set up the GDT
// and a minimal g0 that lets Go code run on the 4K boot stack.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	cfg := bootConfigFn()
	kfmt.SetLevel(cfg.LogLevel)

	host := &device.Host{Ports: hostPorts, Config: &cfg}

	// Bring up the serial log before anything that can fail so that
	// the early ring buffer gets flushed somewhere visible.
	hal.AttachLogSink(host)
	kfmt.Infof("kmain", "kernel image at 0x%x-0x%x\n", kernelStart, kernelEnd)

	ctl := pic.New(hostPorts)
	registry := irq.NewRegistry(ctl)
	gateInitFn(&idt, registry)

	host.IRQs = registry
	host.Lines = ctl
	hal.DetectHardware(host)

	kfmt.Infof("kmain", "%d devices online; enabling interrupts\n", hal.Devices().Len())
	enableInterruptsFn()
	idleFn()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// idle parks the CPU between interrupts.
func idle() {
	for {
		cpu.Halt()
	}
}
