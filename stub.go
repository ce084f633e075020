// Command universeK is the kernel image. The rt0 assembly jumps straight to
// kmain.Kmain; main only exists so that the linker keeps Kmain and every
// driver package it pulls in.
package main

import "github.com/CodeDestroyer19/universeK/kernel/kmain"

// Kept in a variable so that the call below cannot be folded away.
var (
	multibootInfoPtr       uintptr
	kernelStart, kernelEnd uintptr
)

func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
