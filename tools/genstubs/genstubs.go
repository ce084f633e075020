// Command genstubs generates the assembly entry stubs that the interrupt
// descriptor table points at.
//
// Every stub normalizes the stack to the same layout (CPU return frame, error
// code, vector) and jumps to a shared entry that saves the general purpose
// and segment registers before calling into Go.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/template"
)

// errorCodeVectors lists the exceptions for which the CPU pushes an error
// code itself.
var errorCodeVectors = map[int]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true,
	17: true, 21: true, 29: true, 30: true,
}

const maxVectors = 256

var stubTemplate = template.Must(template.New("stubs").Parse(`// Code generated by genstubs; DO NOT EDIT.

#include "textflag.h"
{{range .Stubs}}
TEXT gateEntry{{.Vector}}<>(SB),NOSPLIT|NOFRAME,$0
{{- if not .HasErrorCode}}
	PUSHQ $0
{{- end}}
	PUSHQ ${{.Vector}}
	JMP commonEntry<>(SB)
{{end}}
// commonEntry saves the interrupted context in the layout of gate.Registers,
// switches DS/ES to the kernel data segment and calls dispatchFromStub with a
// pointer to the saved state.
TEXT commonEntry<>(SB),NOSPLIT|NOFRAME,$0
	PUSHQ R15
	PUSHQ R14
	PUSHQ R13
	PUSHQ R12
	PUSHQ R11
	PUSHQ R10
	PUSHQ R9
	PUSHQ R8
	PUSHQ BP
	PUSHQ DI
	PUSHQ SI
	PUSHQ DX
	PUSHQ CX
	PUSHQ BX
	PUSHQ AX

	BYTE $0x8C; BYTE $0xD8 // mov eax, ds
	PUSHQ AX
	BYTE $0x8C; BYTE $0xC0 // mov eax, es
	PUSHQ AX
	BYTE $0x8C; BYTE $0xE0 // mov eax, fs
	PUSHQ AX
	BYTE $0x8C; BYTE $0xE8 // mov eax, gs
	PUSHQ AX

	MOVQ ${{.DataSelector}}, AX
	BYTE $0x8E; BYTE $0xD8 // mov ds, eax
	BYTE $0x8E; BYTE $0xC0 // mov es, eax

	MOVQ SP, AX
	SUBQ $8, SP
	MOVQ AX, 0(SP)
	CALL ·dispatchFromStub(SB)
	ADDQ $8, SP

	// Reloading FS or GS in long mode clears their base so both are
	// dropped instead of restored.
	ADDQ $16, SP
	POPQ AX
	BYTE $0x8E; BYTE $0xC0 // mov es, eax
	POPQ AX
	BYTE $0x8E; BYTE $0xD8 // mov ds, eax

	POPQ AX
	POPQ BX
	POPQ CX
	POPQ DX
	POPQ SI
	POPQ DI
	POPQ BP
	POPQ R8
	POPQ R9
	POPQ R10
	POPQ R11
	POPQ R12
	POPQ R13
	POPQ R14
	POPQ R15

	// drop vector and error code
	ADDQ $16, SP
	IRETQ

// gateEntryTable holds the address of each stub, indexed by vector.
{{- range .Stubs}}
DATA ·gateEntryTable+{{.TableOffset}}(SB)/8, $gateEntry{{.Vector}}<>(SB)
{{- end}}
GLOBL ·gateEntryTable(SB), RODATA, ${{.TableSize}}
`))

type stub struct {
	Vector       int
	HasErrorCode bool
	TableOffset  int
}

type stubFile struct {
	Stubs        []stub
	DataSelector string
	TableSize    int
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[genstubs] error: %s\n", err.Error())
	os.Exit(1)
}

// generate writes the stubs for vectors [0, numVectors) to w.
func generate(w io.Writer, numVectors int, dataSelector uint16) error {
	if numVectors <= 0 || numVectors > maxVectors {
		return fmt.Errorf("vector count must be in [1, %d]; got %d", maxVectors, numVectors)
	}

	file := stubFile{
		DataSelector: fmt.Sprintf("0x%x", dataSelector),
		TableSize:    numVectors * 8,
	}
	for v := 0; v < numVectors; v++ {
		file.Stubs = append(file.Stubs, stub{
			Vector:       v,
			HasErrorCode: errorCodeVectors[v],
			TableOffset:  v * 8,
		})
	}

	return stubTemplate.Execute(w, file)
}

func main() {
	outFile := flag.String("o", "", "output file (defaults to stdout)")
	numVectors := flag.Int("vectors", 48, "number of vectors to generate stubs for")
	dataSelector := flag.Uint("data-selector", 0x10, "GDT selector loaded into DS and ES")
	flag.Parse()

	if *dataSelector > 0xffff {
		exit(errors.New("data selector must fit in 16 bits"))
	}

	var buf bytes.Buffer
	if err := generate(&buf, *numVectors, uint16(*dataSelector)); err != nil {
		exit(err)
	}

	if *outFile == "" {
		os.Stdout.Write(buf.Bytes())
		return
	}

	if err := os.WriteFile(*outFile, buf.Bytes(), 0644); err != nil {
		exit(err)
	}
}
