// Package kfmt implements formatted output that is safe to use from interrupt
// context and before the Go allocator is available.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is large enough to hold a 64-bit value in base 8 plus a sign.
const numBufSize = 32

var (
	errMissingArg   = []byte("%!(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	lowerDigits = "0123456789abcdef"
	upperDigits = "0123456789ABCDEF"

	// numBuf and oneByte are shared scratch buffers. Output is serialized by
	// the callers (interrupts are off in handlers and boot is single
	// threaded) so no locking is needed.
	numBuf  [numBufSize]byte
	oneByte [1]byte

	// earlyBuf captures output emitted before SetOutputSink is called.
	earlyBuf ringBuffer

	// outputSink receives the output of Printf and the log functions. A nil
	// sink redirects output to earlyBuf.
	outputSink io.Writer
)

// SetOutputSink routes all subsequent Printf output to w and replays any
// output that was captured before a sink was available.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// OutputSink returns the writer set by SetOutputSink or nil if output is
// still being captured by the early buffer. Passing the result to Fprintf
// always reaches the same destination as Printf.
func OutputSink() io.Writer {
	return outputSink
}

// Printf formats according to format and writes to the active output sink.
//
// The supported verbs are a small subset of the ones supported by the fmt
// package:
//
//	%s  string or []byte
//	%c  a single byte or rune below 0x80
//	%d  base 10 integer, space padded
//	%x  base 16 integer (lower case), zero padded
//	%X  base 16 integer (upper case), zero padded
//	%o  base 8 integer, zero padded
//	%t  bool
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Printf never allocates and
// never consults io.Stringer or error implementations since doing so
// requires itables that may not be initialized yet.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex  int
		litStart  int
		i         int
		width     int
		formatLen = len(format)
	)

	for i < formatLen {
		if format[i] != '%' {
			i++
			continue
		}

		writeString(w, format, litStart, i)

		// Consume the width digits and the verb.
		i++
		width = 0
		for i < formatLen && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}

		if i == formatLen {
			doWrite(w, errNoVerb)
			litStart = i
			break
		}

		verb := format[i]
		i++
		litStart = i

		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 'd', 'x', 'X', 'o', 's', 'c', 't':
		default:
			doWrite(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'd':
			fmtInt(w, arg, 10, width, lowerDigits)
		case 'x':
			fmtInt(w, arg, 16, width, lowerDigits)
		case 'X':
			fmtInt(w, arg, 16, width, upperDigits)
		case 'o':
			fmtInt(w, arg, 8, width, lowerDigits)
		case 's':
			fmtString(w, arg, width)
		case 'c':
			fmtChar(w, arg)
		case 't':
			fmtBool(w, arg)
		}
	}

	writeString(w, format, litStart, formatLen)

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// writeString emits s[from:to] one byte at a time; slicing a string into a
// []byte would allocate.
func writeString(w io.Writer, s string, from, to int) {
	for ; from < to; from++ {
		writeByte(w, s[from])
	}
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	doWrite(w, oneByte[:])
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtChar(w io.Writer, v interface{}) {
	switch c := v.(type) {
	case byte:
		writeByte(w, c)
	case rune:
		if c < 0 || c >= 0x80 {
			writeByte(w, '?')
			return
		}
		writeByte(w, byte(c))
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		fmtPad(w, ' ', width-len(s))
		writeString(w, s, 0, len(s))
	case []byte:
		fmtPad(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtPad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt writes v in the requested base. Base 10 values are padded with
// spaces and the sign sits next to the first digit; other bases are padded
// with zeroes.
func fmtInt(w io.Writer, v interface{}, base uint64, width int, digits string) {
	var (
		uval     uint64
		negative bool
	)

	switch n := v.(type) {
	case uint8:
		uval = uint64(n)
	case uint16:
		uval = uint64(n)
	case uint32:
		uval = uint64(n)
	case uint64:
		uval = n
	case uint:
		uval = uint64(n)
	case uintptr:
		uval = uint64(n)
	case int8:
		uval, negative = abs(int64(n))
	case int16:
		uval, negative = abs(int64(n))
	case int32:
		uval, negative = abs(int64(n))
	case int64:
		uval, negative = abs(n)
	case int:
		uval, negative = abs(int64(n))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if width > numBufSize {
		width = numBufSize
	}

	// Digits are produced right to left.
	pos := numBufSize
	for {
		pos--
		numBuf[pos] = digits[uval%base]
		uval /= base
		if uval == 0 {
			break
		}
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	if negative {
		if padCh == ' ' {
			pos--
			numBuf[pos] = '-'
		}
	}

	for numBufSize-pos < width && pos > 0 {
		pos--
		numBuf[pos] = padCh
	}

	if negative && padCh != ' ' {
		if numBuf[pos] == '0' && numBufSize-pos > 1 {
			numBuf[pos] = '-'
		} else if pos > 0 {
			pos--
			numBuf[pos] = '-'
		}
	}

	doWrite(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

// doWrite hides p from escape analysis. Without this, the compiler assumes
// that p escapes through the dynamic Write call and makes every Printf call
// site allocate its argument slice on the heap.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w == nil {
		earlyBuf.Write(p)
		return
	}
	w.Write(p)
}

// noEscape is copied from runtime/stubs.go.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
