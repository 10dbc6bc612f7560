// Package kfmt provides formatted output primitives that are safe to use
// from any point of the kernel lifecycle, including the window before the
// Go allocator is bootstrapped.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize defines the scratch buffer size for formatting numbers. It is
// large enough for a zero-padded 64-bit value in any supported base.
const numBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf [numBufSize]byte

	// singleByte is a shared one-byte buffer used to emit individual
	// characters without triggering a string-to-slice conversion (and
	// hence an allocation).
	singleByte = []byte{0}

	// earlyBuf captures output generated before a sink is registered.
	earlyBuf ringBuffer

	// sink is the io.Writer that receives formatted output. While nil,
	// output accumulates in earlyBuf.
	sink io.Writer
)

// SetOutputSink registers w as the target for formatted output and drains
// any output that accumulated in the early buffer into it.
func SetOutputSink(w io.Writer) {
	sink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// GetOutputSink returns the currently registered output sink. It returns
// nil if output is still being buffered.
func GetOutputSink() io.Writer {
	return sink
}

// Printf writes a formatted message to the active output sink. If no sink
// has been registered yet the message is captured by an internal ring
// buffer and replayed once a sink is attached.
//
// Printf implements a subset of the fmt.Printf verbs and performs no
// memory allocations so it can be invoked before the Go runtime is fully
// operational:
//
//	%s   string or []byte contents
//	%d   base-10 integer
//	%x   base-16 integer, lower-case digits
//	%t   "true" or "false"
//
// A decimal width may precede the verb. Strings and base-10 values are
// left-padded with spaces, base-16 values with zeroes. Pointer and
// reflection-based verbs are intentionally unsupported as they would pull
// in runtime machinery that cannot run this early.
func Printf(format string, args ...interface{}) {
	Fprintf(sink, format, args...)
}

// Fprintf behaves like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		padLen  int
		nextArg int
		i, j    int
	)

	for j < len(format) {
		if format[j] != '%' {
			j++
			continue
		}

		emitVerbatim(w, format, i, j)

		// Scan the optional width followed by the verb character.
		padLen = 0
		j++
	scanVerb:
		for ; j < len(format); j++ {
			ch := format[j]
			switch {
			case ch == '%':
				singleByte[0] = '%'
				doWrite(w, singleByte)
				break scanVerb
			case ch >= '0' && ch <= '9':
				padLen = padLen*10 + int(ch-'0')
				continue
			case ch == 'd' || ch == 'x' || ch == 's' || ch == 't':
				if nextArg >= len(args) {
					doWrite(w, errMissingArg)
					break scanVerb
				}

				switch ch {
				case 'd':
					fmtInt(w, args[nextArg], 10, padLen)
				case 'x':
					fmtInt(w, args[nextArg], 16, padLen)
				case 's':
					fmtString(w, args[nextArg], padLen)
				case 't':
					fmtBool(w, args[nextArg])
				}

				nextArg++
				break scanVerb
			default:
				doWrite(w, errNoVerb)
				break scanVerb
			}
		}
		i, j = j+1, j+1
	}

	emitVerbatim(w, format, i, j)

	for ; nextArg < len(args); nextArg++ {
		doWrite(w, errExtraArg)
	}
}

// emitVerbatim emits format[from:to] one byte at a time. Passing a string
// slice expression to doWrite directly would convert it to a []byte and
// allocate.
func emitVerbatim(w io.Writer, format string, from, to int) {
	for ; from < to; from++ {
		singleByte[0] = format[from]
		doWrite(w, singleByte)
	}
}

// fmtBool emits "true" or "false" for boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, isBool := v.(bool)
	if !isBool {
		doWrite(w, errWrongArgType)
		return
	}

	if bVal {
		doWrite(w, trueValue)
	} else {
		doWrite(w, falseValue)
	}
}

// fmtString emits string or []byte value v left-padded with spaces up to
// padLen characters.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch sVal := v.(type) {
	case string:
		padWith(w, ' ', padLen-len(sVal))
		emitVerbatim(w, sVal, 0, len(sVal))
	case []byte:
		padWith(w, ' ', padLen-len(sVal))
		doWrite(w, sVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// padWith emits count bytes with value ch; count may be negative in which
// case nothing is emitted.
func padWith(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		singleByte[0] = ch
		doWrite(w, singleByte)
	}
}

// fmtInt emits integer value v in the requested base. Base-16 output is
// zero-padded and base-10 output space-padded up to padLen characters.
// All built-in fixed-size integer types as well as int, uint and uintptr
// are supported.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		uval     uint64
		negative bool
	)

	switch iVal := v.(type) {
	case uint8:
		uval = uint64(iVal)
	case uint16:
		uval = uint64(iVal)
	case uint32:
		uval = uint64(iVal)
	case uint64:
		uval = iVal
	case uint:
		uval = uint64(iVal)
	case uintptr:
		uval = uint64(iVal)
	case int8:
		negative, uval = iVal < 0, abs64(int64(iVal))
	case int16:
		negative, uval = iVal < 0, abs64(int64(iVal))
	case int32:
		negative, uval = iVal < 0, abs64(int64(iVal))
	case int64:
		negative, uval = iVal < 0, abs64(iVal)
	case int:
		negative, uval = iVal < 0, abs64(int64(iVal))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	padCh := byte(' ')
	if base == 16 {
		padCh = '0'
	}

	if padLen >= numBufSize {
		padLen = numBufSize - 1
	}

	// Emit the digits into numBuf in reverse order.
	var digitCount int
	digits := 0
	for {
		rem := uval % uint64(base)
		if rem < 10 {
			numBuf[digits] = '0' + byte(rem)
		} else {
			numBuf[digits] = 'a' + byte(rem-10)
		}
		digits++

		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}
	digitCount = digits

	if padCh == '0' {
		// Zero padding goes between the sign and the digits.
		limit := padLen
		if negative {
			limit--
		}
		for ; digits < limit; digits++ {
			numBuf[digits] = '0'
		}
		if negative {
			numBuf[digits] = '-'
			digits++
			negative = false
		}
	}

	for ; digits < padLen; digits++ {
		numBuf[digits] = padCh
	}

	if negative {
		// Place the sign right next to the digits, consuming one
		// padding character if any padding was applied.
		if digitCount < digits {
			numBuf[digitCount] = '-'
		} else {
			numBuf[digits] = '-'
			digits++
		}
	}

	// Reverse in place and emit.
	for left, right := 0, digits-1; left < right; left, right = left+1, right-1 {
		numBuf[left], numBuf[right] = numBuf[right], numBuf[left]
	}

	doWrite(w, numBuf[0:digits])
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// doWrite hides p from the compiler's escape analysis before passing it to
// the sink. Without this indirection the compiler cannot prove that p does
// not escape through the unknown io.Writer implementation and generates a
// heap allocation for every Printf argument block, which would crash the
// kernel when logging before the allocator is live.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyBuf.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This mirrors the helper
// with the same name in runtime/stubs.go.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
