// Package record implements the fixed-size record layout and the inline
// argument-packing protocol described in the engine design: a record header
// plus up to 16 typed arguments, with compound arguments (CSTR/XDUMP/RAW)
// referring to bytes copied into the slot's tailroom.
package record

import (
	"math"
	"unsafe"

	"github.com/cloudwego/gopkg/unsafex"
)

// Type tags the kind of value an Arg carries. Packed 4 bits wide in a
// Record's ArgType field, low nibble first (argument 0 in bits [0:4)).
type Type uint8

const (
	None Type = iota
	Uint32
	Int32
	Uint64
	Int64
	Pointer
	Double
	Cstr
	Gstr
	Xdump
	Raw
)

// MaxArgs is the fixed ceiling on arguments per record. Argument 17 (index
// 16) is undefined behavior at the API level, per design.
const MaxArgs = 16

// is32 reports whether t occupies a 32-bit argval slot. Frozen per design:
// Uint32/Int32 are 32-bit, everything else is 64-bit regardless of target.
func is32(t Type) bool {
	return t == Uint32 || t == Int32
}

// Arg is a tagged value a caller passes to Post. Simple args (None..Double)
// carry only a scalar; Gstr carries a bare reference to caller-owned
// storage; compound args (Cstr, Xdump, Raw) carry a byte payload that gets
// copied into the record's tailroom at population time.
type Arg struct {
	Type Type

	scalar uint64 // valid for Uint32/Int32/Uint64/Int64/Pointer/Double
	str    string // valid for Gstr: reference only, never copied
	bytes  []byte // valid for Cstr/Xdump/Raw: copied into tailroom
	format uint8  // Xdump format descriptor
}

func U32(v uint32) Arg  { return Arg{Type: Uint32, scalar: uint64(v)} }
func I32(v int32) Arg   { return Arg{Type: Int32, scalar: uint64(uint32(v))} }
func U64(v uint64) Arg  { return Arg{Type: Uint64, scalar: v} }
func I64(v int64) Arg   { return Arg{Type: Int64, scalar: uint64(v)} }
func Dbl(v float64) Arg { return Arg{Type: Double, scalar: math.Float64bits(v)} }

// Ptr stores a raw pointer value, rendered opaquely by formatters.
func Ptr(p unsafe.Pointer) Arg { return Arg{Type: Pointer, scalar: uint64(uintptr(p))} }

// GstrArg wraps a string whose storage outlives the engine: only the
// reference is captured, never copied. The caller is responsible for
// keeping the backing array alive (e.g. a string literal, or a buffer that
// out-lives any consumer of the log).
func GstrArg(s string) Arg {
	return Arg{Type: Gstr, str: s}
}

// CstrArg copies s into the record's tailroom at population time (by value).
func CstrArg(s string) Arg {
	return Arg{Type: Cstr, bytes: unsafex.StringToBinary(s)}
}

// XdumpArg wraps a typed binary blob with a format descriptor used by
// hexdump-like rendering in the formatter.
func XdumpArg(format uint8, b []byte) Arg {
	return Arg{Type: Xdump, bytes: b, format: format}
}

// RawArg wraps opaque bytes, copied into tailroom verbatim.
func RawArg(b []byte) Arg {
	return Arg{Type: Raw, bytes: b}
}

// ArgDouble reinterprets a Double argument's raw argval scalar as a float64.
func ArgDouble(v uint64) float64 {
	return math.Float64frombits(v)
}

// IsCompound reports whether a carries a byte payload that must be copied
// into tailroom rather than stored inline as a scalar.
func (a Arg) IsCompound() bool {
	return a.Type == Cstr || a.Type == Xdump || a.Type == Raw
}

// packTag sets the 4-bit tag for argument i within argtype.
func packTag(argtype uint64, i int, t Type) uint64 {
	shift := uint(i) * 4
	argtype &^= uint64(0xF) << shift
	argtype |= uint64(t&0xF) << shift
	return argtype
}

// Tag returns the 4-bit tag for argument i within argtype.
func Tag(argtype uint64, i int) Type {
	return Type((argtype >> (uint(i) * 4)) & 0xF)
}
