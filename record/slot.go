package record

import (
	"github.com/ringlog/ringlog/timestamp"
)

// SpecialSection is the reserved section index that marks a Slot as a
// special (non-user) control record rather than a logged message.
const SpecialSection = 0xFFF

// Opcode tags the command carried by a special record's ArgType field.
type Opcode uint64

const (
	OpNone Opcode = iota
	OpFlush
	OpTimesourceChange
)

// AreaHandle is implemented by *area.Area. Declared here (instead of
// importing package area) to avoid a dependency cycle: area only needs to
// know its own name for equality/formatting, record only needs a stable
// identity + name to stamp into a Slot.
type AreaHandle interface {
	AreaName() string
	SectionName(idx uint16) string
}

// Slot is the fixed-size record layout every ring slot shares: a header
// plus up to MaxArgs inline argument scalars, plus a tailroom byte buffer
// for compound argument payloads. Tailroom's backing array is owned by the
// ring (sized by the ring's configured record_tailroom) and reused across
// pushes; Populate only ever writes into Tail[:cap(Tail)].
type Slot struct {
	Area      AreaHandle
	Timestamp timestamp.T
	Seqnum    uint64
	Section   uint16
	ArgType   uint64
	ArgVal    [MaxArgs]uint64

	// Tail is the tailroom buffer. Reset (not reallocated) before each
	// Populate call; TailUsed is the number of bytes occupied after it.
	Tail     []byte
	TailUsed int

	// Gstr holds references captured by GstrArg for slots that used it, so
	// that the consumer can read them back without touching the tailroom
	// or the original caller-owned memory's lifetime assumptions. Indexed
	// by argument position; empty string for slots that are not Gstr.
	Gstr [MaxArgs]string

	// XdumpFmt holds the format descriptor for Xdump arguments, indexed by
	// argument position.
	XdumpFmt [MaxArgs]uint8
}

// IsSpecial reports whether s is an engine control record.
func (s *Slot) IsSpecial() bool {
	return s.Area == nil && s.Section == SpecialSection
}

// Reset clears a slot for reuse; Tail's backing array/capacity survives.
func (s *Slot) Reset() {
	s.Area = nil
	s.Timestamp = 0
	s.Seqnum = 0
	s.Section = 0
	s.ArgType = 0
	for i := range s.ArgVal {
		s.ArgVal[i] = 0
	}
	for i := range s.Gstr {
		s.Gstr[i] = ""
		s.XdumpFmt[i] = 0
	}
	s.Tail = s.Tail[:0]
	s.TailUsed = 0
}

// encodeOffsetLen packs a tailroom (offset, len) pair into a single argval
// scalar: offset in the high 32 bits, length in the low 32 bits.
func encodeOffsetLen(offset, length uint32) uint64 {
	return uint64(offset)<<32 | uint64(length)
}

// DecodeOffsetLen unpacks a compound argval back into (offset, len).
func DecodeOffsetLen(v uint64) (offset, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// truncationMarker is overwritten onto the last bytes of a CSTR that had to
// be truncated to fit tailroom, so a reader can tell the string was cut.
const truncationMarker = ">>>"

// Populate writes args into slot in order, setting header tags and either
// the inline scalar (fast path: None..Double, Gstr) or a tailroom-backed
// (offset, len) pair (argpack path: Cstr, Xdump, Raw). It stops at the
// first None argument or after MaxArgs, whichever comes first.
//
// cap(slot.Tail) bounds how many compound bytes can be copied; 0 is legal
// and truncates every compound argument to empty.
func Populate(slot *Slot, args []Arg) {
	slot.Tail = slot.Tail[:0]
	tailCap := cap(slot.Tail)
	off := 0

	n := len(args)
	if n > MaxArgs {
		n = MaxArgs
	}
	for i := 0; i < n; i++ {
		a := args[i]
		if a.Type == None {
			break
		}
		slot.ArgType = packTag(slot.ArgType, i, a.Type)

		switch a.Type {
		case Gstr:
			slot.Gstr[i] = a.str
			slot.ArgVal[i] = uint64(len(a.str))
		case Cstr:
			off = copyCstr(slot, i, off, tailCap, a.bytes)
		case Xdump, Raw:
			off = copyRaw(slot, i, off, tailCap, a.bytes)
			if a.Type == Xdump {
				slot.XdumpFmt[i] = a.format
			}
		default:
			slot.ArgVal[i] = a.scalar
		}
	}
	slot.TailUsed = len(slot.Tail)
}

func copyCstr(slot *Slot, i, off, tailCap int, src []byte) int {
	room := tailCap - off
	if room <= 0 {
		// No space left, not even for a null terminator: truncate to empty.
		slot.ArgVal[i] = encodeOffsetLen(uint32(off), 0)
		return off
	}
	avail := room - 1 // reserve 1 byte for the null terminator
	n := len(src)
	truncated := false
	if n > avail {
		n = avail
		truncated = true
	}
	slot.Tail = slot.Tail[:off+n+1]
	copy(slot.Tail[off:off+n], src[:n])
	slot.Tail[off+n] = 0
	if truncated && n >= len(truncationMarker) {
		copy(slot.Tail[off+n-len(truncationMarker):off+n], truncationMarker)
	}
	slot.ArgVal[i] = encodeOffsetLen(uint32(off), uint32(n))
	return off + n + 1
}

// ArgBytes returns the tailroom-backed bytes for a Cstr/Xdump/Raw argument
// at position i, decoding its (offset, len) pair out of ArgVal. Returns nil
// for any other argument type.
func ArgBytes(s *Slot, i int) []byte {
	t := Tag(s.ArgType, i)
	if t != Cstr && t != Xdump && t != Raw {
		return nil
	}
	off, length := DecodeOffsetLen(s.ArgVal[i])
	end := int(off) + int(length)
	if end > len(s.Tail) {
		end = len(s.Tail)
	}
	if int(off) > end {
		return nil
	}
	return s.Tail[off:end]
}

func copyRaw(slot *Slot, i, off, tailCap int, src []byte) int {
	avail := tailCap - off
	if avail < 0 {
		avail = 0
	}
	n := len(src)
	if n > avail {
		n = avail
	}
	slot.Tail = slot.Tail[:off+n]
	copy(slot.Tail[off:off+n], src[:n])
	slot.ArgVal[i] = encodeOffsetLen(uint32(off), uint32(n))
	return off + n
}

