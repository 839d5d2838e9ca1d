package record

import (
	"encoding/binary"
	"fmt"

	"github.com/ringlog/ringlog/timestamp"
)

// Version selects the width of the XDUMP/RAW length prefix in the wire
// format: v1.0 uses a 16-bit length, v1.1 a 32-bit length.
type Version uint8

const (
	Version1_0 Version = iota
	Version1_1
)

// Wire is the decoded external form of one record: the §6 wire format
// names the ring/area/section by string rather than by pointer, since a
// decoder runs out-of-process and has no access to the engine's registries.
type Wire struct {
	Timestamp   timestamp.T
	Seqnum      uint64
	RingName    string
	AreaName    string
	SectionName string
	Slot        Slot
}

// Encode appends the wire encoding of (ringName, areaName, sectionName,
// slot) to buf per §6 and returns the extended slice.
func Encode(buf []byte, version Version, ringName, areaName, sectionName string, slot *Slot) []byte {
	buf = appendU64(buf, uint64(slot.Timestamp))
	buf = appendU64(buf, slot.Seqnum)
	buf = appendU8String(buf, ringName)
	buf = appendU8String(buf, areaName)
	buf = appendU8String(buf, sectionName)
	buf = appendU64(buf, slot.ArgType)

	for i := 0; i < MaxArgs; i++ {
		tag := Tag(slot.ArgType, i)
		if tag == None {
			break
		}
		switch tag {
		case Cstr:
			off, n := DecodeOffsetLen(slot.ArgVal[i])
			buf = appendU16Bytes(buf, slot.Tail[off:off+n])
		case Gstr:
			buf = appendU16String(buf, slot.Gstr[i])
		case Xdump, Raw:
			off, n := DecodeOffsetLen(slot.ArgVal[i])
			payload := slot.Tail[off : off+n]
			if version == Version1_0 {
				buf = appendU16Bytes(buf, payload)
			} else {
				buf = appendU32Bytes(buf, payload)
			}
		case Uint32, Int32:
			buf = appendU32(buf, uint32(slot.ArgVal[i]))
		default:
			buf = appendU64(buf, slot.ArgVal[i])
		}
	}
	return buf
}

// Decode reads one record from buf per §6, returning the decoded Wire and
// the number of bytes consumed.
func Decode(buf []byte, version Version) (Wire, int, error) {
	var w Wire
	n := 0

	u64, k, err := readU64(buf[n:])
	if err != nil {
		return w, 0, err
	}
	w.Timestamp = timestamp.T(u64)
	n += k

	u64, k, err = readU64(buf[n:])
	if err != nil {
		return w, 0, err
	}
	w.Seqnum = u64
	n += k

	var s string
	if s, k, err = readU8String(buf[n:]); err != nil {
		return w, 0, err
	}
	w.RingName = s
	n += k

	if s, k, err = readU8String(buf[n:]); err != nil {
		return w, 0, err
	}
	w.AreaName = s
	n += k

	if s, k, err = readU8String(buf[n:]); err != nil {
		return w, 0, err
	}
	w.SectionName = s
	n += k

	if u64, k, err = readU64(buf[n:]); err != nil {
		return w, 0, err
	}
	w.Slot.ArgType = u64
	n += k

	off := 0
	for i := 0; i < MaxArgs; i++ {
		tag := Tag(w.Slot.ArgType, i)
		if tag == None {
			break
		}
		switch tag {
		case Cstr:
			var bs []byte
			if bs, k, err = readU16Bytes(buf[n:]); err != nil {
				return w, 0, err
			}
			n += k
			w.Slot.Tail = append(w.Slot.Tail, bs...)
			w.Slot.ArgVal[i] = encodeOffsetLen(uint32(off), uint32(len(bs)))
			off += len(bs)
		case Gstr:
			if s, k, err = readU16String(buf[n:]); err != nil {
				return w, 0, err
			}
			n += k
			w.Slot.Gstr[i] = s
			w.Slot.ArgVal[i] = uint64(len(s))
		case Xdump, Raw:
			var bs []byte
			if version == Version1_0 {
				bs, k, err = readU16Bytes(buf[n:])
			} else {
				bs, k, err = readU32Bytes(buf[n:])
			}
			if err != nil {
				return w, 0, err
			}
			n += k
			w.Slot.Tail = append(w.Slot.Tail, bs...)
			w.Slot.ArgVal[i] = encodeOffsetLen(uint32(off), uint32(len(bs)))
			off += len(bs)
		case Uint32, Int32:
			var v uint32
			if v, k, err = readU32(buf[n:]); err != nil {
				return w, 0, err
			}
			w.Slot.ArgVal[i] = uint64(v)
			n += k
		default:
			if u64, k, err = readU64(buf[n:]); err != nil {
				return w, 0, err
			}
			w.Slot.ArgVal[i] = u64
			n += k
		}
	}
	w.Slot.Timestamp = w.Timestamp
	w.Slot.Seqnum = w.Seqnum
	return w, n, nil
}

var errShort = fmt.Errorf("record: buffer too short")

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU8String(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func appendU16Bytes(buf []byte, b []byte) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(b)))
	buf = append(buf, tmp[:]...)
	return append(buf, b...)
}

func appendU16String(buf []byte, s string) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

func appendU32Bytes(buf []byte, b []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(b)))
	buf = append(buf, tmp[:]...)
	return append(buf, b...)
}

func readU64(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, errShort
	}
	return binary.LittleEndian.Uint64(buf), 8, nil
}

func readU32(buf []byte) (uint32, int, error) {
	if len(buf) < 4 {
		return 0, 0, errShort
	}
	return binary.LittleEndian.Uint32(buf), 4, nil
}

func readU8String(buf []byte) (string, int, error) {
	if len(buf) < 1 {
		return "", 0, errShort
	}
	n := int(buf[0])
	if len(buf) < 1+n {
		return "", 0, errShort
	}
	return string(buf[1 : 1+n]), 1 + n, nil
}

func readU16Bytes(buf []byte) ([]byte, int, error) {
	if len(buf) < 2 {
		return nil, 0, errShort
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < 2+n {
		return nil, 0, errShort
	}
	out := make([]byte, n)
	copy(out, buf[2:2+n])
	return out, 2 + n, nil
}

func readU16String(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, errShort
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < 2+n {
		return "", 0, errShort
	}
	return string(buf[2 : 2+n]), 2 + n, nil
}

func readU32Bytes(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, errShort
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return nil, 0, errShort
	}
	out := make([]byte, n)
	copy(out, buf[4:4+n])
	return out, 4 + n, nil
}
