package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bytedance/gopkg/lang/span"

	"github.com/ringlog/ringlog/record"
	"github.com/ringlog/ringlog/timestamp"
)

// Fields selects which header fields Basic renders, a direct analogue of
// hogl's format_basic field bitset.
type Fields uint32

const (
	Timestamp Fields = 1 << iota
	Timedelta
	Ring
	Seqnum
	Area
	Section
	Recdump
)

// Default mirrors format_basic::DEFAULT: timestamp, ring:seqnum, area:section.
const Default = Timestamp | Ring | Seqnum | Area | Section

// spanCacheSize bounds the scratch-buffer pool rendered lines are copied
// out of before being handed to the output sink, the same role
// span.NewSpanCache plays for thrift's binary decoder. Package-level and
// type-inferred because SpanCache's concrete type is unexported.
const spanCacheSize = 256 * 1024

var basicSpanCache = span.NewSpanCache(spanCacheSize)

// Basic is the default text formatter: a header (configurable via Fields)
// followed by either a safely-matched printf-style rendering (when arg 0 is
// a CSTR/GSTR format string followed by more arguments) or a plain
// space-separated dump of each argument's value.
type Basic struct {
	NoFraming

	fields        Fields
	lastTimestamp timestamp.T
	scratch       []byte
}

// NewBasic constructs a Basic formatter rendering the given fields.
func NewBasic(fields Fields) *Basic {
	if fields == 0 {
		fields = Default
	}
	return &Basic{
		fields:  fields,
		scratch: make([]byte, 0, 256),
	}
}

func (b *Basic) Process(w io.Writer, d Data) error {
	s := d.Slot
	b.scratch = b.scratch[:0]
	b.appendHeader(d)

	t0 := record.Tag(s.ArgType, 0)
	t1 := record.Tag(s.ArgType, 1)

	switch {
	case (t0 == record.Cstr || t0 == record.Gstr) && t1 != record.None:
		b.appendWithFmt(s)
	case t0 == record.Raw:
		b.appendRawSummary(s, 0)
	default:
		b.appendWithoutFmt(s, 0)
	}
	b.scratch = append(b.scratch, '\n')

	line := basicSpanCache.Copy(b.scratch)
	_, err := w.Write(line)
	return err
}

func (b *Basic) appendHeader(d Data) {
	s := d.Slot
	areaName, sectName := "INVALID", "INVALID"
	if s.Area != nil {
		areaName = s.Area.AreaName()
		sectName = s.Area.SectionName(s.Section)
	}

	if b.fields&Recdump != 0 {
		fmt.Fprintf(sliceWriter{b}, "ring %s seqnum %d argtype 0x%x ", d.RingName, s.Seqnum, s.ArgType)
	}
	if b.fields&Timestamp != 0 {
		tm := s.Timestamp.ToTime()
		fmt.Fprintf(sliceWriter{b}, "%02d%02d%04d %02d:%02d:%02d.%09d ",
			int(tm.Month()), tm.Day(), tm.Year(), tm.Hour(), tm.Minute(), tm.Second(), tm.Nanosecond())
	}
	if b.fields&Timedelta != 0 {
		var delta timestamp.T
		if b.lastTimestamp != 0 {
			delta = s.Timestamp - b.lastTimestamp
		}
		b.lastTimestamp = s.Timestamp
		fmt.Fprintf(sliceWriter{b}, "(%d) ", int64(delta))
	}
	switch {
	case b.fields&Ring != 0 && b.fields&Seqnum != 0:
		fmt.Fprintf(sliceWriter{b}, "%s:%d ", d.RingName, s.Seqnum)
	case b.fields&Ring != 0:
		fmt.Fprintf(sliceWriter{b}, "%s ", d.RingName)
	case b.fields&Seqnum != 0:
		fmt.Fprintf(sliceWriter{b}, "%d ", s.Seqnum)
	}
	switch {
	case b.fields&Area != 0 && b.fields&Section != 0:
		fmt.Fprintf(sliceWriter{b}, "%s:%s ", areaName, sectName)
	case b.fields&Area != 0:
		fmt.Fprintf(sliceWriter{b}, "%s ", areaName)
	case b.fields&Section != 0:
		fmt.Fprintf(sliceWriter{b}, "%s ", sectName)
	}
}

// appendWithoutFmt dumps every argument, space separated, with a
// type-appropriate rendering and no format string involved.
func (b *Basic) appendWithoutFmt(s *record.Slot, start int) {
	for i := start; i < record.MaxArgs; i++ {
		t := record.Tag(s.ArgType, i)
		if t == record.None {
			return
		}
		if i > start {
			b.scratch = append(b.scratch, ' ')
		}
		b.appendArg(s, i, t)
	}
}

func (b *Basic) appendArg(s *record.Slot, i int, t record.Type) {
	v := s.ArgVal[i]
	switch t {
	case record.Gstr:
		b.scratch = append(b.scratch, s.Gstr[i]...)
	case record.Pointer:
		fmt.Fprintf(sliceWriter{b}, "0x%x", v)
	case record.Int32:
		b.scratch = strconv.AppendInt(b.scratch, int64(int32(v)), 10)
	case record.Int64:
		b.scratch = strconv.AppendInt(b.scratch, int64(v), 10)
	case record.Uint32:
		b.scratch = strconv.AppendUint(b.scratch, uint64(uint32(v)), 10)
	case record.Uint64:
		b.scratch = strconv.AppendUint(b.scratch, v, 10)
	case record.Double:
		b.scratch = strconv.AppendFloat(b.scratch, record.ArgDouble(v), 'f', -1, 64)
	case record.Cstr:
		data := record.ArgBytes(s, i)
		if len(data) == 0 {
			b.scratch = append(b.scratch, "(null)"...)
		} else {
			b.scratch = append(b.scratch, data...)
		}
	case record.Xdump:
		b.appendHexdump(record.ArgBytes(s, i))
	case record.Raw:
		b.appendRawSummary(s, i)
	default:
		b.scratch = strconv.AppendUint(b.scratch, v, 10)
	}
}

func (b *Basic) appendRawSummary(s *record.Slot, i int) {
	data := record.ArgBytes(s, i)
	fmt.Fprintf(sliceWriter{b}, "rawdata %d bytes", len(data))
}

func (b *Basic) appendHexdump(data []byte) {
	b.scratch = append(b.scratch, '\n')
	for off := 0; off < len(data); off += 16 {
		fmt.Fprintf(sliceWriter{b}, "\t%03d: ", off)
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		for i := off; i < off+16; i++ {
			if i < end {
				fmt.Fprintf(sliceWriter{b}, "%02x ", data[i])
			} else {
				b.scratch = append(b.scratch, "   "...)
			}
		}
		b.scratch = append(b.scratch, "  "...)
		for i := off; i < end; i++ {
			c := data[i]
			if c >= 0x20 && c < 0x7f {
				b.scratch = append(b.scratch, c)
			} else {
				b.scratch = append(b.scratch, '.')
			}
		}
		b.scratch = append(b.scratch, '\n')
	}
}

// appendWithFmt renders arg 0 (a CSTR or GSTR format string) against the
// remaining arguments, matching each conversion specifier's expected kind
// to the actual argument tag and writing an inline marker instead of
// invoking any unsafe formatting machinery on a mismatch.
func (b *Basic) appendWithFmt(s *record.Slot) {
	t0 := record.Tag(s.ArgType, 0)
	var layout string
	if t0 == record.Gstr {
		layout = s.Gstr[0]
	} else {
		layout = string(record.ArgBytes(s, 0))
	}

	argi := 1
	i := 0
	for i < len(layout) {
		c := layout[i]
		if c != '%' {
			b.scratch = append(b.scratch, c)
			i++
			continue
		}
		spec, verb, next := scanSpecifier(layout, i)
		i = next
		if verb == 0 {
			// Truncated conversion at end of string: emit it literally.
			b.scratch = append(b.scratch, spec...)
			continue
		}
		if verb == '%' {
			b.scratch = append(b.scratch, '%')
			continue
		}
		if argi >= record.MaxArgs || record.Tag(s.ArgType, argi) == record.None {
			fmt.Fprintf(sliceWriter{b}, "<missing-arg:%s>", spec)
			continue
		}
		t := record.Tag(s.ArgType, argi)
		if !verbAccepts(verb, t) {
			fmt.Fprintf(sliceWriter{b}, "<fmt-mismatch:%s>", spec)
			argi++
			continue
		}
		b.appendArg(s, argi, t)
		argi++
	}
}

// scanSpecifier consumes one '%...verb' conversion starting at i (layout[i]
// == '%'), returning the raw specifier text, the verb rune, and the index
// just past it.
func scanSpecifier(layout string, i int) (spec string, verb byte, next int) {
	start := i
	i++ // skip '%'
	for i < len(layout) && strings.IndexByte("-+ #0123456789.lhz", layout[i]) >= 0 {
		i++
	}
	if i >= len(layout) {
		return layout[start:], 0, i
	}
	verb = layout[i]
	i++
	return layout[start:i], verb, i
}

// verbAccepts reports whether a printf verb is compatible with an argument
// tag, the safe subset of C's format-to-type matching.
func verbAccepts(verb byte, t record.Type) bool {
	switch verb {
	case 'd', 'i':
		return t == record.Int32 || t == record.Int64 || t == record.Uint32 || t == record.Uint64
	case 'u', 'x', 'X', 'o':
		return t == record.Uint32 || t == record.Uint64 || t == record.Int32 || t == record.Int64
	case 'f', 'F', 'g', 'G', 'e', 'E':
		return t == record.Double
	case 's':
		return t == record.Cstr || t == record.Gstr
	case 'p':
		return t == record.Pointer
	case 'c':
		return t == record.Uint32 || t == record.Int32
	default:
		return false
	}
}

// sliceWriter adapts Basic.scratch to io.Writer for fmt.Fprintf calls.
type sliceWriter struct{ b *Basic }

func (w sliceWriter) Write(p []byte) (int, error) {
	w.b.scratch = append(w.b.scratch, p...)
	return len(p), nil
}
