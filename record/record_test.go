package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlotWithTailroom(n int) *Slot {
	return &Slot{Tail: make([]byte, 0, n)}
}

func TestPopulateFastPathScalars(t *testing.T) {
	s := newSlotWithTailroom(0)
	Populate(s, []Arg{U32(7), I64(-3), Dbl(3.5)})
	assert.Equal(t, Uint32, Tag(s.ArgType, 0))
	assert.Equal(t, Int64, Tag(s.ArgType, 1))
	assert.Equal(t, Double, Tag(s.ArgType, 2))
	assert.Equal(t, None, Tag(s.ArgType, 3))
	assert.EqualValues(t, 7, s.ArgVal[0])
	assert.Equal(t, int64(-3), int64(s.ArgVal[1]))
}

func TestPopulateNoneShortCircuits(t *testing.T) {
	s := newSlotWithTailroom(0)
	Populate(s, []Arg{U32(1), {}, U32(2)})
	assert.Equal(t, Uint32, Tag(s.ArgType, 0))
	assert.Equal(t, None, Tag(s.ArgType, 1))
}

func TestPopulateCstrZeroLength(t *testing.T) {
	s := newSlotWithTailroom(16)
	Populate(s, []Arg{CstrArg("")})
	off, n := DecodeOffsetLen(s.ArgVal[0])
	assert.EqualValues(t, 0, off)
	assert.EqualValues(t, 0, n)
}

func TestPopulateCstrTruncation(t *testing.T) {
	s := newSlotWithTailroom(8)
	long := strings.Repeat("x", 100)
	Populate(s, []Arg{CstrArg(long)})
	off, n := DecodeOffsetLen(s.ArgVal[0])
	got := string(s.Tail[off : off+n])
	assert.True(t, len(got) < len(long))
	assert.True(t, strings.HasSuffix(got, truncationMarker))
}

func TestPopulateZeroTailroomTruncatesCompound(t *testing.T) {
	s := newSlotWithTailroom(0)
	Populate(s, []Arg{CstrArg("hello"), RawArg([]byte{1, 2, 3})})
	_, n0 := DecodeOffsetLen(s.ArgVal[0])
	_, n1 := DecodeOffsetLen(s.ArgVal[1])
	assert.EqualValues(t, 0, n0)
	assert.EqualValues(t, 0, n1)
}

func TestPopulate16ArgsLegalSeventeenUndefined(t *testing.T) {
	s := newSlotWithTailroom(0)
	args := make([]Arg, MaxArgs)
	for i := range args {
		args[i] = U32(uint32(i))
	}
	Populate(s, args)
	for i := 0; i < MaxArgs; i++ {
		assert.Equal(t, Uint32, Tag(s.ArgType, i))
	}
}

func TestRawRoundTrip(t *testing.T) {
	s := newSlotWithTailroom(64)
	s.Timestamp = 123456789
	s.Seqnum = 42
	Populate(s, []Arg{
		CstrArg("hello"),
		U32(42),
		Dbl(3.5),
		RawArg([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
	})

	buf := Encode(nil, Version1_1, "myring", "myarea", "INFO", s)
	w, n, err := Decode(buf, Version1_1)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	assert.Equal(t, "myring", w.RingName)
	assert.Equal(t, "myarea", w.AreaName)
	assert.Equal(t, "INFO", w.SectionName)
	assert.EqualValues(t, 123456789, w.Timestamp)
	assert.EqualValues(t, 42, w.Seqnum)

	assert.Equal(t, Cstr, Tag(w.Slot.ArgType, 0))
	off, n0 := DecodeOffsetLen(w.Slot.ArgVal[0])
	assert.Equal(t, "hello", string(w.Slot.Tail[off:off+n0]))

	assert.Equal(t, Uint32, Tag(w.Slot.ArgType, 1))
	assert.EqualValues(t, 42, w.Slot.ArgVal[1])

	assert.Equal(t, Double, Tag(w.Slot.ArgType, 2))

	assert.Equal(t, Raw, Tag(w.Slot.ArgType, 3))
	off, n3 := DecodeOffsetLen(w.Slot.ArgVal[3])
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, w.Slot.Tail[off:off+n3])
}

func TestGstrArgReferenceNotCopied(t *testing.T) {
	s := newSlotWithTailroom(0)
	name := "global-string"
	Populate(s, []Arg{GstrArg(name)})
	assert.Equal(t, Gstr, Tag(s.ArgType, 0))
	assert.Equal(t, name, s.Gstr[0])
}
