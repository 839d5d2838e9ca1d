package format

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/record"
)

func TestRawFormatterRoundTrip(t *testing.T) {
	a := area.New("svc", []string{"INFO", "ERROR"})
	var s record.Slot
	s.Tail = make([]byte, 0, 256)
	s.Area = a
	s.Seqnum = 3
	s.Timestamp = 1234
	idx, _ := a.SectionIndex("ERROR")
	s.Section = idx
	record.Populate(&s, []record.Arg{
		record.CstrArg("hello"),
		record.U32(42),
		record.Dbl(3.5),
		record.RawArg([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
	})

	var buf bytes.Buffer
	f := NewRaw(record.Version1_1)
	require.NoError(t, f.Process(&buf, Data{RingName: "ring0", Slot: &s}))

	w, n, err := record.Decode(buf.Bytes(), record.Version1_1)
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), n)
	assert.Equal(t, "ring0", w.RingName)
	assert.Equal(t, "svc", w.AreaName)
	assert.Equal(t, "ERROR", w.SectionName)
	assert.EqualValues(t, 3, w.Seqnum)
	assert.EqualValues(t, 1234, w.Timestamp)

	assert.Equal(t, record.Cstr, record.Tag(w.Slot.ArgType, 0))
	assert.Equal(t, record.Uint32, record.Tag(w.Slot.ArgType, 1))
	assert.Equal(t, record.Double, record.Tag(w.Slot.ArgType, 2))
	assert.Equal(t, record.Raw, record.Tag(w.Slot.ArgType, 3))

	assert.Equal(t, "hello", string(record.ArgBytes(&w.Slot, 0)))
	assert.EqualValues(t, 42, w.Slot.ArgVal[1])
	assert.InDelta(t, 3.5, record.ArgDouble(w.Slot.ArgVal[2]), 0.0001)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, record.ArgBytes(&w.Slot, 3))
}
