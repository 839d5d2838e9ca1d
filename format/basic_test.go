package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/record"
)

func TestBasicPlainArgsNoFmt(t *testing.T) {
	a := area.New("svc", []string{"INFO"})
	var s record.Slot
	s.Area = a
	s.Seqnum = 7
	record.Populate(&s, []record.Arg{record.U32(42), record.Dbl(3.5)})

	var buf bytes.Buffer
	f := NewBasic(Default)
	require.NoError(t, f.Process(&buf, Data{RingName: "r0", Slot: &s}))

	out := buf.String()
	assert.Contains(t, out, "r0:7")
	assert.Contains(t, out, "svc:INFO")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "3.5")
}

func TestBasicFormatStringMatch(t *testing.T) {
	var s record.Slot
	s.Tail = make([]byte, 0, 256)
	record.Populate(&s, []record.Arg{
		record.CstrArg("count=%d name=%s"),
		record.U32(9),
		record.GstrArg("widget"),
	})

	var buf bytes.Buffer
	f := NewBasic(Default)
	require.NoError(t, f.Process(&buf, Data{RingName: "r0", Slot: &s}))
	assert.Contains(t, buf.String(), "count=9 name=widget")
}

func TestBasicFormatMismatchEmitsMarker(t *testing.T) {
	var s record.Slot
	s.Tail = make([]byte, 0, 256)
	record.Populate(&s, []record.Arg{
		record.CstrArg("value=%s"),
		record.U32(9),
	})

	var buf bytes.Buffer
	f := NewBasic(Default)
	require.NoError(t, f.Process(&buf, Data{RingName: "r0", Slot: &s}))
	assert.True(t, strings.Contains(buf.String(), "<fmt-mismatch:%s>"))
}

func TestBasicCstrNullRendersPlaceholder(t *testing.T) {
	var s record.Slot
	s.Tail = make([]byte, 0, 256)
	record.Populate(&s, []record.Arg{record.CstrArg("")})

	var buf bytes.Buffer
	f := NewBasic(Default)
	require.NoError(t, f.Process(&buf, Data{RingName: "r0", Slot: &s}))
	assert.Contains(t, buf.String(), "(null)")
}

func TestBasicXdumpHexRender(t *testing.T) {
	var s record.Slot
	s.Tail = make([]byte, 0, 256)
	record.Populate(&s, []record.Arg{record.XdumpArg(1, []byte("hi"))})

	var buf bytes.Buffer
	f := NewBasic(Default)
	require.NoError(t, f.Process(&buf, Data{RingName: "r0", Slot: &s}))
	assert.Contains(t, buf.String(), "68 69")
}
