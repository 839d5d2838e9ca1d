package engine

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/format"
	"github.com/ringlog/ringlog/record"
	"github.com/ringlog/ringlog/ring"
	"github.com/ringlog/ringlog/timestamp"
)

// recordingFormatter appends a plain "ring:arg0" line per record and is
// safe to read from a test goroutine after Stop.
type recordingFormatter struct {
	format.NoFraming
}

func (recordingFormatter) Process(w io.Writer, d format.Data) error {
	first := ""
	if t := record.Tag(d.Slot.ArgType, 0); t == record.Cstr || t == record.Gstr {
		if t == record.Gstr {
			first = d.Slot.Gstr[0]
		} else {
			first = string(record.ArgBytes(d.Slot, 0))
		}
	}
	_, err := io.WriteString(w, d.RingName+":"+first+"\n")
	return err
}

// memSink is a Sink backed by an in-memory, mutex-guarded buffer.
type memSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *memSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *memSink) Flush() error { return nil }

func (s *memSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func testOptions() Options {
	return Options{PollInterval: time.Millisecond, TSOCapacity: 64}
}

func TestNewStartStopIsIdle(t *testing.T) {
	sink := &memSink{}
	e := New(recordingFormatter{}, sink, testOptions())
	e.Start()
	e.Stop()
	assert.Empty(t, sink.String())
}

func TestDefaultMaskAppliesToNewAreas(t *testing.T) {
	mask := area.NewMask()
	require.NoError(t, mask.Add(".*:(INFO|WARN)"))

	opts := testOptions()
	opts.DefaultMask = mask
	e := New(recordingFormatter{}, &memSink{}, opts)

	a := e.AddArea("XYZ", nil)
	infoIdx, ok := a.SectionIndex("INFO")
	require.True(t, ok)
	assert.True(t, a.Test(infoIdx))

	debugIdx, ok := a.SectionIndex("DEBUG")
	require.True(t, ok)
	assert.False(t, a.Test(debugIdx))
}

func TestAreaReuseReturnsSameAreaForSameShape(t *testing.T) {
	e := New(recordingFormatter{}, &memSink{}, testOptions())

	sect := []string{"X", "Y", "Z"}
	a0 := e.AddArea("XYZ", sect)
	a1 := e.AddArea("XYZ", sect)
	assert.Same(t, a0, a1)

	a2 := e.AddArea("XYZ", []string{"A", "B", "C"})
	assert.NotSame(t, a0, a2)
}

func postRecord(r *ring.Ring, argIdx uint64, arg0 string) {
	r.Lock()
	s := r.PushBegin()
	s.Reset()
	s.Area = nil // area identity doesn't matter for this formatter
	s.Section = 0
	s.Timestamp = timestamp.T(time.Now().UnixNano())
	s.Seqnum = argIdx
	record.Populate(s, []record.Arg{record.CstrArg(arg0)})
	r.PushCommit()
	r.Unlock()
}

func TestDropMarkerPrecedesGapRecord(t *testing.T) {
	sink := &memSink{}
	e := New(format.NewBasic(format.Ring), sink, testOptions())

	r := e.AddRing("svc", ring.Options{Capacity: 4, RecordTailroom: 64})

	// Ring capacity rounds up to 4, one slot reserved, so only 3 records
	// can be live at once; seqnum is stamped by the caller here rather
	// than by IncSeqnum so the engine observes a gap: post seqnums 7,8,9
	// directly, skipping 0..6 as if they had already been dropped/consumed
	// on a prior pass that this fresh ringState never saw.
	for _, n := range []uint64{7, 8, 9} {
		r.Lock()
		s := r.PushBegin()
		s.Reset()
		s.Timestamp = timestamp.T(time.Now().UnixNano())
		s.Seqnum = n
		record.Populate(s, []record.Arg{record.CstrArg("m")})
		r.PushCommit()
		r.Unlock()
	}

	e.Start()
	waitUntil(t, time.Second, func() bool {
		return r.Empty()
	})
	e.Stop()

	out := sink.String()
	assert.Contains(t, out, "dropped 7 records")
	assert.Contains(t, out, "svc m")
	assert.Less(t, bytes.Index([]byte(out), []byte("svc dropped 7 records")), bytes.Index([]byte(out), []byte("svc m")))
}

func TestFlushAcknowledgesAfterPriorRecords(t *testing.T) {
	sink := &memSink{}
	e := New(recordingFormatter{}, sink, testOptions())
	r := e.AddRing("svc", ring.Options{Capacity: 16, RecordTailroom: 64})
	e.Start()
	defer e.Stop()

	for i := 0; i < 5; i++ {
		postRecord(r, uint64(i), "x")
	}

	ok := e.Flush(r, time.Second)
	assert.True(t, ok)
	assert.Equal(t, 5, bytes.Count([]byte(sink.String()), []byte("svc:x")))
}

func TestChangeTimesourcePropagatesToRings(t *testing.T) {
	e := New(recordingFormatter{}, &memSink{}, testOptions())
	r := e.AddRing("svc", ring.Options{Capacity: 16, RecordTailroom: 64})
	e.Start()
	defer e.Stop()

	zero := timestamp.Zero()
	ok := e.ChangeTimesource(zero, time.Second)
	assert.True(t, ok)
	assert.Equal(t, zero, e.Timesource())
	assert.Equal(t, zero, r.Timesource())
}

func TestOrphanedEmptyRingIsReclaimed(t *testing.T) {
	e := New(recordingFormatter{}, &memSink{}, testOptions())
	r := e.AddRing("svc", ring.Options{Capacity: 8, RecordTailroom: 64})
	e.Start()
	defer e.Stop()

	r.Release() // drop the caller's reference; only the engine holds it now

	waitUntil(t, time.Second, func() bool {
		_, ok := e.FindRing("svc")
		return !ok
	})
}

func TestDirectDrainWithoutTSO(t *testing.T) {
	sink := &memSink{}
	opts := testOptions()
	opts.TSOCapacity = 0
	e := New(recordingFormatter{}, sink, opts)
	r := e.AddRing("svc", ring.Options{Capacity: 16, RecordTailroom: 64})
	e.Start()
	defer e.Stop()

	for i := 0; i < 4; i++ {
		postRecord(r, uint64(i), "y")
	}

	waitUntil(t, time.Second, func() bool {
		return r.Empty()
	})
	assert.Equal(t, 4, bytes.Count([]byte(sink.String()), []byte("svc:y")))
}
