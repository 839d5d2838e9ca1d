package ostrbuf

import (
	"io"

	"github.com/cloudwego/gopkg/bufiox"
	"github.com/cloudwego/gopkg/cache/mempool"
)

// DefaultFlushSize is the accumulated-byte threshold FD auto-flushes at
// when constructed with NewFD; NewFDSize lets a caller pick another one.
const DefaultFlushSize = 64 * 1024

// FD wraps an io.Writer (a file descriptor, pipe, or any other sink) with
// a mempool-backed accumulation buffer: writes accumulate in pending and
// only reach the underlying sink on Flush, or automatically once pending
// grows past flushSize.
type FD struct {
	failLatch

	out       bufiox.Writer
	pending   []byte
	flushSize int
}

// NewFD wraps w with FD's default auto-flush threshold.
func NewFD(w io.Writer) *FD {
	return NewFDSize(w, DefaultFlushSize)
}

// NewFDSize wraps w, auto-flushing once pending reaches flushSize bytes.
// flushSize <= 0 disables auto-flush; the caller must call Flush.
func NewFDSize(w io.Writer, flushSize int) *FD {
	return &FD{
		out:       bufiox.NewDefaultWriter(w),
		pending:   mempool.Malloc(0),
		flushSize: flushSize,
	}
}

// Write appends p to the pending buffer, auto-flushing if it crosses
// flushSize.
func (f *FD) Write(p []byte) (int, error) {
	if f.Failed() {
		return 0, f.Err()
	}
	f.pending = mempool.Append(f.pending, p...)
	if f.flushSize > 0 && len(f.pending) >= f.flushSize {
		if err := f.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush pushes the pending buffer through the underlying bufiox.Writer and
// on to the wrapped io.Writer.
func (f *FD) Flush() error {
	if f.Failed() {
		return f.Err()
	}
	if len(f.pending) == 0 {
		return nil
	}
	if _, err := f.out.WriteBinary(f.pending); err != nil {
		return f.fail(err)
	}
	if err := f.out.Flush(); err != nil {
		return f.fail(err)
	}
	f.pending = f.pending[:0]
	return nil
}

// Release returns the pending buffer to the mempool. The FD must not be
// used afterward.
func (f *FD) Release() {
	mempool.Free(f.pending)
	f.pending = nil
}
