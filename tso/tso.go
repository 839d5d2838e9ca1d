// Package tso implements the engine's timestamp-ordering buffer: a flat
// array of observed-but-not-yet-emitted records that the engine sorts by
// timestamp before handing them to the formatter, trading a bounded window
// of buffering for best-effort cross-ring ordering.
package tso

import (
	"sort"

	"github.com/ringlog/ringlog/record"
	"github.com/ringlog/ringlog/timestamp"
)

// Entry is one buffered, not-yet-emitted observation: a record seen in some
// ring at some ring-local index, stamped with a strictly increasing
// per-ring timestamp.
type Entry struct {
	Timestamp timestamp.T
	Slot      *record.Slot
	RingIdx   uint64 // ring-local index the slot was observed at
	RingID    int    // index into the engine's ring index, identifies which ring this came from
}

// Buffer is a fixed-capacity flat array of Entry, filled by the engine's
// per-ring scan and drained in timestamp order on Flush.
type Buffer struct {
	capacity int
	entries  []Entry
}

// New allocates a buffer holding up to capacity entries. Zero capacity
// disables the TSO (the caller should not push to it; Flush is then a
// no-op).
func New(capacity int) *Buffer {
	return &Buffer{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Capacity returns the buffer's entry capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of entries currently buffered.
func (b *Buffer) Len() int { return len(b.entries) }

// Full reports whether the buffer has reached capacity.
func (b *Buffer) Full() bool { return len(b.entries) >= b.capacity }

// Push appends e. Returns false if the buffer is already full; the caller
// is then expected to flush (normally or with FlushHalf) before retrying.
func (b *Buffer) Push(e Entry) bool {
	if b.Full() {
		return false
	}
	b.entries = append(b.entries, e)
	return true
}

// Margin is the leftover fraction Flush keeps buffered to absorb records
// that arrive out of order across rings on the next polling iteration.
func (b *Buffer) Margin() int { return b.capacity / 8 }

// Flush sorts the buffered entries by timestamp and pops a prefix of
// size len()-Margin(), leaving the margin buffered. Entries are returned
// in the order they should be emitted (non-decreasing timestamp).
func (b *Buffer) Flush() []Entry {
	return b.flush(b.Margin())
}

// FlushHalf is the tso-full emergency path: sorts the buffered entries and
// pops the first half, leaving the rest buffered. Called when Push finds
// the buffer already full; the caller emits a tso-full marker before the
// returned entries.
func (b *Buffer) FlushHalf() []Entry {
	return b.flush(len(b.entries) / 2)
}

// FlushAll sorts and pops everything; used on shutdown/drain where no
// margin needs to be kept for a next iteration.
func (b *Buffer) FlushAll() []Entry {
	return b.flush(0)
}

// flush sorts entries by timestamp (stable, so same-timestamp entries keep
// their observation order) and pops len(entries)-keep oldest entries,
// compacting the remainder to the front.
func (b *Buffer) flush(keep int) []Entry {
	n := len(b.entries)
	if n == 0 {
		return nil
	}
	sort.SliceStable(b.entries, func(i, j int) bool {
		return b.entries[i].Timestamp < b.entries[j].Timestamp
	})

	pop := n - keep
	if pop <= 0 {
		return nil
	}
	if pop > n {
		pop = n
	}

	popped := make([]Entry, pop)
	copy(popped, b.entries[:pop])

	remaining := n - pop
	copy(b.entries[:remaining], b.entries[pop:])
	b.entries = b.entries[:remaining]

	return popped
}

// Reset empties the buffer without returning its contents; used when a
// buffer's owner ring set is torn down.
func (b *Buffer) Reset() {
	b.entries = b.entries[:0]
}
