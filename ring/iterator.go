package ring

import "github.com/ringlog/ringlog/record"

// Iterator is the consumer-side cursor over a ring. It caches head/tail at
// construction, lets the consumer peek forward without committing, and can
// be rewound to an arbitrary already-observed slot so the consumer can
// commit an arbitrary prefix of what it saw.
type Iterator struct {
	r    *Ring
	head uint64 // cached at construction; consumer's "committed so far" position
	tail uint64 // cached at construction
	pos  uint64 // current read cursor, advances on each PopBegin
}

// NewIterator snapshots the ring's current head/tail for a consumer pass.
func (r *Ring) NewIterator() *Iterator {
	return &Iterator{
		r:    r,
		head: r.head.Load(),
		tail: r.tail.Load(),
		pos:  r.head.Load(),
	}
}

// PopBegin returns the next unread slot, or nil if the iterator has reached
// the tail snapshotted at construction. Does not advance head.
func (it *Iterator) PopBegin() *record.Slot {
	if it.pos == it.tail {
		return nil
	}
	s := &it.r.slots[it.pos]
	it.pos = (it.pos + 1) & it.r.mask
	return s
}

// Rewind resets the iterator's read cursor back to head, i.e. the oldest
// unconsumed slot, so the consumer can replay from the start of this pass.
func (it *Iterator) Rewind() {
	it.pos = it.head
}

// RewindTo rewinds the iterator to point at a specific already-observed
// slot, identified by its ring index, so the consumer can commit an
// arbitrary prefix of what it has seen.
func (it *Iterator) RewindTo(idx uint64) {
	it.pos = idx & it.r.mask
}

// Pos returns the iterator's current read cursor (a ring index).
func (it *Iterator) Pos() uint64 { return it.pos }

// Head returns the head value cached at construction.
func (it *Iterator) Head() uint64 { return it.head }

// Tail returns the tail value cached at construction.
func (it *Iterator) Tail() uint64 { return it.tail }

// PopCommit advances the ring's real head to idx (a previously-seen ring
// index, typically Pos() after processing up through some record), with a
// load-acquire/store ordering relative to the slot reads it followed, and
// wakes a producer blocked on a full ring.
func (r *Ring) PopCommit(idx uint64) {
	r.head.Store(idx & r.mask)
	r.signalSpace()
}
