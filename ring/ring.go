// Package ring implements the single-producer/single-consumer circular
// record buffer: the wait-free push/pop protocol, refcounted ownership, and
// the SHARED/IMMORTAL/REUSABLE/BLOCKING flag semantics.
package ring

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/ringlog/ringlog/record"
	"github.com/ringlog/ringlog/timestamp"
)

// Flags control a ring's producer/ownership behavior.
type Flags uint32

const (
	// Shared serializes producers around push_begin/push_commit with a mutex.
	Shared Flags = 1 << iota
	// Immortal rings ignore the final release and are never deleted.
	Immortal
	// Reusable allows another owner to claim the same name when refcount <= 2.
	Reusable
	// Blocking makes a full ring block the producer instead of dropping.
	Blocking
)

// Magic is the 128-bit signature embedded in every Ring for postmortem scans.
var Magic = [2]uint64{0x686f676c2d72696e, 0x67000000deadbeef}

// Options configure a new Ring.
type Options struct {
	Capacity       int
	Prio           int
	Flags          Flags
	RecordTailroom int
}

// Ring is a single-producer/single-consumer circular array of records.
// Capacity is rounded up to a power of two; one slot is reserved so that
// head==tail unambiguously means empty.
type Ring struct {
	Magic [2]uint64

	Name           string
	Flags          Flags
	Prio           int
	RecordTailroom int

	mask  uint64
	slots []record.Slot
	arena []byte // backs every slot's tailroom, one contiguous allocation

	tail atomic.Uint64 // producer-owned; consumer reads with Load (acquire)
	head atomic.Uint64 // consumer-owned; producer reads with Load (acquire)

	seqnum  atomic.Uint64
	dropcnt atomic.Uint64

	refcount atomic.Int32

	producerMu sync.Mutex // used only when Shared is set

	blockMu   sync.Mutex
	blockCond *sync.Cond

	killed atomic.Bool

	ts atomic.Pointer[timestamp.Source]
}

// roundUpPow2 rounds n up to the next power of two, minimum 2.
func roundUpPow2(n int) int {
	if n < 2 {
		return 2
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}

// New allocates a ring with the given name and options. The ring starts
// with refcount 1 (the caller's reference); the engine adds its own
// reference when the ring is registered.
func New(name string, opts Options) *Ring {
	capacity := roundUpPow2(opts.Capacity)
	tailroom := opts.RecordTailroom
	if tailroom < 0 {
		tailroom = 0
	}

	r := &Ring{
		Magic:          Magic,
		Name:           name,
		Flags:          opts.Flags,
		Prio:           opts.Prio,
		RecordTailroom: tailroom,
		mask:           uint64(capacity - 1),
		slots:          make([]record.Slot, capacity),
	}
	r.blockCond = sync.NewCond(&r.blockMu)
	r.refcount.Store(1)
	r.ts.Store(timestamp.System())

	if tailroom > 0 {
		r.arena = mcache.Malloc(capacity * tailroom)
		for i := range r.slots {
			off := i * tailroom
			r.slots[i].Tail = r.arena[off:off:off+tailroom]
		}
	}
	return r
}

// Capacity returns the ring's slot count, including the one reserved slot.
func (r *Ring) Capacity() int { return int(r.mask) + 1 }

// Len returns the number of records currently pending between head and tail.
func (r *Ring) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	return int((tail - head) & r.mask)
}

// Empty reports whether the ring currently has no pending records.
func (r *Ring) Empty() bool {
	return r.tail.Load() == r.head.Load()
}

// DropCount returns the number of records dropped due to a full ring.
func (r *Ring) DropCount() uint64 { return r.dropcnt.Load() }

// Seqnum returns the next sequence number that will be assigned.
func (r *Ring) Seqnum() uint64 { return r.seqnum.Load() }

// IncSeqnum returns the pre-increment sequence value, for stamping into a
// record header.
func (r *Ring) IncSeqnum() uint64 {
	return r.seqnum.Add(1) - 1
}

// Timesource returns the ring's cached clock pointer.
func (r *Ring) Timesource() *timestamp.Source {
	return r.ts.Load()
}

// SetTimesource installs a new clock pointer with a store-release so that
// subsequently published records observe the new clock.
func (r *Ring) SetTimesource(ts *timestamp.Source) {
	r.ts.Store(ts)
}

// Lock serializes producers when the ring is SHARED; a no-op otherwise.
func (r *Ring) Lock() {
	if r.Flags&Shared != 0 {
		r.producerMu.Lock()
	}
}

// Unlock is the counterpart of Lock.
func (r *Ring) Unlock() {
	if r.Flags&Shared != 0 {
		r.producerMu.Unlock()
	}
}

// PushBegin returns the slot at the current tail for the caller to
// populate in place. It does not advance any index.
func (r *Ring) PushBegin() *record.Slot {
	tail := r.tail.Load()
	return &r.slots[tail&r.mask]
}

// PushCommit advances tail with a store-release, publishing the slot
// PushBegin returned. If the ring is full, the record is dropped (dropcnt
// incremented) unless BLOCKING is set, in which case the caller waits for
// the consumer to make room or for the ring to be killed.
//
// Returns false if the record was dropped (or the ring was killed while
// blocking), true if it was published.
func (r *Ring) PushCommit() bool {
	for {
		tail := r.tail.Load()
		next := (tail + 1) & r.mask
		head := r.head.Load()
		if next == head {
			if r.Flags&Blocking == 0 {
				r.dropcnt.Add(1)
				return false
			}
			if r.killed.Load() {
				return false
			}
			r.waitForSpace()
			continue
		}
		r.tail.Store(next)
		return true
	}
}

func (r *Ring) waitForSpace() {
	r.blockMu.Lock()
	for {
		tail := r.tail.Load()
		head := r.head.Load()
		next := (tail + 1) & r.mask
		if next != head || r.killed.Load() {
			break
		}
		r.blockCond.Wait()
	}
	r.blockMu.Unlock()
}

// Kill wakes any producer blocked in PushCommit so it can observe shutdown.
func (r *Ring) Kill() {
	r.killed.Store(true)
	r.blockMu.Lock()
	r.blockCond.Broadcast()
	r.blockMu.Unlock()
}

// signalSpace wakes a blocked producer after the consumer frees a slot.
func (r *Ring) signalSpace() {
	if r.Flags&Blocking != 0 {
		r.blockMu.Lock()
		r.blockCond.Broadcast()
		r.blockMu.Unlock()
	}
}

// Hold increments the refcount, returning the new value.
func (r *Ring) Hold() int32 { return r.refcount.Add(1) }

// Release decrements the refcount. The caller must stop using r afterward;
// IMMORTAL rings are never actually freed.
func (r *Ring) Release() int32 { return r.refcount.Add(-1) }

// Refcount returns the current refcount.
func (r *Ring) Refcount() int32 { return r.refcount.Load() }

// Orphan reports whether only the engine holds a reference (refcount==1).
func (r *Ring) Orphan() bool { return r.refcount.Load() == 1 }

// Reset clears indices, seqnum and dropcnt. Only safe with no concurrent
// producer active.
func (r *Ring) Reset() {
	r.tail.Store(0)
	r.head.Store(0)
	r.seqnum.Store(0)
	r.dropcnt.Store(0)
}
