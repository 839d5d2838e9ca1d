// Package engine implements the consumer side of ringlog: one goroutine
// that indexes rings by priority, drains them through the timestamp-
// ordering buffer, injects drop/tso-full/timesource-change markers, and
// flushes the rendered bytes to a sink.
package engine

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cloudwego/gopkg/concurrency/gopool"

	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/format"
	"github.com/ringlog/ringlog/record"
	"github.com/ringlog/ringlog/ring"
	"github.com/ringlog/ringlog/schedparam"
	"github.com/ringlog/ringlog/timestamp"
	"github.com/ringlog/ringlog/tso"
)

// controlRingName names the engine-private ring that carries the engine's
// own TIMESOURCE_CHANGE posts and any FLUSH posted without a target ring;
// it never appears in ListRings.
const controlRingName = "__ringlog_control__"

// controlRingPrio keeps the control ring first in priority order so its
// FLUSH/TIMESOURCE_CHANGE requests never queue behind a noisy user ring.
const controlRingPrio = 1 << 30

// Sink is the output side the engine renders into: an io.Writer with an
// explicit flush, satisfied directly by *output.File.
type Sink interface {
	io.Writer
	Flush() error
}

// Options configure an Engine.
type Options struct {
	// PollInterval is the consumer's polling period, adjusted by elapsed
	// iteration time (a slow iteration shortens or skips the next sleep).
	PollInterval time.Duration
	// TSOCapacity is the timestamp-ordering buffer's entry capacity; 0
	// disables TSO and rings are drained in priority order without
	// reordering.
	TSOCapacity int
	// Sched is applied to the engine goroutine's own OS thread on Start.
	Sched schedparam.Param
	// DefaultMask, if set, is applied to every area on creation (not on a
	// reused add), before AddArea returns it.
	DefaultMask *area.Mask
}

// DefaultOptions mirrors the teacher's documented defaults: a short poll
// interval and a TSO buffer large enough to absorb ordinary cross-ring
// jitter within one polling window.
func DefaultOptions() Options {
	return Options{
		PollInterval: 2 * time.Millisecond,
		TSOCapacity:  4096,
		Sched:        schedparam.Default(),
	}
}

// ringState is the engine's carried-forward bookkeeping for one ring,
// preserved across index rebuilds by ring name.
type ringState struct {
	expectedSeq uint64
	lastPos     uint64
	havePos     bool
	prevTS      timestamp.T
}

// Engine is the consumer: it owns the area map, ring map/index, TSO, and
// stats exclusively; rings themselves are shared with producers through
// the refcount in package ring.
type Engine struct {
	mu     sync.Mutex
	rings  map[string]*ring.Ring
	areas  map[string]*area.Area
	states map[string]*ringState
	dirty  bool
	index  []*ring.Ring

	tso *tso.Buffer

	formatter    format.Formatter
	sink         Sink
	internalArea *area.Area
	scratch      record.Slot
	markerSeq    atomic.Uint64

	ts atomic.Pointer[timestamp.Source]

	controlRing *ring.Ring

	opts Options

	killed atomic.Bool
	done   chan struct{}

	Stats Stats
}

// New creates an Engine rendering through formatter into sink. The engine
// is idle until Start.
func New(formatter format.Formatter, sink Sink, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts = DefaultOptions()
	}

	e := &Engine{
		rings:     make(map[string]*ring.Ring),
		areas:     make(map[string]*area.Area),
		states:    make(map[string]*ringState),
		formatter: formatter,
		sink:      sink,
		opts:      opts,
		done:      make(chan struct{}),
	}
	e.internalArea = newInternalArea()
	e.scratch.Tail = make([]byte, 0, 256)
	e.ts.Store(timestamp.System())
	if opts.TSOCapacity > 0 {
		e.tso = tso.New(opts.TSOCapacity)
	}

	e.controlRing = ring.New(controlRingName, ring.Options{
		Capacity: 64,
		Prio:     controlRingPrio,
		Flags:    ring.Shared,
	})
	e.controlRing.Hold()
	e.controlRing.SetTimesource(e.ts.Load())
	e.rings[controlRingName] = e.controlRing
	e.states[controlRingName] = &ringState{}
	e.dirty = true

	return e
}

// Timesource returns the engine's current clock source.
func (e *Engine) Timesource() *timestamp.Source {
	return e.ts.Load()
}

// AddArea registers name with the given sections (DefaultSections if
// empty), returning the existing area unchanged if one of the same name
// and shape already exists.
func (e *Engine) AddArea(name string, sections []string) *area.Area {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a, ok := e.areas[name]; ok && a.SameShape(name, sections) {
		return a
	}
	a := area.New(name, sections)
	if e.opts.DefaultMask != nil {
		e.opts.DefaultMask.Apply(a)
	}
	e.areas[name] = a
	e.Stats.AreasAdded.Add(1)
	return a
}

// FindArea looks up a previously added area by name.
func (e *Engine) FindArea(name string) (*area.Area, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.areas[name]
	return a, ok
}

// ListAreas returns a snapshot of every registered area.
func (e *Engine) ListAreas() []*area.Area {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*area.Area, 0, len(e.areas))
	for _, a := range e.areas {
		out = append(out, a)
	}
	return out
}

// AddRing registers a new ring, or returns the existing one of the same
// name with an extra hold. The engine's own reference (distinct from the
// caller's) is what keeps a ring alive once its owner releases it, until
// it is observed empty and reaped.
func (e *Engine) AddRing(name string, opts ring.Options) *ring.Ring {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.rings[name]; ok {
		r.Hold()
		return r
	}
	r := ring.New(name, opts)
	r.SetTimesource(e.ts.Load())
	r.Hold()
	e.rings[name] = r
	e.states[name] = &ringState{}
	e.dirty = true
	return r
}

// FindRing looks up a registered ring by name; the control ring is never
// returned.
func (e *Engine) FindRing(name string) (*ring.Ring, bool) {
	if name == controlRingName {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rings[name]
	return r, ok
}

// ListRings returns a snapshot of every user-registered ring (excluding
// the engine's internal control ring).
func (e *Engine) ListRings() []*ring.Ring {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ring.Ring, 0, len(e.rings))
	for name, r := range e.rings {
		if name == controlRingName {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Start launches the consumer goroutine.
func (e *Engine) Start() {
	gopool.Go(e.run)
}

// Stop signals the consumer to exit and blocks until it has drained every
// ring down to empty and flushed the sink.
func (e *Engine) Stop() {
	e.killed.Store(true)
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)

	if err := e.opts.Sched.Apply("ringlog-engine"); err != nil {
		// Best-effort: affinity is never available (see package
		// schedparam), logging it would require a logger dependency the
		// engine doesn't otherwise need, so it is simply not fatal.
		_ = err
	}

	for !e.killed.Load() {
		start := time.Now()
		e.step()
		e.Stats.Loops.Add(1)
		if remaining := e.opts.PollInterval - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	e.drain()
}

// step is one consumer iteration: rebuild the index if dirty, drain every
// ring (through the TSO if enabled, directly otherwise), reap orphaned
// rings, and flush the sink.
func (e *Engine) step() {
	e.rebuildIndex()

	if e.tso != nil {
		e.scanRings()
		e.processEntries(e.tso.Flush())
		e.commitAll()
	} else {
		e.drainDirect()
	}

	e.reclaimOrphans()
	_ = e.sink.Flush()
}

// rebuildIndex rebuilds the priority-ordered ring index from the ring map
// if it is marked dirty. The ring map mutex is only try-locked: on
// contention the stale index is used for this iteration, exactly as the
// teacher's "non-blocking try-lock" rebuild does.
func (e *Engine) rebuildIndex() {
	if !e.dirty {
		return
	}
	if !e.mu.TryLock() {
		return
	}
	defer e.mu.Unlock()
	e.rebuildIndexLocked()
}

func (e *Engine) rebuildIndexLocked() {
	index := make([]*ring.Ring, 0, len(e.rings))
	for _, r := range e.rings {
		index = append(index, r)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Prio > index[j].Prio })

	states := make(map[string]*ringState, len(index))
	for _, r := range index {
		if st, ok := e.states[r.Name]; ok {
			states[r.Name] = st
		} else {
			states[r.Name] = &ringState{}
		}
	}

	e.index = index
	e.states = states
	e.dirty = false
	e.Stats.RingsIndexed.Add(uint64(len(index)))
}

// scanRings walks every indexed ring from its current head without
// committing, stamping each observed record with a strictly increasing
// per-ring timestamp and pushing it into the TSO. A full TSO triggers an
// emergency half-flush (with a tso-full marker) before the scan resumes.
func (e *Engine) scanRings() {
	for ringIdx, r := range e.index {
		e.scanRing(ringIdx, r)
	}
}

func (e *Engine) scanRing(ringIdx int, r *ring.Ring) {
	st := e.states[r.Name]
	it := r.NewIterator()

	for {
		s := it.PopBegin()
		if s == nil {
			break
		}

		ts := s.Timestamp
		if ts <= st.prevTS {
			ts = st.prevTS + 1
		}
		st.prevTS = ts
		s.Timestamp = ts

		entry := tso.Entry{Timestamp: ts, Slot: s, RingIdx: it.Pos(), RingID: ringIdx}
		for !e.tso.Push(entry) {
			_ = e.emitTSOFullMarker()
			e.Stats.TSOFull.Add(1)
			e.processEntries(e.tso.FlushHalf())
			e.commitAll()
		}
	}
}

// processEntries dispatches special records to handleSpecial, and for
// ordinary records emits a drop marker on any seqnum gap before handing
// the record to the formatter. Per-ring last-processed position is
// recorded so commitAll can advance each ring's head afterward.
func (e *Engine) processEntries(entries []tso.Entry) {
	for _, ent := range entries {
		r := e.index[ent.RingID]
		st := e.states[r.Name]
		s := ent.Slot

		if s.IsSpecial() {
			e.handleSpecial(r, s)
		} else {
			if s.Seqnum > st.expectedSeq {
				delta := s.Seqnum - st.expectedSeq
				_ = e.emitDropMarker(r.Name, delta)
				e.Stats.RecsDropped.Add(delta)
			}
			st.expectedSeq = s.Seqnum + 1

			if err := e.formatter.Process(e.sink, format.Data{RingName: r.Name, Slot: s}); err == nil {
				e.Stats.RecsOut.Add(1)
			}
		}

		st.lastPos = ent.RingIdx
		st.havePos = true
	}
}

// handleSpecial executes one non-user control record's opcode and
// acknowledges it by writing the sentinel into ArgVal[0].
func (e *Engine) handleSpecial(r *ring.Ring, s *record.Slot) {
	switch s.SpecialOpcode() {
	case record.OpTimesourceChange:
		ts := (*timestamp.Source)(s.TimesourcePointer())
		e.ts.Store(ts)

		e.mu.Lock()
		for _, rr := range e.rings {
			rr.SetTimesource(ts)
		}
		e.mu.Unlock()

		e.Stats.TimesourceChanged.Add(1)
		_ = e.emitTimesourceChangeMarker(ts.Name)
	}

	atomic.StoreUint64(&s.ArgVal[0], record.FlushAck)
	_ = r
}

// commitAll advances every ring that had entries processed this iteration
// up to its last-processed position.
func (e *Engine) commitAll() {
	for _, r := range e.index {
		st := e.states[r.Name]
		if st.havePos {
			r.PopCommit(st.lastPos)
			st.havePos = false
		}
	}
}

// drainDirect drains every ring in priority order without reordering,
// still emitting drop markers on seqnum gaps. Used when TSO is disabled.
func (e *Engine) drainDirect() {
	for _, r := range e.index {
		st := e.states[r.Name]
		it := r.NewIterator()
		pos := it.Pos()
		advanced := false

		for {
			s := it.PopBegin()
			if s == nil {
				break
			}
			pos = it.Pos()
			advanced = true

			ts := s.Timestamp
			if ts <= st.prevTS {
				ts = st.prevTS + 1
			}
			st.prevTS = ts
			s.Timestamp = ts

			if s.IsSpecial() {
				e.handleSpecial(r, s)
				continue
			}

			if s.Seqnum > st.expectedSeq {
				delta := s.Seqnum - st.expectedSeq
				_ = e.emitDropMarker(r.Name, delta)
				e.Stats.RecsDropped.Add(delta)
			}
			st.expectedSeq = s.Seqnum + 1

			if err := e.formatter.Process(e.sink, format.Data{RingName: r.Name, Slot: s}); err == nil {
				e.Stats.RecsOut.Add(1)
			}
		}

		if advanced {
			r.PopCommit(pos)
		}
	}
}

// reclaimOrphans removes and releases every non-control, non-IMMORTAL ring
// whose owner has released it (refcount back down to the engine's own hold)
// and that has no pending records left.
func (e *Engine) reclaimOrphans() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, r := range e.rings {
		if r == e.controlRing || r.Flags&ring.Immortal != 0 {
			continue
		}
		if r.Orphan() && r.Empty() {
			delete(e.rings, name)
			delete(e.states, name)
			r.Release()
			e.dirty = true
		}
	}
}

// nonControlRingCount reports how many user rings remain registered.
func (e *Engine) nonControlRingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for name := range e.rings {
		if name != controlRingName {
			n++
		}
	}
	return n
}

// drainMaxPasses bounds the shutdown drain loop. An IMMORTAL ring whose
// owner never releases it would otherwise keep the index non-empty
// forever; this cap trades a theoretical hang for a guaranteed return from
// Stop, at the cost of potentially leaving such a ring's tail unflushed.
const drainMaxPasses = 10000

// drain runs after the poll loop exits: it keeps processing every ring
// until none remain (besides the control ring), ensuring no record
// observed before shutdown is lost.
func (e *Engine) drain() {
	for pass := 0; pass < drainMaxPasses; pass++ {
		e.mu.Lock()
		e.rebuildIndexLocked()
		e.mu.Unlock()

		if e.tso != nil {
			e.scanRings()
			e.processEntries(e.tso.FlushAll())
			e.commitAll()
		} else {
			e.drainDirect()
		}
		e.reclaimOrphans()

		if e.nonControlRingCount() == 0 {
			break
		}
	}
	_ = e.sink.Flush()
}

// Flush posts a FLUSH control record onto r (the engine's control ring if
// r is nil) and busy-waits up to budget for the engine to acknowledge it,
// guaranteeing every record r held before the call has reached the sink.
func (e *Engine) Flush(r *ring.Ring, budget time.Duration) bool {
	if r == nil {
		r = e.controlRing
	}
	return e.postSpecial(r, func(s *record.Slot) { record.NewFlush(s) }, budget)
}

// ChangeTimesource posts a TIMESOURCE_CHANGE control record and waits for
// the engine to adopt ts and propagate it to every ring.
func (e *Engine) ChangeTimesource(ts *timestamp.Source, budget time.Duration) bool {
	return e.postSpecial(e.controlRing, func(s *record.Slot) {
		record.NewTimesourceChange(s, unsafe.Pointer(ts))
	}, budget)
}

func (e *Engine) postSpecial(r *ring.Ring, build func(*record.Slot), budget time.Duration) bool {
	r.Lock()
	s := r.PushBegin()
	build(s)
	s.Timestamp = e.Timesource().Now()
	s.Seqnum = r.IncSeqnum()
	ok := r.PushCommit()
	r.Unlock()
	if !ok {
		return false
	}

	deadline := time.Now().Add(budget)
	for {
		if atomic.LoadUint64(&s.ArgVal[0]) == record.FlushAck {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
