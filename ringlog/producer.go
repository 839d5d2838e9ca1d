package ringlog

import (
	"github.com/cloudwego/gopkg/hash/xfnv"

	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/record"
	"github.com/ringlog/ringlog/ring"
)

// Producer is the capability a caller holds in place of a thread-local
// ring pointer: Go has no native TLS, so every goroutine that wants to
// post records keeps one of these explicitly rather than relying on
// ambient per-thread state.
type Producer struct {
	areaName string
	ringName string

	area *area.Area
	ring *ring.Ring
}

// hashNames combines two name hashes into one cache key. Collisions are
// resolved by the exact-name check in NewProducer; this is purely a
// fast-path lookup, never a correctness boundary.
func hashNames(areaName, ringName string) uint64 {
	return xfnv.HashStr(areaName) ^ (xfnv.HashStr(ringName) * 31)
}

// NewProducer returns the Producer for (areaName, ringName), creating the
// underlying area/ring on first use and reusing them (with an extra ring
// hold) on every later call — an xfnv-hashed cache sits in front of the
// engine's own name-keyed maps so that repeated lookups for an already-
// resolved pair skip the engine's mutex-guarded registries entirely.
func (l *Logger) NewProducer(areaName, ringName string, sections []string, ringOpts ring.Options) *Producer {
	key := hashNames(areaName, ringName)

	l.producerMu.Lock()
	if p, ok := l.producers[key]; ok && p.areaName == areaName && p.ringName == ringName {
		l.producerMu.Unlock()
		p.ring.Hold()
		return p
	}
	l.producerMu.Unlock()

	a := l.eng.AddArea(areaName, sections)
	r := l.eng.AddRing(ringName, ringOpts)
	p := &Producer{areaName: areaName, ringName: ringName, area: a, ring: r}

	l.producerMu.Lock()
	l.producers[key] = p
	l.producerMu.Unlock()
	return p
}

// Close releases the Producer's hold on its ring. The underlying area is
// never released (areas have no refcount); the ring becomes reapable by
// the engine once every Producer sharing it has closed.
func (p *Producer) Close() {
	p.ring.Release()
}

// Area returns the area this Producer posts through.
func (p *Producer) Area() *area.Area { return p.area }

// Ring returns the ring this Producer posts through.
func (p *Producer) Ring() *ring.Ring { return p.ring }

// Post tests section's enable bit and, if set, populates and publishes a
// record with args, serializing around the ring's lock (a no-op unless
// the ring is SHARED). Returns false if the section was disabled or the
// ring was full (and not BLOCKING).
func (p *Producer) Post(section uint16, args ...record.Arg) bool {
	if !p.area.Test(section) {
		return false
	}
	p.ring.Lock()
	defer p.ring.Unlock()
	return p.post(section, args)
}

// PostUnlocked is Post without the ring's lock, for callers that already
// serialize their own access to a SHARED ring.
func (p *Producer) PostUnlocked(section uint16, args ...record.Arg) bool {
	if !p.area.Test(section) {
		return false
	}
	return p.post(section, args)
}

func (p *Producer) post(section uint16, args []record.Arg) bool {
	s := p.ring.PushBegin()
	s.Reset()
	s.Area = p.area
	s.Section = section
	s.Timestamp = p.ring.Timesource().Now()
	s.Seqnum = p.ring.IncSeqnum()
	record.Populate(s, args)
	return p.ring.PushCommit()
}
