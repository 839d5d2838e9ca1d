// Package ringlog is the producer-facing API: add areas and rings, post
// records through a Producer handle, flush, swap the timesource, and run
// a process-wide default Logger with the same activate/deactivate
// lifecycle the underlying engine and output packages use internally.
package ringlog

import (
	"sync"
	"time"

	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/engine"
	"github.com/ringlog/ringlog/format"
	"github.com/ringlog/ringlog/ring"
	"github.com/ringlog/ringlog/timestamp"
)

// Logger owns one engine and the name-keyed Producer cache built on top of
// it. The zero value is not usable; construct with NewLogger.
type Logger struct {
	eng *engine.Engine

	producerMu sync.Mutex
	producers  map[uint64]*Producer
}

// NewLogger creates a Logger rendering through formatter into sink. The
// engine does not start consuming until Activate.
func NewLogger(formatter format.Formatter, sink engine.Sink, opts engine.Options) *Logger {
	return &Logger{
		eng:       engine.New(formatter, sink, opts),
		producers: make(map[uint64]*Producer),
	}
}

// Activate starts the engine's consumer goroutine.
func (l *Logger) Activate() { l.eng.Start() }

// Deactivate stops the engine, draining every ring before returning.
func (l *Logger) Deactivate() { l.eng.Stop() }

// AddArea registers (or reuses) an area by name.
func (l *Logger) AddArea(name string, sections []string) *area.Area {
	return l.eng.AddArea(name, sections)
}

// FindArea looks up a previously added area.
func (l *Logger) FindArea(name string) (*area.Area, bool) {
	return l.eng.FindArea(name)
}

// ListAreas returns every registered area.
func (l *Logger) ListAreas() []*area.Area { return l.eng.ListAreas() }

// AddRing registers (or holds another reference to) a ring by name.
func (l *Logger) AddRing(name string, opts ring.Options) *ring.Ring {
	return l.eng.AddRing(name, opts)
}

// FindRing looks up a previously added ring.
func (l *Logger) FindRing(name string) (*ring.Ring, bool) {
	return l.eng.FindRing(name)
}

// ListRings returns every registered ring.
func (l *Logger) ListRings() []*ring.Ring { return l.eng.ListRings() }

// ApplyMask applies m to the named area's section bits immediately,
// independent of any configured default mask.
func (l *Logger) ApplyMask(areaName string, m *area.Mask) bool {
	a, ok := l.eng.FindArea(areaName)
	if !ok {
		return false
	}
	m.Apply(a)
	l.eng.Stats.MaskChanged.Add(1)
	return true
}

// Flush injects a FLUSH control record onto p's ring (or the engine's
// internal control ring if p is nil) and waits up to budget for it to be
// acknowledged, guaranteeing every record p had posted before the call has
// reached the sink.
func (l *Logger) Flush(p *Producer, budget time.Duration) bool {
	var r *ring.Ring
	if p != nil {
		r = p.ring
	}
	return l.eng.Flush(r, budget)
}

// ChangeTimesource swaps the engine's clock source and propagates it to
// every registered ring, waiting up to budget for acknowledgment.
func (l *Logger) ChangeTimesource(ts *timestamp.Source, budget time.Duration) bool {
	return l.eng.ChangeTimesource(ts, budget)
}

// Timesource returns the engine's current clock source.
func (l *Logger) Timesource() *timestamp.Source { return l.eng.Timesource() }

// Stats returns a point-in-time snapshot of the engine's counters.
func (l *Logger) Stats() engine.Snapshot { return l.eng.Stats.Snapshot() }
