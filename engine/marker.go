package engine

import (
	"github.com/ringlog/ringlog/area"
	"github.com/ringlog/ringlog/format"
	"github.com/ringlog/ringlog/record"
)

// internalAreaName/internalSection label every fake record the engine
// builds itself (drop markers, tso-full markers, timesource-change
// notices) rather than copies out of a producer's ring.
const (
	internalAreaName    = "ringlog"
	internalSectionName = "notice"
)

func newInternalArea() *area.Area {
	return area.New(internalAreaName, []string{internalSectionName})
}

// emitMarker populates e's scratch slot with a fake record carrying args,
// stamped with the engine's current timesource, and renders it straight
// through the formatter without ever touching a ring.
func (e *Engine) emitMarker(ringName string, args []record.Arg) error {
	s := &e.scratch
	s.Reset()
	s.Area = e.internalArea
	s.Section = 0
	s.Timestamp = e.Timesource().Now()
	s.Seqnum = e.markerSeq.Add(1) - 1
	record.Populate(s, args)

	return e.formatter.Process(e.sink, format.Data{RingName: ringName, Slot: s})
}

func (e *Engine) emitDropMarker(ringName string, delta uint64) error {
	return e.emitMarker(ringName, []record.Arg{
		record.CstrArg("dropped %u records"),
		record.U64(delta),
	})
}

func (e *Engine) emitTSOFullMarker() error {
	return e.emitMarker("", []record.Arg{
		record.CstrArg("tso buffer full, emergency-flushing half the buffer"),
	})
}

func (e *Engine) emitTimesourceChangeMarker(name string) error {
	return e.emitMarker("", []record.Arg{
		record.CstrArg("timesource changed to %s"),
		record.GstrArg(name),
	})
}
