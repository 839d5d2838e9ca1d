package engine

import "sync/atomic"

// Stats are the engine's running counters. Unlike the teacher's "single
// writer, plain field" counters, these are atomics: AreasAdded/MaskChanged
// are bumped from producer-side calls (AddArea/ApplyMask), which never run
// on the engine goroutine, so a plain field would race.
type Stats struct {
	TSOFull           atomic.Uint64
	RecsOut           atomic.Uint64
	RecsDropped       atomic.Uint64
	Loops             atomic.Uint64
	RingsIndexed      atomic.Uint64
	AreasAdded        atomic.Uint64
	MaskChanged       atomic.Uint64
	TimesourceChanged atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats, safe to read without further
// synchronization.
type Snapshot struct {
	TSOFull           uint64
	RecsOut           uint64
	RecsDropped       uint64
	Loops             uint64
	RingsIndexed      uint64
	AreasAdded        uint64
	MaskChanged       uint64
	TimesourceChanged uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TSOFull:           s.TSOFull.Load(),
		RecsOut:           s.RecsOut.Load(),
		RecsDropped:       s.RecsDropped.Load(),
		Loops:             s.Loops.Load(),
		RingsIndexed:      s.RingsIndexed.Load(),
		AreasAdded:        s.AreasAdded.Load(),
		MaskChanged:       s.MaskChanged.Load(),
		TimesourceChanged: s.TimesourceChanged.Load(),
	}
}
