// Package area implements named filter units with per-section enable bits,
// and the mask machinery used to toggle them in bulk.
package area

import (
	"fmt"
	"sync/atomic"
)

// MaxSections bounds the number of sections an area may have.
const MaxSections = 256 * 1024

// DefaultSections is the section list new areas get unless given their own.
var DefaultSections = []string{"INFO", "WARN", "ERROR", "FATAL", "DEBUG", "TRACE"}

// Magic is the 128-bit signature embedded in every Area for postmortem scans.
var Magic = [2]uint64{0x686f676c2d61726561, 0x000000000000a3ea}

// Area is a named filter unit with an ordered, immutable list of section
// names and a bitmap of enable bits, one per section.
type Area struct {
	Magic [2]uint64

	name     string
	sections []string
	index    map[string]uint16

	bits []atomic.Uint64 // one bit per section, test/set/reset are lock-free
}

// New creates an area with the given name and section list. If sections is
// empty, DefaultSections is used. All sections start disabled.
func New(name string, sections []string) *Area {
	if len(sections) == 0 {
		sections = DefaultSections
	}
	a := &Area{
		Magic:    Magic,
		name:     name,
		sections: append([]string(nil), sections...),
		index:    make(map[string]uint16, len(sections)),
		bits:     make([]atomic.Uint64, (len(sections)+63)/64+1),
	}
	for i, s := range sections {
		a.index[s] = uint16(i)
	}
	return a
}

// AreaName implements record.AreaHandle.
func (a *Area) AreaName() string { return a.name }

// Name returns the area's name.
func (a *Area) Name() string { return a.name }

// Sections returns the area's ordered section names. The returned slice
// must not be mutated.
func (a *Area) Sections() []string { return a.sections }

// SectionName implements record.AreaHandle; returns "" for an out-of-range
// index.
func (a *Area) SectionName(idx uint16) string {
	if int(idx) >= len(a.sections) {
		return ""
	}
	return a.sections[idx]
}

// SectionIndex looks up a section by name.
func (a *Area) SectionIndex(name string) (uint16, bool) {
	idx, ok := a.index[name]
	return idx, ok
}

// Test returns the enable bit for section idx. This is the entire
// producer-side filter path and must be a constant-time bit test.
func (a *Area) Test(idx uint16) bool {
	word := idx / 64
	bit := idx % 64
	return a.bits[word].Load()&(1<<bit) != 0
}

// Set enables section idx.
func (a *Area) Set(idx uint16) {
	word := idx / 64
	bit := uint64(1) << (idx % 64)
	for {
		old := a.bits[word].Load()
		if old&bit != 0 {
			return
		}
		if a.bits[word].CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// Reset disables section idx.
func (a *Area) Reset(idx uint16) {
	word := idx / 64
	bit := uint64(1) << (idx % 64)
	for {
		old := a.bits[word].Load()
		if old&bit == 0 {
			return
		}
		if a.bits[word].CompareAndSwap(old, old&^bit) {
			return
		}
	}
}

// SetAll enables every section.
func (a *Area) SetAll() {
	for i := range a.sections {
		a.Set(uint16(i))
	}
}

// ResetAll disables every section.
func (a *Area) ResetAll() {
	for i := range a.sections {
		a.Reset(uint16(i))
	}
}

// SameShape reports whether a has the given name and the same ordered
// section-name sequence (empty meaning DefaultSections), the structural-equality test add_area
// uses to decide whether a repeated add should return the existing area.
func (a *Area) SameShape(name string, sections []string) bool {
	if a.name != name {
		return false
	}
	if len(sections) == 0 {
		sections = DefaultSections
	}
	if len(sections) != len(a.sections) {
		return false
	}
	for i, s := range sections {
		if a.sections[i] != s {
			return false
		}
	}
	return true
}

func (a *Area) String() string {
	return fmt.Sprintf("area(%s, sections=%v)", a.name, a.sections)
}
