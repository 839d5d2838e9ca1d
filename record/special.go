package record

import "unsafe"

// FlushAck is the sentinel value the engine writes into ArgVal[0] of a
// FLUSH special record once it has been processed. Callers busy-wait for
// this value to implement a synchronous flush.
const FlushAck = uint64(0xF1F1F1F1F1F1F1F1)

// NewFlush builds a special FLUSH control record in place.
func NewFlush(slot *Slot) {
	slot.Reset()
	slot.Section = SpecialSection
	slot.ArgType = uint64(OpFlush)
	slot.ArgVal[0] = 0
}

// NewTimesourceChange builds a special TIMESOURCE_CHANGE control record
// carrying the new source pointer in ArgVal[1], per design.
func NewTimesourceChange(slot *Slot, newSource unsafe.Pointer) {
	slot.Reset()
	slot.Section = SpecialSection
	slot.ArgType = uint64(OpTimesourceChange)
	slot.ArgVal[1] = uint64(uintptr(newSource))
}

// SpecialOpcode returns the control opcode of a special slot.
func (s *Slot) SpecialOpcode() Opcode {
	return Opcode(s.ArgType)
}

// TimesourcePointer decodes the new-source pointer carried by a
// TIMESOURCE_CHANGE special record.
func (s *Slot) TimesourcePointer() unsafe.Pointer {
	return unsafe.Pointer(uintptr(s.ArgVal[1]))
}
