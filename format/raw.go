package format

import (
	"io"

	"github.com/ringlog/ringlog/record"
)

// Raw renders records in the §6 wire format, for external decoders rather
// than humans. AreaName/SectionName are resolved here, once, since a
// decoder running out-of-process has no access to the engine's registries.
type Raw struct {
	NoFraming

	Version record.Version
	scratch []byte
}

// NewRaw constructs a Raw formatter at the given wire version.
func NewRaw(version record.Version) *Raw {
	return &Raw{Version: version, scratch: make([]byte, 0, 256)}
}

func (r *Raw) Process(w io.Writer, d Data) error {
	s := d.Slot
	areaName, sectName := "", ""
	if s.Area != nil {
		areaName = s.Area.AreaName()
		sectName = s.Area.SectionName(s.Section)
	}

	r.scratch = record.Encode(r.scratch[:0], r.Version, d.RingName, areaName, sectName, s)
	_, err := w.Write(r.scratch)
	return err
}
