// Package format turns a (ring name, record) pair into bytes: Basic renders
// human-readable text, Raw renders the versioned wire format from package
// record.
package format

import (
	"io"

	"github.com/ringlog/ringlog/record"
)

// Data is everything a Formatter needs about one record to render it: the
// record itself plus the name of the ring it came from (the ring is not
// otherwise reachable from a record.Slot).
type Data struct {
	RingName string
	Slot     *record.Slot
}

// Formatter renders one record's Data into w. Header and Footer bracket the
// lifetime of one output stream (file, pipe, ...): Header runs every time a
// stream opens, including every file-rotation chunk; Footer runs before a
// stream closes. name is the stream's current name; footerNext is the name
// of the chunk that follows, empty for the last chunk. Most formatters
// render bodies only and leave both as no-ops.
type Formatter interface {
	Process(w io.Writer, d Data) error
	Header(w io.Writer, name string, first bool) error
	Footer(w io.Writer, footerNext string) error
}

// NoFraming implements empty Header/Footer; formatters that only render
// record bodies embed it to satisfy Formatter without boilerplate.
type NoFraming struct{}

func (NoFraming) Header(io.Writer, string, bool) error { return nil }
func (NoFraming) Footer(io.Writer, string) error       { return nil }
