package area

import (
	"fmt"
	"regexp"
	"strings"
)

// Entry is one parsed mask literal: for every section whose (area name,
// section name) matches (areaRE, sectionRE), set the enable bit to
// polarity. Entries are applied in order; later entries override earlier
// ones.
type Entry struct {
	Literal   string
	Polarity  bool
	areaRE    *regexp.Regexp
	sectionRE *regexp.Regexp
}

// Mask is an ordered list of Entry, applied to an area's sections in order.
type Mask struct {
	entries []Entry
}

// NewMask returns an empty mask.
func NewMask() *Mask { return &Mask{} }

// Add parses a literal of the form "[!]area-regex:section-regex" and
// appends it. Polarity defaults to true; a leading '!' flips it. A missing
// area or section half means ".*".
func (m *Mask) Add(literal string) error {
	e, err := ParseEntry(literal)
	if err != nil {
		return err
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns the mask's entries in application order. Must not be
// mutated by the caller.
func (m *Mask) Entries() []Entry { return m.entries }

// ParseEntry parses one "[!]area-regex:section-regex" literal.
func ParseEntry(literal string) (Entry, error) {
	lit := literal
	polarity := true
	if strings.HasPrefix(lit, "!") {
		polarity = false
		lit = lit[1:]
	}

	areaPat, sectionPat := ".*", ".*"
	if idx := strings.IndexByte(lit, ':'); idx >= 0 {
		if lit[:idx] != "" {
			areaPat = lit[:idx]
		}
		if lit[idx+1:] != "" {
			sectionPat = lit[idx+1:]
		}
	} else if lit != "" {
		areaPat = lit
	}

	areaRE, err := regexp.Compile(areaPat)
	if err != nil {
		return Entry{}, fmt.Errorf("area: bad area regex %q: %w", areaPat, err)
	}
	sectionRE, err := regexp.Compile(sectionPat)
	if err != nil {
		return Entry{}, fmt.Errorf("area: bad section regex %q: %w", sectionPat, err)
	}

	return Entry{
		Literal:   literal,
		Polarity:  polarity,
		areaRE:    areaRE,
		sectionRE: sectionRE,
	}, nil
}

// Apply applies m to a: for every entry whose area regex matches a's name,
// every section whose name matches the entry's section regex has its
// enable bit set to the entry's polarity. Entries apply in order, so a
// later entry overrides an earlier one for sections both touch.
func (m *Mask) Apply(a *Area) {
	for _, e := range m.entries {
		e.ApplyTo(a)
	}
}

// ApplyTo applies a single entry to an area.
func (e Entry) ApplyTo(a *Area) {
	if !e.areaRE.MatchString(a.name) {
		return
	}
	for i, name := range a.sections {
		if e.sectionRE.MatchString(name) {
			if e.Polarity {
				a.Set(uint16(i))
			} else {
				a.Reset(uint16(i))
			}
		}
	}
}

// Concat returns a new mask whose entries are m's entries followed by
// other's, the form whose application to an area is equivalent to applying
// m then other in sequence (a testable property of mask application).
func (m *Mask) Concat(other *Mask) *Mask {
	out := &Mask{entries: make([]Entry, 0, len(m.entries)+len(other.entries))}
	out.entries = append(out.entries, m.entries...)
	out.entries = append(out.entries, other.entries...)
	return out
}
