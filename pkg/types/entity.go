// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "sort"

// EntitySet is a set of canonical entity strings.
type EntitySet map[string]struct{}

// NewEntitySet returns a set holding items.
func NewEntitySet(items ...string) EntitySet {
	s := make(EntitySet, len(items))
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add inserts item. Empty strings are ignored.
func (s EntitySet) Add(item string) {
	if item == "" {
		return
	}
	s[item] = struct{}{}
}

// Has reports whether item is in the set.
func (s EntitySet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Len returns the number of items.
func (s EntitySet) Len() int { return len(s) }

// Union adds every item of o to s.
func (s EntitySet) Union(o EntitySet) {
	for it := range o {
		s[it] = struct{}{}
	}
}

// Sorted returns the items in lexical order.
func (s EntitySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Provenance ties an extracted item to the text the extractor cited for it.
type Provenance struct {
	// Context is the per-category companion field: the location for a
	// location type, the explanation for a pattern, the first person for
	// an association.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	// Quote is the supporting passage copied by the extractor.
	Quote string `json:"quote,omitempty" yaml:"quote,omitempty"`

	// ReportID is the source record the extractor attributed the item to.
	ReportID string `json:"report_id,omitempty" yaml:"report_id,omitempty"`
}

// ExtractedSet is the parsed output of one extraction attempt.
type ExtractedSet struct {
	// Items holds the canonical extracted entities.
	Items EntitySet `json:"-" yaml:"-"`

	// Provenance maps each item to the records that produced it.
	Provenance map[string][]Provenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`

	// Attempts is the number of extraction attempts used.
	Attempts int `json:"attempts" yaml:"attempts"`

	// Exhausted is true when every attempt failed and Items is empty.
	Exhausted bool `json:"exhausted" yaml:"exhausted"`

	// SkippedLines counts artifact lines that could not be parsed.
	SkippedLines int `json:"skipped_lines" yaml:"skipped_lines"`
}

// NewExtractedSet returns an empty set ready for Add.
func NewExtractedSet() *ExtractedSet {
	return &ExtractedSet{
		Items:      EntitySet{},
		Provenance: map[string][]Provenance{},
	}
}

// Add records item with its provenance. Empty items are ignored.
func (e *ExtractedSet) Add(item string, p Provenance) {
	if item == "" {
		return
	}
	e.Items.Add(item)
	if p != (Provenance{}) {
		e.Provenance[item] = append(e.Provenance[item], p)
	}
}

// Len returns the number of distinct items.
func (e *ExtractedSet) Len() int {
	if e == nil {
		return 0
	}
	return e.Items.Len()
}
