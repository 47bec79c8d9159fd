// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package artifact parses the line-oriented extraction artifacts written by
// the extractor into extracted entity sets.
package artifact

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/pdiddy/entity-eval/internal/normalize"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// Field names used by the artifact schemas.
const (
	FieldPerson1      = "person1"
	FieldPerson2      = "person2"
	FieldRelationship = "relationship"
	FieldReportID     = "report_id"
	FieldLocation     = "location"
	FieldLocationType = "location_type"
	FieldQuote        = "quote"
	FieldPattern      = "pattern"
	FieldExplanation  = "explanation"
	FieldPatternName  = "pattern_name"
)

// Schema describes the record layout of one category's artifact.
type Schema struct {
	Category types.Category

	// Fields names the columns in order. Lines may omit trailing columns
	// down to MinFields.
	Fields    []string
	MinFields int

	// Rest names the column that absorbs extra unquoted commas. Empty means
	// extra columns are ignored.
	Rest string

	// Item builds the raw entity string of one record.
	Item func(f Fields) string

	// Provenance builds the provenance tuple of one record.
	Provenance func(f Fields) types.Provenance
}

// Fields is one parsed artifact record keyed by field name.
type Fields map[string]string

// LineError describes an artifact line that was skipped.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

var schemas = map[types.Category]Schema{
	types.CategoryPeople: {
		Category:  types.CategoryPeople,
		Fields:    []string{FieldPerson1, FieldPerson2, FieldRelationship, FieldReportID},
		MinFields: 3,
		Item: func(f Fields) string {
			return strings.TrimSpace(f[FieldPerson2] + " " + f[FieldRelationship])
		},
		Provenance: func(f Fields) types.Provenance {
			return types.Provenance{Context: f[FieldPerson1], ReportID: f[FieldReportID]}
		},
	},
	types.CategoryLocations: {
		Category:  types.CategoryLocations,
		Fields:    []string{FieldLocation, FieldReportID},
		MinFields: 1,
		Item:      func(f Fields) string { return f[FieldLocation] },
		Provenance: func(f Fields) types.Provenance {
			return types.Provenance{ReportID: f[FieldReportID]}
		},
	},
	types.CategoryLocationTypes: {
		Category:  types.CategoryLocationTypes,
		Fields:    []string{FieldReportID, FieldLocation, FieldLocationType, FieldQuote, FieldPattern},
		MinFields: 3,
		Item:      func(f Fields) string { return f[FieldLocationType] },
		Provenance: func(f Fields) types.Provenance {
			return types.Provenance{Context: f[FieldLocation], Quote: f[FieldQuote], ReportID: f[FieldReportID]}
		},
	},
	types.CategoryPatterns: {
		Category:  types.CategoryPatterns,
		Fields:    []string{FieldReportID, FieldExplanation, FieldPatternName, FieldQuote},
		MinFields: 3,
		Rest:      FieldQuote,
		Item:      func(f Fields) string { return f[FieldPatternName] },
		Provenance: func(f Fields) types.Provenance {
			return types.Provenance{Context: f[FieldExplanation], Quote: f[FieldQuote], ReportID: f[FieldReportID]}
		},
	},
}

// SchemaFor returns the artifact schema of cat.
func SchemaFor(cat types.Category) (Schema, error) {
	s, ok := schemas[cat]
	if !ok {
		return Schema{}, fmt.Errorf("no artifact schema for category %q", cat)
	}
	return s, nil
}

// Header returns the header line of the schema.
func (s Schema) Header() string {
	return strings.Join(s.Fields, ",")
}

// Parse reads one record per line from text. Lines that cannot be parsed
// are skipped and reported; a header line and markdown code fences are
// skipped silently. Items are canonicalised with n.
func Parse(text string, s Schema, n normalize.Normalizer) (*types.ExtractedSet, []LineError) {
	set := types.NewExtractedSet()
	var skipped []LineError

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		values, err := splitLine(line)
		if err != nil {
			skipped = append(skipped, LineError{Line: i + 1, Text: line, Reason: err.Error()})
			continue
		}
		if s.isHeader(values) {
			continue
		}
		if len(values) < s.MinFields {
			skipped = append(skipped, LineError{
				Line:   i + 1,
				Text:   line,
				Reason: fmt.Sprintf("got %d fields, want at least %d", len(values), s.MinFields),
			})
			continue
		}

		f := s.bind(values)
		item := n.Canonical(s.Item(f))
		if item == "" {
			skipped = append(skipped, LineError{Line: i + 1, Text: line, Reason: "empty item"})
			continue
		}
		set.Add(item, s.Provenance(f))
	}

	set.SkippedLines = len(skipped)
	return set, skipped
}

// splitLine parses a single quote-aware CSV record.
func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	values, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values, nil
}

func (s Schema) isHeader(values []string) bool {
	if len(values) < s.MinFields {
		return false
	}
	for i, v := range values {
		if i >= len(s.Fields) || strings.ToLower(v) != s.Fields[i] {
			return false
		}
	}
	return true
}

// bind maps values onto field names. Values beyond the last field are
// joined into the Rest field when one is set.
func (s Schema) bind(values []string) Fields {
	f := make(Fields, len(s.Fields))
	for i, name := range s.Fields {
		if i < len(values) {
			f[name] = values[i]
		}
	}
	if s.Rest != "" && len(values) > len(s.Fields) {
		idx := s.index(s.Rest)
		f[s.Rest] = strings.Join(values[idx:], ", ")
	}
	return f
}

func (s Schema) index(name string) int {
	for i, n := range s.Fields {
		if n == name {
			return i
		}
	}
	return len(s.Fields)
}
