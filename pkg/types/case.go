// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Record is one row of a structured record file keyed by lowercased
// column name.
type Record map[string]string

// Get returns the trimmed value of column, or "" when absent.
func (r Record) Get(column string) string {
	return r[column]
}

// Case groups every record belonging to one missing person.
type Case struct {
	ID string `json:"id" yaml:"id"`

	// MissingPerson holds the case-narrative records (one per report).
	MissingPerson []Record `json:"missing_person" yaml:"missing_person"`

	// Vulnerability holds the incident/vulnerability records.
	Vulnerability []Record `json:"vulnerability" yaml:"vulnerability"`
}
