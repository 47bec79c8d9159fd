// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package records loads structured case records and derives the ground
// truth and source corpus of each case.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pdiddy/entity-eval/pkg/types"
)

// Column names shared by both record families.
const (
	colCaseID         = "misperid"
	colVulnCaseID     = "misper_misperid"
	colReportID       = "reportid"
	colVulnReportID   = "vpd_nominalincidentid_pk"
	colForenames      = "forenames"
	colSurname        = "surname"
	colCircumstances  = "circumstances"
	colReturnMethod   = "return_method_desc"
	colSynopsis       = "vpd_nominalsynopsis"
	colWellbeing      = "vpd_wellbeingcomments"
	colDisabilityDesc = "vpd_disabilitydesc"
	explanationSuffix = "_explanation"
	questionPrefix    = "q_"
)

// Store holds every case loaded from the two record files.
type Store struct {
	cases map[string]*types.Case
}

// Load reads the missing-person and vulnerability CSV files and groups
// their rows by case id. The vulnerability file is optional.
func Load(cfg types.RecordsConfig) (*Store, error) {
	if cfg.MissingPersonFile == "" {
		return nil, fmt.Errorf("missing person records file not configured")
	}

	mp, err := readFile(cfg.MissingPersonFile)
	if err != nil {
		return nil, err
	}

	var vp []types.Record
	if cfg.VulnerabilityFile != "" {
		vp, err = readFile(cfg.VulnerabilityFile)
		if err != nil {
			return nil, err
		}
	}

	return FromRecords(mp, vp)
}

// FromRecords groups already-parsed rows by case id.
func FromRecords(mp, vp []types.Record) (*Store, error) {
	s := &Store{cases: make(map[string]*types.Case)}

	for i, r := range mp {
		id := r.Get(colCaseID)
		if id == "" {
			return nil, fmt.Errorf("missing person record %d: empty %s", i+1, colCaseID)
		}
		s.caseFor(id).MissingPerson = append(s.caseFor(id).MissingPerson, r)
	}

	for _, r := range vp {
		id := r.Get(colVulnCaseID)
		c, ok := s.cases[id]
		if !ok {
			// Vulnerability rows for cases without a narrative record are
			// not evaluable.
			continue
		}
		c.Vulnerability = append(c.Vulnerability, r)
	}

	return s, nil
}

func (s *Store) caseFor(id string) *types.Case {
	c, ok := s.cases[id]
	if !ok {
		c = &types.Case{ID: id}
		s.cases[id] = c
	}
	return c
}

// IDs returns every case id in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.cases))
	for id := range s.cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Case returns the case with the given id.
func (s *Store) Case(id string) (*types.Case, bool) {
	c, ok := s.cases[id]
	return c, ok
}

// readFile parses a CSV file with a header row. Header names are
// lowercased and cell values trimmed.
func readFile(path string) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening records %s: %w", path, err)
	}
	defer f.Close()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing records %s: %w", path, err)
	}
	return rows, nil
}

// Parse reads CSV rows with a header from r.
func Parse(r io.Reader) ([]types.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var out []types.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec := make(types.Record, len(header))
		for i, h := range header {
			if h == "" || i >= len(row) {
				continue
			}
			rec[h] = strings.TrimSpace(row[i])
		}
		out = append(out, rec)
	}
	return out, nil
}
