// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package results

import (
	"context"

	"github.com/pdiddy/entity-eval/pkg/types"
)

// CategorySummary aggregates the stored results of one category. Exhausted
// and failed cases are counted but excluded from the metric sums.
type CategorySummary struct {
	Category types.Category `json:"category" yaml:"category"`

	Cases     int `json:"cases" yaml:"cases"`
	Scored    int `json:"scored" yaml:"scored"`
	Exhausted int `json:"exhausted" yaml:"exhausted"`
	Failed    int `json:"failed" yaml:"failed"`

	Positive            int `json:"positive" yaml:"positive"`
	Partial             int `json:"partial" yaml:"partial"`
	Semantic            int `json:"semantic" yaml:"semantic"`
	Missing             int `json:"missing" yaml:"missing"`
	TruthSize           int `json:"truth_size" yaml:"truth_size"`
	ExtractedSize       int `json:"extracted_size" yaml:"extracted_size"`
	InsertButInText     int `json:"insert_but_in_text" yaml:"insert_but_in_text"`
	InsertHallucination int `json:"insert_hallucination" yaml:"insert_hallucination"`
	Reconfirmed         int `json:"reconfirmed" yaml:"reconfirmed"`

	// TryCount sums the attempts of every case that ran extraction,
	// exhausted ones included.
	TryCount int `json:"try_count" yaml:"try_count"`
}

// Accuracy returns Σpositive / Σ|G| over scored cases.
func (c CategorySummary) Accuracy() (float64, bool) {
	return ratio(c.Positive, c.TruthSize)
}

// PotentialAccuracy returns Σ(positive+partial) / Σ|G| over scored cases.
func (c CategorySummary) PotentialAccuracy() (float64, bool) {
	return ratio(c.Positive+c.Partial, c.TruthSize)
}

// HallucinationRate returns Σhallucination / Σ|E| over scored cases.
func (c CategorySummary) HallucinationRate() (float64, bool) {
	return ratio(c.InsertHallucination, c.ExtractedSize)
}

// MeanTryCount returns the mean attempts per case that ran extraction.
func (c CategorySummary) MeanTryCount() (float64, bool) {
	return ratio(c.TryCount, c.Scored+c.Exhausted)
}

func ratio(num, den int) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// Summarize groups rows by category in first-seen order.
func Summarize(rows []types.CaseEvaluationResult) []CategorySummary {
	var order []types.Category
	byCat := make(map[types.Category]*CategorySummary)

	for _, r := range rows {
		cs, ok := byCat[r.Category]
		if !ok {
			cs = &CategorySummary{Category: r.Category}
			byCat[r.Category] = cs
			order = append(order, r.Category)
		}
		cs.Cases++

		switch {
		case r.Error != "":
			cs.Failed++
			continue
		case r.Exhausted:
			cs.Exhausted++
			cs.TryCount += r.TryCount
			continue
		}

		cs.Scored++
		cs.TryCount += r.TryCount
		cs.Positive += r.Positive
		cs.Partial += r.Partial
		cs.Semantic += r.Semantic
		cs.Missing += r.Missing
		cs.TruthSize += r.TruthSize
		cs.ExtractedSize += r.ExtractedSize
		cs.InsertButInText += r.InsertButInText
		cs.InsertHallucination += r.InsertHallucination
		cs.Reconfirmed += r.Reconfirmed
	}

	out := make([]CategorySummary, 0, len(order))
	for _, c := range order {
		out = append(out, *byCat[c])
	}
	return out
}

// Summary aggregates the stored results, optionally for one category.
func (s *Store) Summary(ctx context.Context, cat types.Category) ([]CategorySummary, error) {
	rows, err := s.Results(ctx, QueryOptions{Category: cat})
	if err != nil {
		return nil, err
	}
	return Summarize(rows), nil
}
