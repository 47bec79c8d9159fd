// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Tier is the match strength resolved for a ground-truth item.
type Tier string

const (
	TierExact    Tier = "exact"
	TierPartial  Tier = "partial"
	TierSemantic Tier = "semantic"
	TierMissing  Tier = "missing"
)

// ProvenanceClass is the resolution of an extracted item that matched no
// ground-truth item.
type ProvenanceClass string

const (
	InsertButInText ProvenanceClass = "insert_but_in_text"
	Hallucination   ProvenanceClass = "hallucination"
)

// MatchRecord is the tier resolved for one ground-truth item.
type MatchRecord struct {
	Truth string `json:"truth" yaml:"truth"`
	Tier  Tier   `json:"tier" yaml:"tier"`

	// Extracted is the item the truth matched. Empty when Tier is missing.
	Extracted string `json:"extracted,omitempty" yaml:"extracted,omitempty"`

	// Overlap is the word intersection size for exact and partial tiers.
	Overlap int `json:"overlap,omitempty" yaml:"overlap,omitempty"`

	// Score is the cosine similarity for the semantic tier.
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// UnmatchedExtraction is an extracted item absent from the ground truth.
type UnmatchedExtraction struct {
	Item  string          `json:"item" yaml:"item"`
	Class ProvenanceClass `json:"class" yaml:"class"`

	// Evidence is the verbatim corpus substring or the closest source
	// sentence.
	Evidence string `json:"evidence,omitempty" yaml:"evidence,omitempty"`

	// Score is the sentence similarity when the sentence check ran.
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// CaseEvaluationResult is the persisted metric row for one case and
// category.
type CaseEvaluationResult struct {
	CaseID   string   `json:"case_id" yaml:"case_id"`
	Category Category `json:"category" yaml:"category"`

	Positive            int `json:"positive" yaml:"positive"`
	Partial             int `json:"partial" yaml:"partial"`
	Semantic            int `json:"semantic" yaml:"semantic"`
	Missing             int `json:"missing" yaml:"missing"`
	PotentialPositive   int `json:"potential_positive" yaml:"potential_positive"`
	InsertAll           int `json:"insert_all" yaml:"insert_all"`
	InsertButInText     int `json:"insert_but_in_text" yaml:"insert_but_in_text"`
	InsertHallucination int `json:"insert_hallucination" yaml:"insert_hallucination"`
	Reconfirmed         int `json:"reconfirmed" yaml:"reconfirmed"`
	TryCount            int `json:"try_count" yaml:"try_count"`

	TruthSize     int `json:"truth_size" yaml:"truth_size"`
	ExtractedSize int `json:"extracted_size" yaml:"extracted_size"`

	// QuoteInText and QuoteMissing count provenance quotes of unmatched
	// items found or not found verbatim in the source corpus.
	QuoteInText  int `json:"quote_in_text" yaml:"quote_in_text"`
	QuoteMissing int `json:"quote_missing" yaml:"quote_missing"`

	// ContextInText and ContextMissing count provenance contexts of
	// unmatched items found or not found in the source corpus;
	// ContextInQuote counts contexts whose words all occur in their quote.
	ContextInText  int `json:"context_in_text" yaml:"context_in_text"`
	ContextMissing int `json:"context_missing" yaml:"context_missing"`
	ContextInQuote int `json:"context_in_quote" yaml:"context_in_quote"`

	// ContextSimilarity is the mean similarity between unmatched items and
	// their provenance contexts, zero when not computed.
	ContextSimilarity float64 `json:"context_similarity" yaml:"context_similarity"`

	// SkippedLines counts unparseable artifact lines in the final attempt.
	SkippedLines int `json:"skipped_lines" yaml:"skipped_lines"`

	Exhausted   bool      `json:"exhausted" yaml:"exhausted"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at" yaml:"evaluated_at"`

	Matches   []MatchRecord         `json:"matches,omitempty" yaml:"matches,omitempty"`
	Unmatched []UnmatchedExtraction `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`
}

// Accuracy returns Positive / TruthSize. The second value is false when the
// ground truth is empty and the ratio is undefined.
func (r CaseEvaluationResult) Accuracy() (float64, bool) {
	return ratio(r.Positive, r.TruthSize)
}

// PotentialAccuracy returns PotentialPositive / TruthSize.
func (r CaseEvaluationResult) PotentialAccuracy() (float64, bool) {
	return ratio(r.PotentialPositive, r.TruthSize)
}

func ratio(num, den int) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}
