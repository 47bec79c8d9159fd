// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Category identifies an entity family scored by the evaluator.
type Category string

const (
	CategoryPeople        Category = "people"
	CategoryLocations     Category = "locations"
	CategoryLocationTypes Category = "location_types"
	CategoryPatterns      Category = "patterns"
)

// AllCategories lists every category in evaluation order.
func AllCategories() []Category {
	return []Category{CategoryPeople, CategoryLocations, CategoryLocationTypes, CategoryPatterns}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range AllCategories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (want one of people, locations, location_types, patterns)", s)
}

// ExactRule selects how the exact tier compares word sets.
type ExactRule string

const (
	// ExactCover accepts an extracted item whose words cover every
	// ground-truth word.
	ExactCover ExactRule = "cover"

	// ExactEqual requires identical word sets.
	ExactEqual ExactRule = "equal"
)

// CategoryConfig is one row of the matching policy table.
type CategoryConfig struct {
	// MinWordOverlap is the smallest word intersection accepted by the
	// partial tier (default 1).
	MinWordOverlap int `json:"min_word_overlap" yaml:"min_word_overlap" mapstructure:"min_word_overlap"`

	// TruthSimilarityThreshold is the cosine cutoff of the semantic tier.
	// Zero disables the tier.
	TruthSimilarityThreshold float64 `json:"truth_similarity_threshold" yaml:"truth_similarity_threshold" mapstructure:"truth_similarity_threshold"`

	// SourceSimilarityThreshold is the cosine cutoff between an unmatched
	// item and a source sentence. Zero disables the sentence check.
	SourceSimilarityThreshold float64 `json:"source_similarity_threshold" yaml:"source_similarity_threshold" mapstructure:"source_similarity_threshold"`

	// ExactRule is "cover" or "equal".
	ExactRule ExactRule `json:"exact_rule" yaml:"exact_rule" mapstructure:"exact_rule"`

	// Stopwords are dropped before word-set operations.
	Stopwords []string `json:"stopwords" yaml:"stopwords" mapstructure:"stopwords"`

	// ASCIIOnly restricts canonical text to [a-z0-9 ].
	ASCIIOnly bool `json:"ascii_only" yaml:"ascii_only" mapstructure:"ascii_only"`
}

// DefaultCategories returns the matching policy for every category.
func DefaultCategories() map[Category]CategoryConfig {
	return map[Category]CategoryConfig{
		CategoryPeople: {
			MinWordOverlap: 1,
			ExactRule:      ExactEqual,
			Stopwords:      []string{"nearby", "other"},
		},
		CategoryLocations: {
			MinWordOverlap: 1,
			ExactRule:      ExactCover,
			Stopwords:      []string{"nearby", "other"},
		},
		CategoryLocationTypes: {
			MinWordOverlap:            1,
			TruthSimilarityThreshold:  0.6,
			SourceSimilarityThreshold: 0.5,
			ExactRule:                 ExactCover,
			Stopwords:                 []string{"area"},
		},
		CategoryPatterns: {
			MinWordOverlap:            1,
			TruthSimilarityThreshold:  0.4,
			SourceSimilarityThreshold: 0.4,
			ExactRule:                 ExactCover,
			Stopwords:                 []string{"pattern"},
			ASCIIOnly:                 true,
		},
	}
}

// CategoryOverride is a partial CategoryConfig read from the config file.
// A nil field keeps the default, so an explicit zero or false disables a
// tier or option.
type CategoryOverride struct {
	MinWordOverlap            *int       `json:"min_word_overlap,omitempty" yaml:"min_word_overlap,omitempty" mapstructure:"min_word_overlap"`
	TruthSimilarityThreshold  *float64   `json:"truth_similarity_threshold,omitempty" yaml:"truth_similarity_threshold,omitempty" mapstructure:"truth_similarity_threshold"`
	SourceSimilarityThreshold *float64   `json:"source_similarity_threshold,omitempty" yaml:"source_similarity_threshold,omitempty" mapstructure:"source_similarity_threshold"`
	ExactRule                 *ExactRule `json:"exact_rule,omitempty" yaml:"exact_rule,omitempty" mapstructure:"exact_rule"`
	ASCIIOnly                 *bool      `json:"ascii_only,omitempty" yaml:"ascii_only,omitempty" mapstructure:"ascii_only"`

	// Stopwords replaces the default stoplist when non-nil; an empty list
	// clears it.
	Stopwords []string `json:"stopwords,omitempty" yaml:"stopwords,omitempty" mapstructure:"stopwords"`
}

// Apply overlays the fields set in o onto c.
func (c CategoryConfig) Apply(o CategoryOverride) CategoryConfig {
	if o.MinWordOverlap != nil {
		c.MinWordOverlap = *o.MinWordOverlap
	}
	if o.TruthSimilarityThreshold != nil {
		c.TruthSimilarityThreshold = *o.TruthSimilarityThreshold
	}
	if o.SourceSimilarityThreshold != nil {
		c.SourceSimilarityThreshold = *o.SourceSimilarityThreshold
	}
	if o.ExactRule != nil {
		c.ExactRule = *o.ExactRule
	}
	if o.ASCIIOnly != nil {
		c.ASCIIOnly = *o.ASCIIOnly
	}
	if o.Stopwords != nil {
		c.Stopwords = append([]string{}, o.Stopwords...)
	}
	return c
}

// Override returns the override that sets every field of c.
func (c CategoryConfig) Override() CategoryOverride {
	return CategoryOverride{
		MinWordOverlap:            &c.MinWordOverlap,
		TruthSimilarityThreshold:  &c.TruthSimilarityThreshold,
		SourceSimilarityThreshold: &c.SourceSimilarityThreshold,
		ExactRule:                 &c.ExactRule,
		ASCIIOnly:                 &c.ASCIIOnly,
		Stopwords:                 append([]string{}, c.Stopwords...),
	}
}
