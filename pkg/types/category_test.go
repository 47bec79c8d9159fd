// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyHonoursExplicitZero(t *testing.T) {
	base := DefaultCategories()[CategoryPatterns]
	zero, no := 0.0, false

	got := base.Apply(CategoryOverride{TruthSimilarityThreshold: &zero, ASCIIOnly: &no})
	assert.Zero(t, got.TruthSimilarityThreshold)
	assert.False(t, got.ASCIIOnly)
	assert.Equal(t, base.SourceSimilarityThreshold, got.SourceSimilarityThreshold)
	assert.Equal(t, base.Stopwords, got.Stopwords)
}

func TestApplyEmptyOverrideKeepsDefaults(t *testing.T) {
	for _, c := range AllCategories() {
		base := DefaultCategories()[c]
		assert.Equal(t, base, base.Apply(CategoryOverride{}), c)
	}
}

func TestOverrideRoundTrip(t *testing.T) {
	base := DefaultCategories()[CategoryLocationTypes]
	assert.Equal(t, base, CategoryConfig{}.Apply(base.Override()))

	cleared := base.Apply(CategoryOverride{Stopwords: []string{}})
	assert.Empty(t, cleared.Stopwords)
}

func TestCategoryPolicy(t *testing.T) {
	rule := ExactEqual
	cfg := EvalConfig{Categories: map[Category]CategoryOverride{
		CategoryLocations: {ExactRule: &rule},
	}}

	assert.Equal(t, ExactEqual, cfg.CategoryPolicy(CategoryLocations).ExactRule)
	assert.Equal(t, DefaultCategories()[CategoryPeople], cfg.CategoryPolicy(CategoryPeople))
}
