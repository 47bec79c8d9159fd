// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package results

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/entity-eval/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.ResultsConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(caseID string) types.CaseEvaluationResult {
	return types.CaseEvaluationResult{
		CaseID:              caseID,
		Category:            types.CategoryLocations,
		Positive:            2,
		Partial:             1,
		Missing:             1,
		PotentialPositive:   3,
		InsertAll:           2,
		InsertButInText:     1,
		InsertHallucination: 1,
		TryCount:            1,
		TruthSize:           4,
		ExtractedSize:       5,
		QuoteInText:         1,
		ContextInText:       1,
		ContextMissing:      1,
		ContextInQuote:      2,
		ContextSimilarity:   0.5,
		EvaluatedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Matches: []types.MatchRecord{
			{Truth: "aviemore", Tier: types.TierExact, Extracted: "aviemore", Overlap: 1},
			{Truth: "edward street bridge", Tier: types.TierPartial, Extracted: "edward street", Overlap: 2},
			{Truth: "harbour", Tier: types.TierMissing},
			{Truth: "kingussie", Tier: types.TierExact, Extracted: "kingussie", Overlap: 1},
		},
		Unmatched: []types.UnmatchedExtraction{
			{Item: "maryland road", Class: types.Hallucination},
			{Item: "train station", Class: types.InsertButInText, Evidence: "train station"},
		},
	}
}

func TestAppendAndQuery(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, sampleResult("7")))

	ok, err := s.Has(ctx, types.CategoryLocations, "7")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Has(ctx, types.CategoryPeople, "7")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Results(ctx, QueryOptions{Category: types.CategoryLocations, Details: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sampleResult("7"), got[0])
}

func TestHasIgnoresFailedRows(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := sampleResult("7")
	r.Error = "embedding: timeout"
	require.NoError(t, s.Append(ctx, r))

	ok, err := s.Has(ctx, types.CategoryLocations, "7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendReplacesPreviousRow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, sampleResult("7")))

	again := sampleResult("7")
	again.Positive = 4
	again.Matches = again.Matches[:1]
	again.Unmatched = nil
	require.NoError(t, s.Append(ctx, again))

	got, err := s.Results(ctx, QueryOptions{CaseID: "7", Details: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Positive)
	assert.Len(t, got[0].Matches, 1)
	assert.Empty(t, got[0].Unmatched)

	// The snapshot keeps both rows.
	f, err := os.Open(filepath.Join(s.Dir(), "locations.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2", rows[1][2])
	assert.Equal(t, "4", rows[2][2])
}

func TestAppendStampsTime(t *testing.T) {
	s := openStore(t)
	r := sampleResult("9")
	r.EvaluatedAt = time.Time{}
	require.NoError(t, s.Append(context.Background(), r))

	got, err := s.Results(context.Background(), QueryOptions{CaseID: "9"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].EvaluatedAt.IsZero())
}

func TestOpenLocksDirectory(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(types.ResultsConfig{Dir: dir})
	require.NoError(t, err)

	_, err = Open(types.ResultsConfig{Dir: dir})
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)

	require.NoError(t, first.Close())

	second, err := Open(types.ResultsConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenReadOnlyDuringRun(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := OpenReadOnly(types.ResultsConfig{Dir: dir})
	assert.ErrorContains(t, err, "no results database")

	writer, err := Open(types.ResultsConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, writer.Append(ctx, sampleResult("7")))

	reader, err := OpenReadOnly(types.ResultsConfig{Dir: dir})
	require.NoError(t, err, "reading must not wait for the writer's lock")

	got, err := reader.Results(ctx, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, writer.Append(ctx, sampleResult("8")))
	got, err = reader.Results(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.ErrorIs(t, reader.Append(ctx, sampleResult("9")), ErrReadOnly)

	path, err := reader.ExportJSON(ctx, QueryOptions{})
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, reader.Close())
	require.NoError(t, writer.Close())
}

func TestTryCount(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, ok, err := s.TryCount(ctx, types.CategoryLocations, "7")
	require.NoError(t, err)
	assert.False(t, ok)

	r := sampleResult("7")
	r.TryCount = 6
	require.NoError(t, s.Append(ctx, r))

	n, ok, err := s.TryCount(ctx, types.CategoryLocations, "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, n)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(types.ResultsConfig{})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	exhausted := types.CaseEvaluationResult{
		CaseID: "8", Category: types.CategoryLocations, Missing: 3, TruthSize: 3, TryCount: 10, Exhausted: true,
	}
	failed := types.CaseEvaluationResult{CaseID: "9", Category: types.CategoryLocations, Error: "embedding: timeout"}
	people := types.CaseEvaluationResult{CaseID: "7", Category: types.CategoryPeople, TryCount: 2}

	got := Summarize([]types.CaseEvaluationResult{sampleResult("7"), exhausted, failed, people})
	require.Len(t, got, 2)

	loc := got[0]
	assert.Equal(t, types.CategoryLocations, loc.Category)
	assert.Equal(t, 3, loc.Cases)
	assert.Equal(t, 1, loc.Scored)
	assert.Equal(t, 1, loc.Exhausted)
	assert.Equal(t, 1, loc.Failed)

	acc, ok := loc.Accuracy()
	assert.True(t, ok)
	assert.InDelta(t, 0.5, acc, 1e-9, "exhausted truth is excluded")

	pot, _ := loc.PotentialAccuracy()
	assert.InDelta(t, 0.75, pot, 1e-9)

	hall, _ := loc.HallucinationRate()
	assert.InDelta(t, 0.2, hall, 1e-9)

	tries, _ := loc.MeanTryCount()
	assert.InDelta(t, 5.5, tries, 1e-9)

	_, ok = got[1].Accuracy()
	assert.False(t, ok, "empty ground truth has no accuracy")
}

func TestSummaryFromStore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, sampleResult("7")))
	require.NoError(t, s.Append(ctx, sampleResult("8")))

	got, err := s.Summary(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Scored)
	assert.Equal(t, 8, got[0].TruthSize)
}

func TestExport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, sampleResult("7")))

	path, err := s.ExportYAML(ctx, QueryOptions{})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fromYAML []types.CaseEvaluationResult
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	require.Len(t, fromYAML, 1)
	assert.Len(t, fromYAML[0].Matches, 4)

	path, err = s.ExportJSON(ctx, QueryOptions{})
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	var fromJSON []types.CaseEvaluationResult
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	require.Len(t, fromJSON, 1)
	assert.Equal(t, "maryland road", fromJSON[0].Unmatched[0].Item)
}

func TestExportEmpty(t *testing.T) {
	s := openStore(t)
	path, err := s.ExportJSON(context.Background(), QueryOptions{})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
