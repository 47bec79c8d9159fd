// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package results

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/entity-eval/pkg/types"
)

// ExportYAML writes every stored result with its details to
// dir/export.yaml and returns the path.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	rows, err := s.exportRows(ctx, opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, "export.yaml")
	data, err := yaml.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes every stored result with its details to
// dir/export.json and returns the path.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	rows, err := s.exportRows(ctx, opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, "export.json")
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Store) exportRows(ctx context.Context, opts QueryOptions) ([]types.CaseEvaluationResult, error) {
	opts.Details = true
	rows, err := s.Results(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	if rows == nil {
		rows = []types.CaseEvaluationResult{}
	}
	return rows, nil
}

var csvHeader = []string{
	"case_id", "category", "positive", "partial", "semantic", "missing",
	"potential_positive", "insert_all", "insert_but_in_text", "insert_hallucination",
	"reconfirmed", "try_count", "truth_size", "extracted_size", "quote_in_text",
	"quote_missing", "context_in_text", "context_missing", "context_in_quote",
	"context_similarity", "skipped_lines", "exhausted", "error", "evaluated_at",
}

func (s *Store) csvPath(cat types.Category) string {
	return filepath.Join(s.dir, string(cat)+".csv")
}

// appendCSV appends r to the snapshot at path, writing the header when the
// file is new. A re-evaluated case appears again; the last row wins.
func appendCSV(path string, r types.CaseEvaluationResult) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}

	itoa := strconv.Itoa
	if err := w.Write([]string{
		r.CaseID, string(r.Category), itoa(r.Positive), itoa(r.Partial), itoa(r.Semantic), itoa(r.Missing),
		itoa(r.PotentialPositive), itoa(r.InsertAll), itoa(r.InsertButInText), itoa(r.InsertHallucination),
		itoa(r.Reconfirmed), itoa(r.TryCount), itoa(r.TruthSize), itoa(r.ExtractedSize), itoa(r.QuoteInText),
		itoa(r.QuoteMissing), itoa(r.ContextInText), itoa(r.ContextMissing), itoa(r.ContextInQuote),
		strconv.FormatFloat(r.ContextSimilarity, 'f', 4, 64), itoa(r.SkippedLines),
		strconv.FormatBool(r.Exhausted), r.Error,
		r.EvaluatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
