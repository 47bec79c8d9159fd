// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package results

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/entity-eval/pkg/types"
)

// QueryOptions filters stored results.
type QueryOptions struct {
	Category types.Category
	CaseID   string

	// Details loads the match records and unmatched extractions of each
	// result.
	Details bool
}

// Results returns stored results ordered by category and case id.
func (s *Store) Results(ctx context.Context, opts QueryOptions) ([]types.CaseEvaluationResult, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT category, case_id, positive, partial, semantic, missing,
			potential_positive, insert_all, insert_but_in_text, insert_hallucination,
			reconfirmed, try_count, truth_size, extracted_size, quote_in_text,
			quote_missing, context_in_text, context_missing, context_in_quote,
			context_similarity, skipped_lines, exhausted, error, evaluated_at
		FROM results
		WHERE 1=1`)

	if opts.Category != "" {
		qb.WriteString(` AND category = ?`)
		args = append(args, string(opts.Category))
	}
	if opts.CaseID != "" {
		qb.WriteString(` AND case_id = ?`)
		args = append(args, opts.CaseID)
	}
	qb.WriteString(` ORDER BY category, case_id`)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []types.CaseEvaluationResult
	for rows.Next() {
		var (
			r           types.CaseEvaluationResult
			category    string
			errText     sql.NullString
			evaluatedAt string
		)
		if err := rows.Scan(
			&category, &r.CaseID, &r.Positive, &r.Partial, &r.Semantic, &r.Missing,
			&r.PotentialPositive, &r.InsertAll, &r.InsertButInText, &r.InsertHallucination,
			&r.Reconfirmed, &r.TryCount, &r.TruthSize, &r.ExtractedSize, &r.QuoteInText,
			&r.QuoteMissing, &r.ContextInText, &r.ContextMissing, &r.ContextInQuote,
			&r.ContextSimilarity, &r.SkippedLines, &r.Exhausted, &errText, &evaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Category = types.Category(category)
		r.Error = errText.String
		if t, err := time.Parse(time.RFC3339Nano, evaluatedAt); err == nil {
			r.EvaluatedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.Details {
		for i := range out {
			if err := s.loadDetails(ctx, &out[i]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Store) loadDetails(ctx context.Context, r *types.CaseEvaluationResult) error {
	mrows, err := s.db.QueryContext(ctx,
		`SELECT truth, tier, extracted, overlap, score FROM match_records
		 WHERE category = ? AND case_id = ? ORDER BY truth`,
		string(r.Category), r.CaseID)
	if err != nil {
		return fmt.Errorf("querying match records: %w", err)
	}
	defer mrows.Close()

	for mrows.Next() {
		var (
			m         types.MatchRecord
			tier      string
			extracted sql.NullString
			overlap   sql.NullInt64
			score     sql.NullFloat64
		)
		if err := mrows.Scan(&m.Truth, &tier, &extracted, &overlap, &score); err != nil {
			return fmt.Errorf("scanning match record: %w", err)
		}
		m.Tier = types.Tier(tier)
		m.Extracted = extracted.String
		m.Overlap = int(overlap.Int64)
		m.Score = score.Float64
		r.Matches = append(r.Matches, m)
	}
	if err := mrows.Err(); err != nil {
		return err
	}

	urows, err := s.db.QueryContext(ctx,
		`SELECT item, class, evidence, score FROM unmatched
		 WHERE category = ? AND case_id = ? ORDER BY item`,
		string(r.Category), r.CaseID)
	if err != nil {
		return fmt.Errorf("querying unmatched extractions: %w", err)
	}
	defer urows.Close()

	for urows.Next() {
		var (
			u        types.UnmatchedExtraction
			class    string
			evidence sql.NullString
			score    sql.NullFloat64
		)
		if err := urows.Scan(&u.Item, &class, &evidence, &score); err != nil {
			return fmt.Errorf("scanning unmatched extraction: %w", err)
		}
		u.Class = types.ProvenanceClass(class)
		u.Evidence = evidence.String
		u.Score = score.Float64
		r.Unmatched = append(r.Unmatched, u)
	}
	return urows.Err()
}
