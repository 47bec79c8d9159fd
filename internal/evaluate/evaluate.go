// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evaluate runs the extraction driver, matcher and classifier over
// every selected case and persists one result row per case and category.
package evaluate

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/entity-eval/internal/embed"
	"github.com/pdiddy/entity-eval/internal/match"
	"github.com/pdiddy/entity-eval/internal/normalize"
	"github.com/pdiddy/entity-eval/internal/records"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// Driver produces the extracted set of one case and category.
type Driver interface {
	Run(ctx context.Context, c *types.Case, cat types.Category, n normalize.Normalizer) (*types.ExtractedSet, error)
}

// ResultStore persists results.
type ResultStore interface {
	Append(ctx context.Context, r types.CaseEvaluationResult) error
	Has(ctx context.Context, cat types.Category, caseID string) (bool, error)
	TryCount(ctx context.Context, cat types.Category, caseID string) (int, bool, error)
}

// Options selects what a run evaluates.
type Options struct {
	// Categories defaults to every category.
	Categories []types.Category

	// CaseIDs restricts the run to these cases.
	CaseIDs []string

	// From and Limit slice the sorted case id list. Zero Limit means no
	// limit.
	From  int
	Limit int

	// Resume skips cases that already have a successful result.
	Resume bool

	// Replay marks a run that re-scores stored artifacts. Rows keep the
	// try count of the run that produced the artifacts.
	Replay bool
}

// BatchSummary holds counts from an evaluation run.
type BatchSummary struct {
	Evaluated int
	Exhausted int
	Skipped   int
	Failed    int
}

// Total returns the number of case and category pairs processed.
func (s BatchSummary) Total() int {
	return s.Evaluated + s.Exhausted + s.Skipped + s.Failed
}

// HasFailures reports whether any case failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Evaluator scores the extraction of each case against its ground truth.
type Evaluator struct {
	records  *records.Store
	driver   Driver
	embedder embed.Embedder
	store    ResultStore
	cfg      types.EvalConfig
	log      *zap.Logger

	now func() time.Time
}

// New returns an Evaluator. The embedder may be nil when every selected
// category has its similarity thresholds disabled.
func New(recs *records.Store, driver Driver, e embed.Embedder, store ResultStore, cfg types.EvalConfig, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		records:  recs,
		driver:   driver,
		embedder: e,
		store:    store,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateCase extracts, matches and classifies one case. An error from
// matching or classification is recorded on the returned result; only
// context cancellation and extraction errors are returned.
func (ev *Evaluator) EvaluateCase(ctx context.Context, c *types.Case, cat types.Category) (types.CaseEvaluationResult, error) {
	policy := match.NewPolicy(ev.cfg.CategoryPolicy(cat))
	truth := records.NewEntityContext(c).GroundTruth(cat, policy.Normalizer.Canonical)

	set, err := ev.driver.Run(ctx, c, cat, policy.Normalizer)
	if err != nil {
		return types.CaseEvaluationResult{}, err
	}

	res, err := ev.score(ctx, c, cat, policy, truth, set)
	if err != nil {
		if ctx.Err() != nil {
			return types.CaseEvaluationResult{}, ctx.Err()
		}
		res = types.CaseEvaluationResult{
			CaseID:        c.ID,
			Category:      cat,
			TryCount:      set.Attempts,
			TruthSize:     truth.Len(),
			ExtractedSize: set.Len(),
			Exhausted:     set.Exhausted,
			SkippedLines:  set.SkippedLines,
			Error:         err.Error(),
		}
	}
	res.EvaluatedAt = ev.now()
	return res, nil
}

func (ev *Evaluator) score(ctx context.Context, c *types.Case, cat types.Category, policy match.Policy, truth types.EntitySet, set *types.ExtractedSet) (types.CaseEvaluationResult, error) {
	log := ev.log.With(zap.String("case", c.ID), zap.String("category", string(cat)))

	m, err := match.NewMatcher(policy, ev.embedder, log).Match(ctx, truth, set.Items)
	if err != nil {
		return types.CaseEvaluationResult{}, fmt.Errorf("matching: %w", err)
	}
	cls, err := match.NewClassifier(policy, ev.embedder, log).Classify(ctx, truth, set, m.Used, records.SourceCorpus(c))
	if err != nil {
		return types.CaseEvaluationResult{}, fmt.Errorf("classifying: %w", err)
	}
	return Aggregate(c.ID, cat, truth, set, m, cls), nil
}

// Aggregate combines the matcher and classifier output of one case into its
// result row.
func Aggregate(caseID string, cat types.Category, truth types.EntitySet, set *types.ExtractedSet, m match.Result, cls match.Classification) types.CaseEvaluationResult {
	return types.CaseEvaluationResult{
		CaseID:              caseID,
		Category:            cat,
		Positive:            m.Positive,
		Partial:             m.Partial,
		Semantic:            m.Semantic,
		Missing:             m.Missing,
		PotentialPositive:   m.Positive + m.Partial,
		InsertAll:           cls.InText + cls.Hallucination,
		InsertButInText:     cls.InText,
		InsertHallucination: cls.Hallucination,
		Reconfirmed:         cls.Reconfirmed,
		TryCount:            set.Attempts,
		TruthSize:           truth.Len(),
		ExtractedSize:       set.Len(),
		QuoteInText:         cls.QuoteInText,
		QuoteMissing:        cls.QuoteMissing,
		ContextInText:       cls.ContextInText,
		ContextMissing:      cls.ContextMissing,
		ContextInQuote:      cls.ContextInQuote,
		ContextSimilarity:   cls.ContextSimilarity,
		SkippedLines:        set.SkippedLines,
		Exhausted:           set.Exhausted,
		Matches:             m.Records,
		Unmatched:           cls.Unmatched,
	}
}

// Run evaluates every selected case of every selected category in sorted
// case id order and persists each result as soon as it is computed.
// Progress lines go to w. Failures of individual cases are counted and do
// not stop the run; context cancellation and store errors do.
func (ev *Evaluator) Run(ctx context.Context, opts Options, w io.Writer) (BatchSummary, error) {
	ids, err := selectIDs(ev.records.IDs(), opts)
	if err != nil {
		return BatchSummary{}, err
	}
	cats := opts.Categories
	if len(cats) == 0 {
		cats = types.AllCategories()
	}

	var summary BatchSummary

	for _, cat := range cats {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			if opts.Resume {
				done, err := ev.store.Has(ctx, cat, id)
				if err != nil {
					return summary, err
				}
				if done {
					fmt.Fprintf(w, "skipped %s/%s\n", cat, id)
					summary.Skipped++
					continue
				}
			}

			c, _ := ev.records.Case(id)
			fmt.Fprintf(w, "evaluating %s/%s\n", cat, id)

			res, err := ev.EvaluateCase(ctx, c, cat)
			if err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				fmt.Fprintf(w, "failed  %s/%s: %v\n", cat, id, err)
				summary.Failed++
				continue
			}

			if opts.Replay {
				n, ok, err := ev.store.TryCount(ctx, cat, id)
				if err != nil {
					return summary, err
				}
				if ok {
					res.TryCount = n
				}
			}

			if err := ev.store.Append(ctx, res); err != nil {
				return summary, err
			}

			switch {
			case res.Error != "":
				fmt.Fprintf(w, "failed  %s/%s: %s\n", cat, id, res.Error)
				summary.Failed++
			case res.Exhausted:
				fmt.Fprintf(w, "exhausted %s/%s after %d attempts\n", cat, id, res.TryCount)
				summary.Exhausted++
			default:
				fmt.Fprintf(w, "evaluated %s/%s (%s)\n", cat, id, describe(res))
				summary.Evaluated++
			}

			ev.log.Info("case evaluated",
				zap.String("case", id),
				zap.String("category", string(cat)),
				zap.Int("positive", res.Positive),
				zap.Int("partial", res.Partial),
				zap.Int("missing", res.Missing),
				zap.Int("insert_hallucination", res.InsertHallucination),
				zap.Int("try_count", res.TryCount))
		}
	}

	fmt.Fprintf(w, "\nevaluated: %d, exhausted: %d, skipped: %d, failed: %d\n",
		summary.Evaluated, summary.Exhausted, summary.Skipped, summary.Failed)

	return summary, nil
}

func describe(r types.CaseEvaluationResult) string {
	acc := "n/a"
	if a, ok := r.Accuracy(); ok {
		acc = fmt.Sprintf("%.2f", a)
	}
	return fmt.Sprintf("accuracy %s, %d/%d exact, %d hallucinated, %d tries",
		acc, r.Positive, r.TruthSize, r.InsertHallucination, r.TryCount)
}

// selectIDs applies the case list and slice of opts to the sorted ids.
func selectIDs(all []string, opts Options) ([]string, error) {
	ids := all
	if len(opts.CaseIDs) > 0 {
		known := make(map[string]bool, len(all))
		for _, id := range all {
			known[id] = true
		}
		var unknown []string
		ids = nil
		for _, id := range opts.CaseIDs {
			if !known[id] {
				unknown = append(unknown, id)
				continue
			}
			ids = append(ids, id)
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown case ids: %s", strings.Join(unknown, ", "))
		}
		sort.Strings(ids)
	}

	if opts.From < 0 || opts.Limit < 0 {
		return nil, fmt.Errorf("from and limit must not be negative")
	}
	if opts.From >= len(ids) {
		return nil, nil
	}
	ids = ids[opts.From:]
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}
	return ids, nil
}
