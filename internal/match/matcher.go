// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match scores an extracted entity set against a ground-truth set
// and classifies the extracted items that match nothing.
package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/entity-eval/internal/embed"
	"github.com/pdiddy/entity-eval/internal/normalize"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// Policy is the matching configuration of one category.
type Policy struct {
	types.CategoryConfig
	Normalizer normalize.Normalizer
}

// NewPolicy builds the normalizer for cfg and fills a zero MinWordOverlap.
func NewPolicy(cfg types.CategoryConfig) Policy {
	if cfg.MinWordOverlap <= 0 {
		cfg.MinWordOverlap = 1
	}
	if cfg.ExactRule == "" {
		cfg.ExactRule = types.ExactCover
	}
	return Policy{
		CategoryConfig: cfg,
		Normalizer:     normalize.New(cfg.ASCIIOnly, cfg.Stopwords...),
	}
}

// Result is the tier assignment of every ground-truth item.
type Result struct {
	// Records holds one MatchRecord per ground-truth item in lexical order.
	Records []types.MatchRecord

	// Used holds the extracted items claimed by a MatchRecord.
	Used map[string]bool

	Positive int
	Partial  int
	Semantic int
	Missing  int
}

// Matcher assigns each ground-truth item the strongest tier it reaches.
type Matcher struct {
	policy   Policy
	embedder embed.Embedder
	log      *zap.Logger
}

// NewMatcher returns a Matcher. The embedder may be nil when the policy
// disables the semantic tier.
func NewMatcher(policy Policy, e embed.Embedder, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{policy: policy, embedder: e, log: log}
}

type wordSet = map[string]struct{}

// Match resolves every item of truth against extracted. Tiers run as
// global passes over truth in lexical order: exact, then partial, then
// semantic. Exact matches may share an extracted item; partial and
// semantic matches consume the item they match.
func (m *Matcher) Match(ctx context.Context, truth, extracted types.EntitySet) (Result, error) {
	gs := truth.Sorted()
	es := extracted.Sorted()
	n := m.policy.Normalizer

	gw := make(map[string]wordSet, len(gs))
	for _, g := range gs {
		gw[g] = n.Words(g)
	}
	ew := make(map[string]wordSet, len(es))
	for _, e := range es {
		ew[e] = n.Words(e)
	}

	res := Result{Used: make(map[string]bool)}
	resolved := make(map[string]types.MatchRecord, len(gs))

	// Exact.
	for _, g := range gs {
		e, ok := m.exact(g, gw[g], extracted, es, ew)
		if !ok {
			continue
		}
		resolved[g] = types.MatchRecord{Truth: g, Tier: types.TierExact, Extracted: e, Overlap: normalize.Overlap(gw[g], ew[e])}
		res.Used[e] = true
	}

	// Partial.
	for _, g := range gs {
		if _, done := resolved[g]; done {
			continue
		}
		best, bestOverlap := "", 0
		for _, e := range es {
			if res.Used[e] {
				continue
			}
			ov := normalize.Overlap(gw[g], ew[e])
			if ov >= m.policy.MinWordOverlap && ov > bestOverlap {
				best, bestOverlap = e, ov
			}
		}
		if best == "" {
			continue
		}
		resolved[g] = types.MatchRecord{Truth: g, Tier: types.TierPartial, Extracted: best, Overlap: bestOverlap}
		res.Used[best] = true
	}

	// Semantic.
	if m.policy.TruthSimilarityThreshold > 0 {
		for _, g := range gs {
			if _, done := resolved[g]; done {
				continue
			}
			best, bestScore, err := m.closest(ctx, g, es, res.Used)
			if err != nil {
				return Result{}, err
			}
			if best == "" || bestScore < m.policy.TruthSimilarityThreshold {
				continue
			}
			resolved[g] = types.MatchRecord{Truth: g, Tier: types.TierSemantic, Extracted: best, Score: bestScore}
			res.Used[best] = true
		}
	}

	res.Records = make([]types.MatchRecord, 0, len(gs))
	for _, g := range gs {
		rec, ok := resolved[g]
		if !ok {
			rec = types.MatchRecord{Truth: g, Tier: types.TierMissing}
		}
		switch rec.Tier {
		case types.TierExact:
			res.Positive++
		case types.TierPartial:
			res.Partial++
		case types.TierSemantic:
			res.Partial++
			res.Semantic++
		default:
			res.Missing++
		}
		m.log.Debug("resolved truth item",
			zap.String("truth", g),
			zap.String("tier", string(rec.Tier)),
			zap.String("extracted", rec.Extracted))
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// exact returns the extracted item exactly matching g. Literal equality
// wins, then the first item in lexical order satisfying the exact rule.
func (m *Matcher) exact(g string, gw wordSet, extracted types.EntitySet, es []string, ew map[string]wordSet) (string, bool) {
	if extracted.Has(g) {
		return g, true
	}
	for _, e := range es {
		switch m.policy.ExactRule {
		case types.ExactEqual:
			if normalize.Equal(ew[e], gw) {
				return e, true
			}
		default:
			if normalize.Covers(ew[e], gw) {
				return e, true
			}
		}
	}
	return "", false
}

// closest returns the unused extracted item most similar to g. Ties keep
// the lexically first item.
func (m *Matcher) closest(ctx context.Context, g string, es []string, used map[string]bool) (string, float64, error) {
	if m.embedder == nil {
		return "", 0, fmt.Errorf("semantic matching enabled without an embedder")
	}
	best, bestScore := "", 0.0
	for _, e := range es {
		if used[e] {
			continue
		}
		score, err := embed.Similarity(ctx, m.embedder, g, e)
		if err != nil {
			return "", 0, fmt.Errorf("comparing %q with %q: %w", g, e, err)
		}
		if best == "" || score > bestScore {
			best, bestScore = e, score
		}
	}
	return best, bestScore, nil
}
