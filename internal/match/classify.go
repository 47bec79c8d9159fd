// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/entity-eval/internal/embed"
	"github.com/pdiddy/entity-eval/internal/normalize"
	"github.com/pdiddy/entity-eval/pkg/types"
)

// Classification resolves every extracted item left unused by a Matcher.
type Classification struct {
	// Unmatched holds one entry per item that is neither used nor
	// reconfirmed, in lexical order.
	Unmatched []types.UnmatchedExtraction

	// Reconfirmed counts unused items that still match some ground-truth
	// item that was resolved through another extracted item.
	Reconfirmed int

	InText        int
	Hallucination int

	// QuoteInText and QuoteMissing count the provenance quotes of
	// Unmatched items found or not found in the source corpus.
	QuoteInText  int
	QuoteMissing int

	// ContextInText and ContextMissing count the provenance contexts (the
	// location of a location type, the explanation of a pattern) of
	// Unmatched items found or not found in the source corpus.
	ContextInText  int
	ContextMissing int

	// ContextInQuote counts provenance entries whose quote contains every
	// word of their context.
	ContextInQuote int

	// ContextSimilarity is the mean similarity between an Unmatched item
	// and its provenance contexts. Zero when no embedder is configured or
	// no context was cited.
	ContextSimilarity float64
}

// Classifier decides whether unmatched extracted items are grounded in the
// case's source text.
type Classifier struct {
	policy   Policy
	embedder embed.Embedder
	log      *zap.Logger
}

// NewClassifier returns a Classifier. The embedder may be nil when both
// similarity thresholds of the policy are zero.
func NewClassifier(policy Policy, e embed.Embedder, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{policy: policy, embedder: e, log: log}
}

// Classify resolves every item of extracted not in used. An item
// overlapping or similar to any truth item is reconfirmed. Otherwise it is
// an insert found in the text when it is a substring of the canonical
// corpus or is similar enough to one of its sentences, and a
// hallucination when neither holds.
func (c *Classifier) Classify(ctx context.Context, truth types.EntitySet, extracted *types.ExtractedSet, used map[string]bool, corpus string) (Classification, error) {
	var out Classification
	if extracted.Len() == 0 {
		return out, nil
	}

	n := c.policy.Normalizer
	canonCorpus := n.Canonical(corpus)
	gs := truth.Sorted()

	var (
		sentences []string
		simSum    float64
		simN      int
	)
	if c.policy.SourceSimilarityThreshold > 0 {
		sentences = normalize.SplitSentences(corpus)
	}

	for _, e := range extracted.Items.Sorted() {
		if used[e] {
			continue
		}

		ok, err := c.reconfirm(ctx, e, gs)
		if err != nil {
			return Classification{}, err
		}
		if ok {
			out.Reconfirmed++
			c.log.Debug("reconfirmed extracted item", zap.String("item", e))
			continue
		}

		u := types.UnmatchedExtraction{Item: e, Class: types.Hallucination}
		switch {
		case normalize.Contains(canonCorpus, e):
			u.Class = types.InsertButInText
			u.Evidence = e
		case len(sentences) > 0:
			sentence, score, err := c.bestSentence(ctx, e, sentences)
			if err != nil {
				return Classification{}, err
			}
			u.Evidence, u.Score = sentence, score
			if score >= c.policy.SourceSimilarityThreshold {
				u.Class = types.InsertButInText
			}
		}

		if u.Class == types.InsertButInText {
			out.InText++
		} else {
			out.Hallucination++
		}
		for _, p := range extracted.Provenance[e] {
			c.checkProvenance(&out, p, canonCorpus)
			if p.Context == "" || c.embedder == nil {
				continue
			}
			score, err := embed.Similarity(ctx, c.embedder, e, p.Context)
			if err != nil {
				return Classification{}, fmt.Errorf("comparing %q with its context: %w", e, err)
			}
			simSum += score
			simN++
		}

		c.log.Debug("classified extracted item",
			zap.String("item", e),
			zap.String("class", string(u.Class)),
			zap.Float64("score", u.Score))
		out.Unmatched = append(out.Unmatched, u)
	}
	if simN > 0 {
		out.ContextSimilarity = simSum / float64(simN)
	}
	return out, nil
}

func (c *Classifier) reconfirm(ctx context.Context, e string, gs []string) (bool, error) {
	n := c.policy.Normalizer
	ew := n.Words(e)
	for _, g := range gs {
		if normalize.Overlap(ew, n.Words(g)) >= c.policy.MinWordOverlap {
			return true, nil
		}
	}

	if c.policy.TruthSimilarityThreshold <= 0 {
		return false, nil
	}
	if c.embedder == nil {
		return false, fmt.Errorf("similarity check enabled without an embedder")
	}
	for _, g := range gs {
		score, err := embed.Similarity(ctx, c.embedder, e, g)
		if err != nil {
			return false, fmt.Errorf("reconfirming %q: %w", e, err)
		}
		if score >= c.policy.TruthSimilarityThreshold {
			return true, nil
		}
	}
	return false, nil
}

// bestSentence returns the sentence most similar to e. Ties keep the
// earliest sentence.
func (c *Classifier) bestSentence(ctx context.Context, e string, sentences []string) (string, float64, error) {
	if c.embedder == nil {
		return "", 0, fmt.Errorf("sentence check enabled without an embedder")
	}
	best, bestScore := "", 0.0
	for _, s := range sentences {
		score, err := embed.Similarity(ctx, c.embedder, e, s)
		if err != nil {
			return "", 0, fmt.Errorf("comparing %q with source sentence: %w", e, err)
		}
		if best == "" || score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, bestScore, nil
}

// checkProvenance records whether the quote and context cited for an item
// occur in the canonical corpus and whether the quote mentions the context.
func (c *Classifier) checkProvenance(out *Classification, p types.Provenance, canonCorpus string) {
	n := c.policy.Normalizer
	quote := n.Canonical(p.Quote)
	cited := n.Canonical(p.Context)

	if quote != "" {
		if normalize.Contains(canonCorpus, quote) {
			out.QuoteInText++
		} else {
			out.QuoteMissing++
		}
	}
	if cited != "" {
		if normalize.Contains(canonCorpus, cited) {
			out.ContextInText++
		} else {
			out.ContextMissing++
		}
	}
	if quote != "" && cited != "" && normalize.Covers(n.Words(quote), n.Words(cited)) {
		out.ContextInQuote++
	}
}
