// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/entity-eval/internal/embed"
	"github.com/pdiddy/entity-eval/internal/evaluate"
	"github.com/pdiddy/entity-eval/internal/extract"
	"github.com/pdiddy/entity-eval/internal/httputil"
	"github.com/pdiddy/entity-eval/internal/records"
	"github.com/pdiddy/entity-eval/internal/results"
	"github.com/pdiddy/entity-eval/internal/secrets"
	"github.com/pdiddy/entity-eval/pkg/types"
)

const httpMaxRetries = 5

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Extract, score and store entities for every selected case",
	Long: `Evaluate loads the structured case records, runs the extraction model
over each case narrative, and scores the extracted entities against the
ground truth built from the record entity columns. Each result is written
to the results database as soon as it is computed.

Use --replay to re-score artifacts already under the artifacts directory
without calling the model; replayed rows keep the stored try count. Use
--resume to skip cases that already have a stored result.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("category", "all", "category to evaluate: people, locations, location_types, patterns, or all")
	evaluateCmd.Flags().Bool("replay", false, "score stored artifacts instead of calling the model")
	evaluateCmd.Flags().Bool("resume", false, "skip cases with a stored result")
	evaluateCmd.Flags().StringSlice("cases", nil, "comma-separated case ids to evaluate")
	evaluateCmd.Flags().Int("from", 0, "index of the first case in sorted id order")
	evaluateCmd.Flags().Int("limit", 0, "maximum number of cases (0 = all)")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	categoryFlag, _ := cmd.Flags().GetString("category")
	cats, err := parseCategories(categoryFlag)
	if err != nil {
		return err
	}
	replay, _ := cmd.Flags().GetBool("replay")
	resume, _ := cmd.Flags().GetBool("resume")
	caseIDs, _ := cmd.Flags().GetStringSlice("cases")
	from, _ := cmd.Flags().GetInt("from")
	limit, _ := cmd.Flags().GetInt("limit")

	recs, err := records.Load(cfg.Records)
	if err != nil {
		return err
	}

	store, err := results.Open(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	needModel := !replay
	needEmbedder := usesEmbeddings(cfg, cats)
	if (needModel || needEmbedder) && cfg.AI.APIKey == "" && cfg.AI.BaseURL == "" {
		return fmt.Errorf("no API key: set ai.api_key, ENTITY_EVAL_AI_API_KEY, or .secrets/%s", secrets.OpenAIAPIKey)
	}

	client := newOpenAIClient(cfg.AI)
	var limiter *rate.Limiter
	if cfg.AI.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AI.RequestsPerSecond), 1)
	}

	var driver *extract.Driver
	if replay {
		retry := cfg.Retry
		retry.MaxAttempts = 1
		driver = extract.NewDriver(&extract.ArtifactExtractor{Dir: cfg.ArtifactsDir}, retry, "", logger)
	} else {
		driver = extract.NewDriver(extract.NewOpenAIExtractor(client, cfg.AI, limiter), cfg.Retry, cfg.ArtifactsDir, logger)
	}

	var embedder *embed.CachedEmbedder
	var e embed.Embedder
	if needEmbedder {
		embedder = embed.NewCachedEmbedder(embed.NewOpenAIEmbedder(client, cfg.Embedding.Model, limiter), cfg.Embedding.CacheTTL)
		e = embedder
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ev := evaluate.New(recs, driver, e, store, cfg, logger)
	summary, err := ev.Run(ctx, evaluate.Options{
		Categories: cats,
		CaseIDs:    caseIDs,
		From:       from,
		Limit:      limit,
		Resume:     resume,
		Replay:     replay,
	}, os.Stdout)

	if embedder != nil {
		hits, misses := embedder.Stats()
		logger.Debug("embedding cache", zap.Int("hits", hits), zap.Int("misses", misses))
	}

	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d case(s) failed evaluation", summary.Failed)
	}
	return nil
}

// newOpenAIClient builds the client shared by the extractor and the
// embedder. Rate-limited responses are retried with backoff.
func newOpenAIClient(cfg types.AIConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &httputil.RetryingDoer{
		Client:     &http.Client{},
		MaxRetries: httpMaxRetries,
	}
	return openai.NewClientWithConfig(oc)
}

// parseCategories turns the --category flag into a category list. "all"
// and the empty string select every category.
func parseCategories(s string) ([]types.Category, error) {
	if s == "" || s == "all" {
		return types.AllCategories(), nil
	}
	c, err := types.ParseCategory(s)
	if err != nil {
		return nil, err
	}
	return []types.Category{c}, nil
}

// usesEmbeddings reports whether any of cats has a similarity threshold
// enabled.
func usesEmbeddings(cfg types.EvalConfig, cats []types.Category) bool {
	for _, c := range cats {
		p := cfg.CategoryPolicy(c)
		if p.TruthSimilarityThreshold > 0 || p.SourceSimilarityThreshold > 0 {
			return true
		}
	}
	return false
}
