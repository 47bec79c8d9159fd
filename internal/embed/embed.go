// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed provides text embeddings and cosine similarity for the
// semantic matching tiers.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Embedder turns text into a vector. Implementations must return vectors of
// a fixed length for a given model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Similarity embeds a and b and returns their cosine similarity.
func Similarity(ctx context.Context, e Embedder, a, b string) (float64, error) {
	va, err := e.Embed(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("embedding %q: %w", a, err)
	}
	vb, err := e.Embed(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("embedding %q: %w", b, err)
	}
	return CosineSimilarity(va, vb), nil
}

// CosineSimilarity returns (a · b) / (|a| |b|). It returns 0 for empty
// vectors, vectors of different lengths and zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, ma, mb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		ma += x * x
		mb += y * y
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
}

// NewOpenAIEmbedder returns an embedder using model. A nil limiter disables
// throttling.
func NewOpenAIEmbedder(client *openai.Client, model string, limiter *rate.Limiter) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client:  client,
		model:   openai.EmbeddingModel(model),
		limiter: limiter,
	}
}

// Embed returns the embedding of text. Blank text embeds to a nil vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned for model %s", e.model)
	}
	return resp.Data[0].Embedding, nil
}
