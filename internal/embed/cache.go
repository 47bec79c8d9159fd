// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCacheTTL = time.Hour

// CachedEmbedder memoises the vectors of another Embedder by text.
type CachedEmbedder struct {
	inner Embedder
	cache *gocache.Cache

	hits   int
	misses int
}

// NewCachedEmbedder wraps inner. A zero ttl uses one hour.
func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedEmbedder{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Embed returns the cached vector of text, computing it on a miss. Errors
// are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits++
		return v.([]float32), nil
	}
	c.misses++

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, gocache.DefaultExpiration)
	return vec, nil
}

// Stats returns the hit and miss counts since creation.
func (c *CachedEmbedder) Stats() (hits, misses int) {
	return c.hits, c.misses
}
