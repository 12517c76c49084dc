package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/pkg/logger"
	"github.com/restaurant-agent/backend/pkg/utils"
)

type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// CachedEmbedder memoizes query embeddings. Cache errors are logged and the
// call goes to the underlying embedder.
type CachedEmbedder struct {
	next      assistant.Embedder
	cache     EmbeddingCache
	namespace string
	ttl       time.Duration
}

// NewCachedEmbedder keys entries by namespace so vectors from different
// models never mix.
func NewCachedEmbedder(next assistant.Embedder, cache EmbeddingCache, namespace string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, namespace: namespace, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := utils.HashText(c.namespace, text)

	vec, ok, err := c.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
	}
	if ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return vec, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	vec, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetEmbedding(ctx, key, vec, c.ttl); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}
	return vec, nil
}
