package assistant

import (
	"context"
	"fmt"
	"math"

	"github.com/restaurant-agent/backend/internal/corpus"
)

// ReviewMatch is the similarity of one review to a query vector.
type ReviewMatch struct {
	ReviewID     int64
	RestaurantID int64
	Score        float64
}

// VectorIndex scores stored review embeddings against a query vector,
// restricted to the given restaurants. Scores are cosine similarities.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, restaurantIDs []int64) ([]ReviewMatch, error)
}

// MemoryIndex scans the corpus reviews in load order.
type MemoryIndex struct {
	corpus *corpus.Corpus
}

func NewMemoryIndex(c *corpus.Corpus) *MemoryIndex {
	return &MemoryIndex{corpus: c}
}

func (m *MemoryIndex) Search(ctx context.Context, query []float32, restaurantIDs []int64) ([]ReviewMatch, error) {
	if dim := m.corpus.Dimension(); dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("query vector has %d dimensions, corpus has %d", len(query), dim)
	}

	allowed := candidateSet(restaurantIDs)
	var matches []ReviewMatch
	for _, r := range m.corpus.Reviews() {
		if _, ok := allowed[r.RestaurantID]; !ok || len(r.Embedding) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches = append(matches, ReviewMatch{
			ReviewID:     r.ID,
			RestaurantID: r.RestaurantID,
			Score:        CosineSimilarity(query, r.Embedding),
		})
	}
	return matches, nil
}

// CosineSimilarity returns 0 when either vector has zero norm or the lengths
// differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EmbeddingRanker scores restaurants by the cosine similarity of their
// reviews to the embedded query.
type EmbeddingRanker struct {
	embedder    Embedder
	index       VectorIndex
	directory   *corpus.Directory
	aggregation ScoreAggregation
}

func NewEmbeddingRanker(embedder Embedder, index VectorIndex, directory *corpus.Directory, aggregation ScoreAggregation) *EmbeddingRanker {
	if aggregation == "" {
		aggregation = AggregateMax
	}
	return &EmbeddingRanker{
		embedder:    embedder,
		index:       index,
		directory:   directory,
		aggregation: aggregation,
	}
}

func (r *EmbeddingRanker) Rank(ctx context.Context, query string, candidates []int64, n int) ([]RestaurantSummary, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := r.index.Search(ctx, vec, candidates)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	allowed := candidateSet(candidates)
	acc := newScoreAccumulator(r.aggregation)
	for _, m := range matches {
		if m.Score <= 0 {
			continue
		}
		if _, ok := allowed[m.RestaurantID]; !ok {
			continue
		}
		acc.add(m.RestaurantID, m.Score)
	}

	return topN(r.directory, acc.scores(), n), nil
}
