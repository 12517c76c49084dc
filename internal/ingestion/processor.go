package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/restaurant-agent/backend/internal/corpus"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

type Store interface {
	UpsertRestaurant(ctx context.Context, r *models.Restaurant) error
	DeleteReviews(ctx context.Context) error
	InsertReview(ctx context.Context, review *models.Review) error
}

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink receives the stored reviews for similarity search.
type VectorSink interface {
	Insert(ctx context.Context, reviews []models.Review) (int, error)
}

type Options struct {
	BatchSize   int
	Concurrency int
	// ReembedAll recomputes every embedding, e.g. after switching models.
	ReembedAll bool
}

type Processor struct {
	store    Store
	embedder BatchEmbedder
	vectors  VectorSink
	opts     Options
}

type Result struct {
	Restaurants int
	Reviews     int
	Embedded    int
	Indexed     int
}

// NewProcessor builds an importer. embedder and vectors may be nil; without an
// embedder, reviews missing a vector are stored without one.
func NewProcessor(store Store, embedder BatchEmbedder, vectors VectorSink, opts Options) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Processor{store: store, embedder: embedder, vectors: vectors, opts: opts}
}

// Import replaces the stored reviews and upserts the restaurants. Restaurant
// order is preserved as directory order.
func (p *Processor) Import(ctx context.Context, restaurants []models.Restaurant, reviews []models.Review) (*Result, error) {
	result := &Result{}

	embedded, err := p.embedMissing(ctx, reviews)
	if err != nil {
		return nil, err
	}
	result.Embedded = embedded

	if _, err := corpus.New(restaurants, reviews); err != nil {
		return nil, fmt.Errorf("refusing to import: %w", err)
	}

	for i := range restaurants {
		if err := p.store.UpsertRestaurant(ctx, &restaurants[i]); err != nil {
			return nil, err
		}
		result.Restaurants++
	}

	if err := p.store.DeleteReviews(ctx); err != nil {
		return nil, err
	}
	for i := range reviews {
		if err := p.store.InsertReview(ctx, &reviews[i]); err != nil {
			return nil, err
		}
		result.Reviews++
	}

	if p.vectors != nil {
		indexed, err := p.vectors.Insert(ctx, reviews)
		if err != nil {
			return nil, fmt.Errorf("failed to index reviews: %w", err)
		}
		result.Indexed = indexed
	}

	logger.Info("Import completed",
		zap.Int("restaurants", result.Restaurants),
		zap.Int("reviews", result.Reviews),
		zap.Int("embedded", result.Embedded),
		zap.Int("indexed", result.Indexed),
	)
	return result, nil
}

// embedMissing fills in embeddings in parallel batches. Each batch writes to
// its own slice of reviews, so no locking is needed.
func (p *Processor) embedMissing(ctx context.Context, reviews []models.Review) (int, error) {
	var pending []int
	for i, r := range reviews {
		if p.opts.ReembedAll || len(r.Embedding) == 0 {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if p.embedder == nil {
		logger.Warn("No embedder configured, reviews stored without embeddings", zap.Int("count", len(pending)))
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for start := 0; start < len(pending); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, idx := range batch {
				texts[i] = reviewDocument(reviews[idx])
			}

			vecs, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed reviews: %w", err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vecs), len(batch))
			}

			for i, idx := range batch {
				reviews[idx].Embedding = vecs[i]
			}
			logger.Debug("Review batch embedded", zap.Int("size", len(batch)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// reviewDocument is the text embedded for a review; the restaurant name
// gives empty reviews something to anchor on.
func reviewDocument(r models.Review) string {
	if r.Text == "" {
		return r.RestaurantName
	}
	return r.RestaurantName + ": " + r.Text
}
