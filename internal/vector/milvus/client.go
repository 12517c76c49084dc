package milvus

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const (
	fieldReviewID     = "review_id"
	fieldRestaurantID = "restaurant_id"
	fieldEmbedding    = "embedding"
)

// Client stores review embeddings in a Milvus collection. Vectors are
// normalized on the way in and out so the inner-product metric equals cosine
// similarity.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
	topK           int
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim, topK int) (*Client, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		topK:           topK,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Restaurant review embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldReviewID,
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     fieldRestaurantID,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(m.vectorDim),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 128)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

// Insert indexes reviews that carry an embedding; others are skipped.
func (m *Client) Insert(ctx context.Context, reviews []models.Review) (int, error) {
	var reviewIDs, restaurantIDs []int64
	var embeddings [][]float32

	for _, r := range reviews {
		if len(r.Embedding) == 0 {
			continue
		}
		if len(r.Embedding) != m.vectorDim {
			return 0, fmt.Errorf("review %d has %d dimensions, collection has %d", r.ID, len(r.Embedding), m.vectorDim)
		}
		reviewIDs = append(reviewIDs, r.ID)
		restaurantIDs = append(restaurantIDs, r.RestaurantID)
		embeddings = append(embeddings, normalize(r.Embedding))
	}

	if len(reviewIDs) == 0 {
		return 0, nil
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnInt64(fieldReviewID, reviewIDs),
		entity.NewColumnInt64(fieldRestaurantID, restaurantIDs),
		entity.NewColumnFloatVector(fieldEmbedding, m.vectorDim, embeddings),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reviews: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return 0, fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Reviews inserted into vector DB", zap.Int("count", len(reviewIDs)))
	return len(reviewIDs), nil
}

// Search returns the topK closest reviews of the given restaurants, best
// first.
func (m *Client) Search(ctx context.Context, query []float32, restaurantIDs []int64) ([]assistant.ReviewMatch, error) {
	if len(restaurantIDs) == 0 {
		return nil, nil
	}
	if len(query) != m.vectorDim {
		return nil, fmt.Errorf("query vector has %d dimensions, collection has %d", len(query), m.vectorDim)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		restaurantFilter(restaurantIDs),
		[]string{fieldReviewID, fieldRestaurantID},
		[]entity.Vector{entity.FloatVector(normalize(query))},
		fieldEmbedding,
		entity.IP,
		m.topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches, err := toMatches(results)
	if err != nil {
		return nil, err
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", m.topK),
		zap.Int("results", len(matches)),
		zap.Int("restaurants", len(restaurantIDs)),
	)
	return matches, nil
}

func restaurantFilter(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s in [%s]", fieldRestaurantID, strings.Join(parts, ","))
}

func toMatches(results []client.SearchResult) ([]assistant.ReviewMatch, error) {
	var matches []assistant.ReviewMatch
	for _, sr := range results {
		if sr.Err != nil {
			return nil, fmt.Errorf("search result error: %w", sr.Err)
		}

		reviewCol := sr.Fields.GetColumn(fieldReviewID)
		restaurantCol := sr.Fields.GetColumn(fieldRestaurantID)
		if restaurantCol == nil {
			return nil, fmt.Errorf("search result is missing %s", fieldRestaurantID)
		}

		for i := 0; i < sr.ResultCount; i++ {
			restaurantID, err := int64At(restaurantCol, i)
			if err != nil {
				return nil, err
			}

			var reviewID int64
			if reviewCol != nil {
				if reviewID, err = int64At(reviewCol, i); err != nil {
					return nil, err
				}
			}

			matches = append(matches, assistant.ReviewMatch{
				ReviewID:     reviewID,
				RestaurantID: restaurantID,
				Score:        float64(sr.Scores[i]),
			})
		}
	}
	return matches, nil
}

func int64At(col entity.Column, i int) (int64, error) {
	v, err := col.Get(i)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", col.Name(), err)
	}
	id, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("column %s holds %T, expected int64", col.Name(), v)
	}
	return id, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
