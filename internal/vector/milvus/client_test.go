package milvus

import (
	"errors"
	"math"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/internal/assistant"
)

func TestRestaurantFilter(t *testing.T) {
	assert.Equal(t, "restaurant_id in [12,45,91]", restaurantFilter([]int64{12, 45, 91}))
}

func TestNormalize(t *testing.T) {
	got := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	var norm float64
	for _, x := range normalize([]float32{1, 2, 3}) {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
}

func TestToMatches(t *testing.T) {
	sr := client.SearchResult{
		ResultCount: 2,
		Scores:      []float32{0.9, 0.4},
	}
	sr.Fields = append(sr.Fields,
		entity.NewColumnInt64(fieldReviewID, []int64{2, 1}),
		entity.NewColumnInt64(fieldRestaurantID, []int64{45, 12}),
	)

	got, err := toMatches([]client.SearchResult{sr})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, assistant.ReviewMatch{ReviewID: 2, RestaurantID: 45, Score: float64(float32(0.9))}, got[0])
	assert.Equal(t, int64(12), got[1].RestaurantID)
}

func TestToMatches_Errors(t *testing.T) {
	_, err := toMatches([]client.SearchResult{{Err: errors.New("shard unavailable")}})
	assert.Error(t, err)

	sr := client.SearchResult{ResultCount: 1, Scores: []float32{0.5}}
	sr.Fields = append(sr.Fields, entity.NewColumnVarChar(fieldRestaurantID, []string{"45"}))
	_, err = toMatches([]client.SearchResult{sr})
	assert.Error(t, err)
}
