package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/internal/storage/models"
)

func testData() ([]models.Restaurant, []models.Review) {
	restaurants := []models.Restaurant{
		{ID: 45, Name: "Napoli Slice"},
		{ID: 12, Name: "Luigi's"},
	}
	reviews := []models.Review{
		{ID: 1, RestaurantID: 12, RestaurantName: "Luigi's", Text: "pasta", Embedding: []float32{1, 0}},
		{ID: 2, RestaurantID: 45, RestaurantName: "Napoli Slice", Text: "pizza", Embedding: []float32{0, 1}},
		{ID: 3, RestaurantID: 12, RestaurantName: "luigi's", Text: "", Embedding: []float32{0.5, 0.5}},
		{ID: 4, RestaurantID: 77, RestaurantName: "Ghost Diner", Text: "gone"},
	}
	return restaurants, reviews
}

func TestNew_IndexesReviews(t *testing.T) {
	c, err := New(testData())
	require.NoError(t, err)

	assert.Equal(t, 2, c.Dimension())
	assert.Len(t, c.ReviewsFor(12), 2)
	assert.Len(t, c.ReviewsByName("LUIGI'S"), 2)
	assert.Empty(t, c.ReviewsByName("Nowhere"))
	assert.Equal(t, []int64{45, 12}, c.Directory().IDs())
}

func TestNew_NamesFollowDirectoryOrder(t *testing.T) {
	c, err := New(testData())
	require.NoError(t, err)

	assert.Equal(t, []string{"Napoli Slice", "Luigi's", "Ghost Diner"}, c.Names())
}

func TestNew_RejectsMixedDimensions(t *testing.T) {
	restaurants, reviews := testData()
	reviews = append(reviews, models.Review{ID: 9, RestaurantID: 45, RestaurantName: "Napoli Slice", Embedding: []float32{1, 2, 3}})

	_, err := New(restaurants, reviews)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRestaurantByName(t *testing.T) {
	c, err := New(testData())
	require.NoError(t, err)

	r, ok := c.RestaurantByName("luigi's")
	require.True(t, ok)
	assert.Equal(t, int64(12), r.ID)

	_, ok = c.RestaurantByName("Ghost Diner")
	assert.False(t, ok)
}

func TestDirectory_DuplicateIDKeepsFirstPosition(t *testing.T) {
	d := NewDirectory([]models.Restaurant{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 1, Name: "A2"}})

	assert.Equal(t, []int64{1, 2}, d.IDs())
	r, _ := d.Get(1)
	assert.Equal(t, "A2", r.Name)
	assert.Equal(t, 1, d.Position(2))
	assert.Equal(t, -1, d.Position(3))
}
