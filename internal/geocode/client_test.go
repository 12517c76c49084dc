package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/pkg/circuitbreaker"
)

const photonBody = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[12.4964,41.9028]},
  "properties":{"name":"Roma","country":"Italy","osm_id":41485}}]}`

func TestSearch(t *testing.T) {
	var gotQuery, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotLang = r.URL.Query().Get("lang")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(photonBody))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	features, err := c.Search(context.Background(), "  Rome ")
	require.NoError(t, err)

	assert.Equal(t, "Rome", gotQuery)
	assert.Equal(t, "en", gotLang)
	require.Len(t, features, 1)
	assert.Equal(t, "Roma", features[0].Properties["name"])
	assert.Equal(t, []float64{12.4964, 41.9028}, features[0].Geometry.Coordinates)
}

func TestSearch_TooShortSkipsUpstream(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	for _, q := range []string{"", "ab", "  x  ", "日本"} {
		_, err := c.Search(context.Background(), q)
		assert.ErrorIs(t, err, ErrQueryTooShort, q)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSearch_EmptyFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"FeatureCollection"}`))
	}))
	defer srv.Close()

	features, err := NewClient(Config{BaseURL: srv.URL}).Search(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.NotNil(t, features)
	assert.Empty(t, features)
}

func TestSearch_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Search(context.Background(), "Rome")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSearch_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := circuitbreaker.New("photon", circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	c := NewClient(Config{BaseURL: srv.URL, Breaker: cb})

	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), "Rome")
		require.Error(t, err)
	}
	_, err := c.Search(context.Background(), "Rome")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
