package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/pkg/circuitbreaker"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const DefaultGoogleURL = "https://places.googleapis.com/v1/places:searchNearby"

var fieldMask = strings.Join([]string{
	"places.id",
	"places.formattedAddress",
	"places.location",
	"places.rating",
	"places.primaryType",
	"places.googleMapsUri",
	"places.displayName",
	"places.reviews",
}, ",")

type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Breaker *circuitbreaker.Breaker
}

// GoogleProvider queries the Places API v1 searchNearby endpoint for
// restaurants.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.Breaker
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GoogleProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cfg.Breaker,
	}
}

type searchNearbyRequest struct {
	IncludedPrimaryTypes []string            `json:"includedPrimaryTypes"`
	LocationRestriction  locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type searchNearbyResponse struct {
	Places []Place `json:"places"`
}

func (g *GoogleProvider) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Place, error) {
	radiusM, err := checkRequest(lat, lon, radiusM)
	if err != nil {
		return nil, err
	}

	var places []Place
	call := func(ctx context.Context) error {
		var err error
		places, err = g.searchNearby(ctx, lat, lon, radiusM)
		return err
	}
	if g.cb != nil {
		err = g.cb.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamRequests.WithLabelValues("google_places", status).Inc()

	if err != nil {
		logger.Warn("Nearby search failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Debug("Nearby search completed", zap.Int("places", len(places)))
	return places, nil
}

func (g *GoogleProvider) searchNearby(ctx context.Context, lat, lon, radiusM float64) ([]Place, error) {
	body, err := json.Marshal(searchNearbyRequest{
		IncludedPrimaryTypes: []string{"restaurant"},
		LocationRestriction: locationRestriction{
			Circle: circle{Center: LatLng{Latitude: lat, Longitude: lon}, Radius: radiusM},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("places API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out searchNearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	places := out.Places
	if places == nil {
		places = []Place{}
	}
	for i := range places {
		sanitize(&places[i])
	}
	return places, nil
}
