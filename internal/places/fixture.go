package places

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/geo"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

// StaticProvider serves a fixed set of places filtered by great-circle
// distance, nearest first.
type StaticProvider struct {
	places []Place
}

func NewStaticProvider(places []Place) *StaticProvider {
	cp := make([]Place, len(places))
	copy(cp, places)
	for i := range cp {
		sanitize(&cp[i])
	}
	return &StaticProvider{places: cp}
}

// NewFixtureProvider loads a JSON array of places, the same shape the
// Google provider returns.
func NewFixtureProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read places fixture: %w", err)
	}

	var places []Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("failed to parse places fixture %s: %w", path, err)
	}

	logger.Info("Places fixture loaded", zap.String("path", path), zap.Int("places", len(places)))
	return NewStaticProvider(places), nil
}

// NewDirectoryProvider serves the restaurants of the local dataset that
// have coordinates.
func NewDirectoryProvider(restaurants []models.Restaurant) *StaticProvider {
	places := make([]Place, 0, len(restaurants))
	for _, r := range restaurants {
		if p, ok := FromRestaurant(r); ok {
			places = append(places, p)
		}
	}
	return NewStaticProvider(places)
}

func (s *StaticProvider) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Place, error) {
	radiusM, err := checkRequest(lat, lon, radiusM)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := geo.WithinRadius(s.places, lat, lon, radiusM)
	sort.SliceStable(found, func(i, j int) bool {
		ilat, ilon, _ := found[i].Coordinates()
		jlat, jlon, _ := found[j].Coordinates()
		return geo.Haversine(lat, lon, ilat, ilon) < geo.Haversine(lat, lon, jlat, jlon)
	})
	return found, nil
}
