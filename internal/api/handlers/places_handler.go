package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/geocode"
	"github.com/restaurant-agent/backend/internal/places"
	"github.com/restaurant-agent/backend/pkg/logger"
)

type Geocoder interface {
	Search(ctx context.Context, q string) ([]geocode.Feature, error)
}

type PlacesHandler struct {
	geocoder Geocoder
	places   places.Provider
	radiusM  float64
}

func NewPlacesHandler(geocoder Geocoder, provider places.Provider, radiusM float64) *PlacesHandler {
	if radiusM <= 0 {
		radiusM = places.DefaultRadiusM
	}
	return &PlacesHandler{
		geocoder: geocoder,
		places:   provider,
		radiusM:  radiusM,
	}
}

// Search geocodes ?q= and returns the matching features.
func (h *PlacesHandler) Search(c *fiber.Ctx) error {
	features, err := h.geocoder.Search(c.UserContext(), c.Query("q"))
	if errors.Is(err, geocode.ErrQueryTooShort) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query too short",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(features)
}

// Nearby returns restaurants around ?lat=&lon=, optionally within ?radius=
// meters.
func (h *PlacesHandler) Nearby(c *fiber.Ctx) error {
	rawLat, rawLon := c.Query("lat"), c.Query("lon")
	if rawLat == "" || rawLon == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Latitude and longitude are required",
		})
	}

	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lon, errLon := strconv.ParseFloat(rawLon, 64)
	if errLat != nil || errLon != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Latitude and longitude must be numbers",
		})
	}

	radius := h.radiusM
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "radius must be a positive number",
			})
		}
		radius = r
	}

	found, err := h.places.Nearby(c.UserContext(), lat, lon, radius)
	if errors.Is(err, places.ErrInvalidCoordinates) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Latitude or longitude out of range",
		})
	}
	if err != nil {
		logger.Error("Nearby search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(found)
}
