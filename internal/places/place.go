package places

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/restaurant-agent/backend/internal/geo"
	"github.com/restaurant-agent/backend/internal/storage/models"
)

const DefaultRadiusM = 500.0

var ErrInvalidCoordinates = errors.New("invalid coordinates")

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type AuthorAttribution struct {
	DisplayName string `json:"displayName,omitempty"`
	URI         string `json:"uri,omitempty"`
}

type PlaceReview struct {
	Rating                         *float64           `json:"rating,omitempty"`
	Text                           *LocalizedText     `json:"text,omitempty"`
	AuthorAttribution              *AuthorAttribution `json:"authorAttribution,omitempty"`
	RelativePublishTimeDescription string             `json:"relativePublishTimeDescription,omitempty"`
	PublishTime                    string             `json:"publishTime,omitempty"`
}

// Place mirrors the Places API v1 place shape so both providers serve the
// same JSON. RestaurantID links a place to the local directory when known.
type Place struct {
	ID               string        `json:"id"`
	DisplayName      LocalizedText `json:"displayName"`
	FormattedAddress string        `json:"formattedAddress,omitempty"`
	Location         *LatLng       `json:"location,omitempty"`
	Rating           *float64      `json:"rating,omitempty"`
	PrimaryType      string        `json:"primaryType,omitempty"`
	GoogleMapsURI    string        `json:"googleMapsUri,omitempty"`
	Reviews          []PlaceReview `json:"reviews,omitempty"`
	RestaurantID     int64         `json:"restaurantId,omitempty"`
}

func (p Place) Coordinates() (float64, float64, bool) {
	if p.Location == nil {
		return 0, 0, false
	}
	return p.Location.Latitude, p.Location.Longitude, true
}

// Provider finds restaurants around a point. radiusM <= 0 means
// DefaultRadiusM.
type Provider interface {
	Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Place, error)
}

func sanitize(p *Place) {
	if p.Rating != nil && (math.IsNaN(*p.Rating) || math.IsInf(*p.Rating, 0)) {
		p.Rating = nil
	}
	for i := range p.Reviews {
		r := p.Reviews[i].Rating
		if r != nil && (math.IsNaN(*r) || math.IsInf(*r, 0)) {
			p.Reviews[i].Rating = nil
		}
	}
}

func checkRequest(lat, lon, radiusM float64) (float64, error) {
	if !geo.ValidCoordinates(lat, lon) {
		return 0, ErrInvalidCoordinates
	}
	if radiusM <= 0 || math.IsNaN(radiusM) || math.IsInf(radiusM, 0) {
		radiusM = DefaultRadiusM
	}
	return radiusM, nil
}

// FromRestaurant converts a directory record. ok is false when the
// restaurant has no coordinates.
func FromRestaurant(r models.Restaurant) (Place, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return Place{}, false
	}
	address := r.Location
	if r.Country != "" {
		if address != "" {
			address += ", "
		}
		address += r.Country
	}
	p := Place{
		ID:               strconv.FormatInt(r.ID, 10),
		DisplayName:      LocalizedText{Text: r.Name},
		FormattedAddress: address,
		Location:         &LatLng{Latitude: *r.Latitude, Longitude: *r.Longitude},
		Rating:           r.Rating,
		PrimaryType:      "restaurant",
		RestaurantID:     r.ID,
	}
	sanitize(&p)
	return p, true
}
