package models

import "time"

// Restaurant is the structured metadata the directory serves. Coordinates and
// rating are nil when the source value was missing or not a finite number.
type Restaurant struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	Country      string   `json:"country"`
	OpeningHours string   `json:"opening_hours,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
}

type Review struct {
	ID             int64
	RestaurantID   int64
	RestaurantName string
	Text           string
	Embedding      []float32
}

type TurnRecord struct {
	ID                  string    `json:"id"`
	SessionID           string    `json:"session_id"`
	Message             string    `json:"message"`
	Intent              string    `json:"intent"`
	Response            string    `json:"response"`
	RecommendationCount int       `json:"recommendation_count"`
	LatencyMS           int       `json:"latency_ms"`
	CreatedAt           time.Time `json:"created_at"`
}
