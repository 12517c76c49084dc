package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restaurant_agent_turn_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"intent"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurant_agent_turns_total",
			Help: "Total chat turns by resolved intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	CapabilityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restaurant_agent_capability_duration_seconds",
			Help:    "Model capability call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"capability", "status"},
	)

	RecommendationsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "restaurant_agent_recommendations_returned",
			Help:    "Number of restaurants returned per recommendation turn",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	FallbackResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurant_agent_fallback_responses_total",
			Help: "Turns answered with a fixed fallback message",
		},
		[]string{"reason"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurant_agent_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurant_agent_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restaurant_agent_upstream_requests_total",
			Help: "Requests to geocoding and places collaborators",
		},
		[]string{"upstream", "status"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "restaurant_agent_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "restaurant_agent_active_sessions",
			Help: "Sessions with conversation state held in memory",
		},
	)

	ReviewsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "restaurant_agent_reviews_loaded",
			Help: "Reviews in the loaded corpus",
		},
	)

	RestaurantsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "restaurant_agent_restaurants_loaded",
			Help: "Restaurants in the loaded directory",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			TurnDuration,
			TurnsTotal,
			CapabilityDuration,
			RecommendationsReturned,
			FallbackResponses,
			CacheHits,
			CacheMisses,
			UpstreamRequests,
			CircuitState,
			ActiveSessions,
			ReviewsLoaded,
			RestaurantsLoaded,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
