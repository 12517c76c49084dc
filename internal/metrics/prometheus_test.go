package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	Init()
	Init()

	TurnsTotal.WithLabelValues("recommendation", "structured").Inc()
	UpstreamRequests.WithLabelValues("photon", "ok").Inc()
	RestaurantsLoaded.Set(4)

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `restaurant_agent_turns_total{intent="recommendation",outcome="structured"}`)
	assert.Contains(t, string(body), `restaurant_agent_upstream_requests_total{status="ok",upstream="photon"}`)
	assert.Contains(t, string(body), "restaurant_agent_restaurants_loaded 4")
}
