package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/pkg/circuitbreaker"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const MinQueryLength = 3

var ErrQueryTooShort = errors.New("query too short")

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Feature is one Photon search hit. Properties are passed through untouched.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type featureCollection struct {
	Features []Feature `json:"features"`
}

type Config struct {
	BaseURL string
	Lang    string
	Timeout time.Duration
	Breaker *circuitbreaker.Breaker
}

// Client forward-geocodes free text through a Photon endpoint.
type Client struct {
	baseURL    string
	lang       string
	httpClient *http.Client
	cb         *circuitbreaker.Breaker
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		lang:       cfg.Lang,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cfg.Breaker,
	}
}

// Search returns the features matching q. Queries shorter than
// MinQueryLength are rejected without contacting the upstream.
func (c *Client) Search(ctx context.Context, q string) ([]Feature, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return nil, ErrQueryTooShort
	}

	var features []Feature
	call := func(ctx context.Context) error {
		var err error
		features, err = c.search(ctx, q)
		return err
	}

	var err error
	if c.cb != nil {
		err = c.cb.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamRequests.WithLabelValues("photon", status).Inc()

	if err != nil {
		logger.Warn("Geocoding failed", zap.String("query", q), zap.Error(err))
		return nil, err
	}

	logger.Debug("Geocoding completed", zap.String("query", q), zap.Int("features", len(features)))
	return features, nil
}

func (c *Client) search(ctx context.Context, q string) ([]Feature, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("lang", c.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if fc.Features == nil {
		fc.Features = []Feature{}
	}
	return fc.Features, nil
}
