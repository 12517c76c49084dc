package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/storage/codec"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

var whitespace = regexp.MustCompile(`\s+`)

type csvTable struct {
	reader *csv.Reader
	cols   map[string]int
	line   int
}

func newCSVTable(r io.Reader, required ...string) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	return &csvTable{reader: reader, cols: cols, line: 1}, nil
}

// next returns the next record, or io.EOF.
func (t *csvTable) next() ([]string, error) {
	rec, err := t.reader.Read()
	if err != nil {
		return nil, err
	}
	t.line++
	return rec, nil
}

func (t *csvTable) get(rec []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// LoadRestaurants reads the restaurant directory CSV. Rows without a usable
// id are skipped. Non-finite or unparsable coordinates and ratings become
// nil.
func LoadRestaurants(r io.Reader) ([]models.Restaurant, error) {
	t, err := newCSVTable(r, "id", "name")
	if err != nil {
		return nil, err
	}

	var restaurants []models.Restaurant
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		id, ok := parseID(t.get(rec, "id"))
		if !ok {
			logger.Warn("Skipping restaurant without id", zap.Int("line", t.line))
			continue
		}

		restaurants = append(restaurants, models.Restaurant{
			ID:           id,
			Name:         t.get(rec, "name"),
			Location:     t.get(rec, "location"),
			Country:      t.get(rec, "country"),
			OpeningHours: t.get(rec, "opening_hours"),
			Latitude:     ParseFinite(t.get(rec, "latitude")),
			Longitude:    ParseFinite(t.get(rec, "longitude")),
			Rating:       ParseFinite(t.get(rec, "rating")),
		})
	}

	logger.Info("Restaurants loaded", zap.Int("count", len(restaurants)))
	return restaurants, nil
}

// LoadReviews reads the review CSV. The embedding column is optional and may
// use the legacy textual vector form. Review text is cleaned of markup.
func LoadReviews(r io.Reader) ([]models.Review, error) {
	t, err := newCSVTable(r, "restaurant_id", "restaurant_name")
	if err != nil {
		return nil, err
	}

	var reviews []models.Review
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		id, ok := parseID(t.get(rec, "restaurant_id"))
		if !ok {
			logger.Warn("Skipping review without restaurant id", zap.Int("line", t.line))
			continue
		}

		review := models.Review{
			RestaurantID:   id,
			RestaurantName: t.get(rec, "restaurant_name"),
			Text:           CleanReviewText(t.get(rec, "text")),
		}

		if raw := t.get(rec, "embedding"); raw != "" {
			review.Embedding, err = codec.ParseLegacyEmbedding(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", t.line, err)
			}
		}

		reviews = append(reviews, review)
	}

	logger.Info("Reviews loaded", zap.Int("count", len(reviews)))
	return reviews, nil
}

func parseID(s string) (int64, bool) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	// Exports from dataframes sometimes write integer ids as floats.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// ParseFinite returns nil for empty, unparsable, NaN or infinite input.
func ParseFinite(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// CleanReviewText strips HTML markup and collapses whitespace. Missing text
// stays empty.
func CleanReviewText(s string) string {
	if strings.EqualFold(s, "nan") {
		return ""
	}
	if strings.ContainsRune(s, '<') {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style").Remove()
			var parts []string
			collectText(doc.Selection, &parts)
			s = strings.Join(parts, " ")
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// collectText gathers text nodes so adjacent block elements do not run
// their words together.
func collectText(sel *goquery.Selection, parts *[]string) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			*parts = append(*parts, c.Text())
			return
		}
		collectText(c, parts)
	})
}
