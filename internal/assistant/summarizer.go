package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/corpus"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

type SummaryConfig struct {
	MaxInputChars int
	MinLength     int
	MaxLength     int
}

// DetailSummarizer condenses a restaurant's reviews into a short description.
type DetailSummarizer struct {
	corpus     *corpus.Corpus
	capability TextSummarizer
	cfg        SummaryConfig
}

func NewDetailSummarizer(c *corpus.Corpus, capability TextSummarizer, cfg SummaryConfig) *DetailSummarizer {
	return &DetailSummarizer{corpus: c, capability: capability, cfg: cfg}
}

// Summarize returns false when the restaurant has no reviews or the
// capability could not summarize them. The capability is not called for a
// restaurant without reviews.
func (s *DetailSummarizer) Summarize(ctx context.Context, name string) (string, bool) {
	return s.SummarizeReviews(ctx, name, s.corpus.ReviewsByName(name))
}

// SummarizeReviews is Summarize over reviews the caller already resolved.
func (s *DetailSummarizer) SummarizeReviews(ctx context.Context, name string, reviews []models.Review) (string, bool) {
	if len(reviews) == 0 {
		return "", false
	}

	texts := make([]string, len(reviews))
	for i, r := range reviews {
		texts[i] = r.Text
	}
	body := truncateRunes(strings.Join(texts, "\n"), s.cfg.MaxInputChars)
	input := fmt.Sprintf("Information about the restaurant %s:\n%s", name, body)

	summary, err := s.capability.Summarize(ctx, input, s.cfg.MinLength, s.cfg.MaxLength)
	if err != nil {
		logger.Warn("Summarization failed",
			zap.String("restaurant", name),
			zap.Int("input_chars", len(input)),
			zap.Error(err),
		)
		return "", false
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", false
	}
	return summary, true
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
