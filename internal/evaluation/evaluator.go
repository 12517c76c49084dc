package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/pkg/logger"
)

// Evaluator measures recommendation quality offline against a labeled set of
// preference queries, and optionally intent accuracy.
type Evaluator struct {
	ranker     assistant.Ranker
	classifier *assistant.IntentClassifier
	topN       int
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

// DatasetItem is one labeled query. Relevant lists the restaurants a good
// answer should contain; Intent is the expected intent name, if labeled.
type DatasetItem struct {
	Query      string  `json:"query"`
	Candidates []int64 `json:"candidates"`
	Relevant   []int64 `json:"relevant"`
	Intent     string  `json:"intent,omitempty"`
	Category   string  `json:"category,omitempty"`
}

type ItemResult struct {
	Query          string  `json:"query"`
	Returned       []int64 `json:"returned"`
	Hit            bool    `json:"hit"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
	Precision      float64 `json:"precision"`
	Intent         string  `json:"intent,omitempty"`
	IntentCorrect  bool    `json:"intent_correct,omitempty"`
	Error          string  `json:"error,omitempty"`
}

type Report struct {
	TotalQueries   int                 `json:"total_queries"`
	Failed         int                 `json:"failed"`
	HitRate        float64             `json:"hit_rate"`
	MRR            float64             `json:"mrr"`
	MeanPrecision  float64             `json:"mean_precision"`
	IntentLabeled  int                 `json:"intent_labeled"`
	IntentAccuracy float64             `json:"intent_accuracy"`
	ByCategory     map[string]*Summary `json:"by_category,omitempty"`
	Items          []ItemResult        `json:"items"`
}

type Summary struct {
	Queries int     `json:"queries"`
	HitRate float64 `json:"hit_rate"`
	MRR     float64 `json:"mrr"`
}

// NewEvaluator builds an evaluator. classifier may be nil to skip intent
// scoring.
func NewEvaluator(ranker assistant.Ranker, classifier *assistant.IntentClassifier, topN int) *Evaluator {
	if topN <= 0 {
		topN = 3
	}
	return &Evaluator{
		ranker:     ranker,
		classifier: classifier,
		topN:       topN,
	}
}

func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) ItemResult {
	result := ItemResult{Query: item.Query, Returned: []int64{}}

	recs, err := e.ranker.Rank(ctx, item.Query, item.Candidates, e.topN)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	relevant := make(map[int64]bool, len(item.Relevant))
	for _, id := range item.Relevant {
		relevant[id] = true
	}

	hits := 0
	for i, r := range recs {
		result.Returned = append(result.Returned, r.ID)
		if !relevant[r.ID] {
			continue
		}
		hits++
		if result.ReciprocalRank == 0 {
			result.ReciprocalRank = 1 / float64(i+1)
		}
	}
	result.Hit = hits > 0
	if len(recs) > 0 {
		result.Precision = float64(hits) / float64(len(recs))
	}

	if e.classifier != nil && item.Intent != "" {
		label, _, err := e.classifier.Classify(ctx, item.Query)
		if err != nil {
			logger.Warn("Intent classification failed", zap.String("query", item.Query), zap.Error(err))
		} else {
			result.Intent = label
			result.IntentCorrect = label == item.Intent
		}
	}

	return result
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{
		TotalQueries: len(dataset.Items),
		ByCategory:   make(map[string]*Summary),
		Items:        make([]ItemResult, 0, len(dataset.Items)),
	}

	var hits, rr, precision float64
	intentCorrect := 0

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		result := e.EvaluateItem(ctx, item)
		report.Items = append(report.Items, result)

		if result.Error != "" {
			report.Failed++
		}
		if result.Hit {
			hits++
		}
		rr += result.ReciprocalRank
		precision += result.Precision

		if item.Intent != "" && e.classifier != nil {
			report.IntentLabeled++
			if result.IntentCorrect {
				intentCorrect++
			}
		}

		if item.Category != "" {
			s, ok := report.ByCategory[item.Category]
			if !ok {
				s = &Summary{}
				report.ByCategory[item.Category] = s
			}
			s.Queries++
			if result.Hit {
				s.HitRate++
			}
			s.MRR += result.ReciprocalRank
		}
	}

	if report.TotalQueries > 0 {
		n := float64(report.TotalQueries)
		report.HitRate = hits / n
		report.MRR = rr / n
		report.MeanPrecision = precision / n
	}
	if report.IntentLabeled > 0 {
		report.IntentAccuracy = float64(intentCorrect) / float64(report.IntentLabeled)
	}
	for _, s := range report.ByCategory {
		s.HitRate /= float64(s.Queries)
		s.MRR /= float64(s.Queries)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("failed", report.Failed),
		zap.Float64("hit_rate", report.HitRate),
		zap.Float64("mrr", report.MRR),
	)

	return report, nil
}

func LoadDataset(r io.Reader) (*Dataset, error) {
	var dataset Dataset
	if err := json.NewDecoder(r).Decode(&dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

func GenerateReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Queries: %d (failed: %d)

Ranking:
- Hit rate: %.1f%%
- MRR: %.3f
- Mean precision: %.3f

Intent accuracy: %.1f%% over %d labeled queries
`,
		report.TotalQueries, report.Failed,
		report.HitRate*100,
		report.MRR,
		report.MeanPrecision,
		report.IntentAccuracy*100, report.IntentLabeled,
	)
}
