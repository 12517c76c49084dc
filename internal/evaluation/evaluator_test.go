package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/internal/assistant"
)

type tableRanker map[string][]int64

func (t tableRanker) Rank(_ context.Context, query string, candidates []int64, n int) ([]assistant.RestaurantSummary, error) {
	if len(candidates) == 0 {
		return nil, assistant.ErrNoCandidates
	}
	ids := t[query]
	if len(ids) > n {
		ids = ids[:n]
	}
	out := make([]assistant.RestaurantSummary, len(ids))
	for i, id := range ids {
		out[i] = assistant.RestaurantSummary{ID: id}
	}
	return out, nil
}

type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, text string, _ []string) ([]assistant.LabelScore, error) {
	if strings.Contains(text, "hours") {
		return []assistant.LabelScore{{Label: "details", Score: 0.8}}, nil
	}
	return []assistant.LabelScore{{Label: "recommendation", Score: 0.9}}, nil
}

func TestRunDatasetEvaluation(t *testing.T) {
	ranker := tableRanker{
		"pizza":   {45, 12, 7},
		"noodles": {7, 91},
		"sushi":   {12},
	}
	classifier := assistant.NewIntentClassifier(keywordClassifier{}, assistant.BasicLabels)
	e := NewEvaluator(ranker, classifier, 3)

	dataset, err := LoadDataset(strings.NewReader(`{"items":[
	  {"query":"pizza","candidates":[12,45,7],"relevant":[45],"intent":"recommendation","category":"italian"},
	  {"query":"noodles","candidates":[7,91],"relevant":[91],"intent":"recommendation"},
	  {"query":"sushi","candidates":[12],"relevant":[7],"category":"italian"},
	  {"query":"pizza","candidates":[],"relevant":[45],"intent":"details"}
	]}`))
	require.NoError(t, err)

	report, err := e.RunDatasetEvaluation(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalQueries)
	assert.Equal(t, 1, report.Failed)
	assert.InDelta(t, 0.5, report.HitRate, 1e-9)
	assert.InDelta(t, (1.0+0.5)/4, report.MRR, 1e-9)
	assert.InDelta(t, (1.0/3+0.5)/4, report.MeanPrecision, 1e-9)

	assert.Equal(t, 3, report.IntentLabeled)
	assert.InDelta(t, 2.0/3, report.IntentAccuracy, 1e-9)

	italian := report.ByCategory["italian"]
	require.NotNil(t, italian)
	assert.Equal(t, 2, italian.Queries)
	assert.InDelta(t, 0.5, italian.HitRate, 1e-9)

	assert.Equal(t, []int64{45, 12, 7}, report.Items[0].Returned)
	assert.Equal(t, assistant.ErrNoCandidates.Error(), report.Items[3].Error)

	text := GenerateReport(report)
	assert.Contains(t, text, "Hit rate: 50.0%")
}

func TestEvaluateItem_WithoutClassifier(t *testing.T) {
	e := NewEvaluator(tableRanker{"pizza": {45}}, nil, 0)
	res := e.EvaluateItem(context.Background(), DatasetItem{Query: "pizza", Candidates: []int64{45}, Relevant: []int64{45}, Intent: "recommendation"})

	assert.True(t, res.Hit)
	assert.Equal(t, 1.0, res.ReciprocalRank)
	assert.Empty(t, res.Intent)
}

func TestLoadDataset_Invalid(t *testing.T) {
	_, err := LoadDataset(strings.NewReader(`{"items":`))
	assert.Error(t, err)
}
