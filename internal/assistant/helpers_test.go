package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/internal/corpus"
	"github.com/restaurant-agent/backend/internal/storage/models"
)

type stubEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.EmbedFunc(ctx, text)
}

type stubClassifier struct {
	ClassifyFunc func(ctx context.Context, text string, labels []string) ([]LabelScore, error)
	calls        int
	lastLabels   []string
}

func (s *stubClassifier) Classify(ctx context.Context, text string, labels []string) ([]LabelScore, error) {
	s.calls++
	s.lastLabels = labels
	return s.ClassifyFunc(ctx, text, labels)
}

type stubSummarizer struct {
	SummarizeFunc func(ctx context.Context, text string, minLength, maxLength int) (string, error)
	calls         int
	lastInput     string
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string, minLength, maxLength int) (string, error) {
	s.calls++
	s.lastInput = text
	return s.SummarizeFunc(ctx, text, minLength, maxLength)
}

type stubGenerator struct {
	GenerateFunc func(ctx context.Context, history History, maxTokens int) (string, error)
	calls        int
}

func (s *stubGenerator) Generate(ctx context.Context, history History, maxTokens int) (string, error) {
	s.calls++
	return s.GenerateFunc(ctx, history, maxTokens)
}

func fixedLabel(label string) func(context.Context, string, []string) ([]LabelScore, error) {
	return func(context.Context, string, []string) ([]LabelScore, error) {
		return []LabelScore{{Label: label, Score: 0.9}, {Label: "other", Score: 0.1}}, nil
	}
}

// pizzaEmbedder points food queries at the first axis, which the Napoli Slice
// reviews sit on.
func pizzaEmbedder() *stubEmbedder {
	return &stubEmbedder{EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
		if strings.Contains(strings.ToLower(text), "pho") {
			return []float32{0, 0, 1}, nil
		}
		return []float32{1, 0, 0}, nil
	}}
}

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()

	restaurants := []models.Restaurant{
		{ID: 12, Name: "Luigi's", Location: "Via Roma 1", Country: "Italy", OpeningHours: "Mon-Sun 12:00-23:00"},
		{ID: 45, Name: "Napoli Slice", Location: "Spaccanapoli 3", Country: "Italy"},
		{ID: 91, Name: "Pho 91", Location: "Le Loi 91", Country: "Vietnam"},
		{ID: 7, Name: "Sushi Go", Location: "Ginza 7", Country: "Japan"},
	}
	reviews := []models.Review{
		{ID: 1, RestaurantID: 12, RestaurantName: "Luigi's", Text: "Great pasta and friendly staff", Embedding: []float32{0.2, 1, 0}},
		{ID: 2, RestaurantID: 45, RestaurantName: "Napoli Slice", Text: "Best pizza in town, crispy crust", Embedding: []float32{1, 0, 0}},
		{ID: 3, RestaurantID: 45, RestaurantName: "Napoli Slice", Text: "", Embedding: []float32{0.8, 0.2, 0}},
		{ID: 4, RestaurantID: 91, RestaurantName: "Pho 91", Text: "Amazing pho broth", Embedding: []float32{0, 0, 1}},
		{ID: 5, RestaurantID: 7, RestaurantName: "Sushi Go", Text: "Pizza sushi fusion", Embedding: []float32{1, 0, 0}},
	}

	c, err := corpus.New(restaurants, reviews)
	require.NoError(t, err)
	return c
}

type testCaps struct {
	embedder   *stubEmbedder
	classifier *stubClassifier
	summarizer *stubSummarizer
	generator  *stubGenerator
}

func (tc testCaps) capabilities() Capabilities {
	return Capabilities{
		Embedder:   tc.embedder,
		Classifier: tc.classifier,
		Summarizer: tc.summarizer,
		Generator:  tc.generator,
	}
}

func newTestCaps(label string) testCaps {
	return testCaps{
		embedder:   pizzaEmbedder(),
		classifier: &stubClassifier{ClassifyFunc: fixedLabel(label)},
		summarizer: &stubSummarizer{SummarizeFunc: func(context.Context, string, int, int) (string, error) {
			return "A cozy Italian place known for fresh pasta.", nil
		}},
		generator: &stubGenerator{GenerateFunc: func(context.Context, History, int) (string, error) {
			return "Nice to chat with you.", nil
		}},
	}
}

func newReadyEngine(t *testing.T, caps testCaps, opts ...Option) *Engine {
	t.Helper()

	e := New(testCorpus(t), DefaultConfig(), opts...)
	require.NoError(t, e.Load(caps.capabilities()))
	return e
}
