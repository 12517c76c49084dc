package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/restaurant-agent/backend/internal/metrics"
)

var (
	// ErrNotReady is returned by every engine operation before Load succeeds.
	ErrNotReady = errors.New("assistant is not set up")
	// ErrNoCandidates means the caller supplied no restaurants to rank.
	ErrNoCandidates = errors.New("no candidate restaurants supplied")
	ErrClassifier   = errors.New("intent classification failed")
	ErrSummarizer   = errors.New("summarization failed")
	ErrGenerator    = errors.New("dialogue generation failed")
)

// Embedder maps text into the vector space of the stored review embeddings.
// It must be the same model that produced the corpus vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type LabelScore struct {
	Label string
	Score float64
}

// ZeroShotClassifier ranks the given labels for text, best first.
type ZeroShotClassifier interface {
	Classify(ctx context.Context, text string, labels []string) ([]LabelScore, error)
}

// TextSummarizer condenses text to between minLength and maxLength words.
// It may reject degenerate input with an error.
type TextSummarizer interface {
	Summarize(ctx context.Context, text string, minLength, maxLength int) (string, error)
}

// DialogueGenerator continues a conversation. history ends with the user turn
// to answer; the returned text is only the new reply.
type DialogueGenerator interface {
	Generate(ctx context.Context, history History, maxTokens int) (string, error)
}

// Capabilities bundles the model-backed dependencies the engine needs.
type Capabilities struct {
	Embedder   Embedder
	Classifier ZeroShotClassifier
	Summarizer TextSummarizer
	Generator  DialogueGenerator
}

func (c Capabilities) validate(needEmbedder bool) error {
	switch {
	case c.Classifier == nil:
		return errors.New("classifier capability is required")
	case c.Summarizer == nil:
		return errors.New("summarizer capability is required")
	case c.Generator == nil:
		return errors.New("generator capability is required")
	case needEmbedder && c.Embedder == nil:
		return errors.New("embedder capability is required for embedding ranking")
	}
	return nil
}

// callCapability bounds a capability call by timeout and records its latency.
func callCapability[T any](ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := fn(ctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CapabilityDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())

	return out, err
}

type timedEmbedder struct {
	next    Embedder
	timeout time.Duration
}

func (t timedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return callCapability(ctx, "embed", t.timeout, func(ctx context.Context) ([]float32, error) {
		return t.next.Embed(ctx, text)
	})
}

type timedClassifier struct {
	next    ZeroShotClassifier
	timeout time.Duration
}

func (t timedClassifier) Classify(ctx context.Context, text string, labels []string) ([]LabelScore, error) {
	return callCapability(ctx, "classify", t.timeout, func(ctx context.Context) ([]LabelScore, error) {
		return t.next.Classify(ctx, text, labels)
	})
}

type timedSummarizer struct {
	next    TextSummarizer
	timeout time.Duration
}

func (t timedSummarizer) Summarize(ctx context.Context, text string, minLength, maxLength int) (string, error) {
	return callCapability(ctx, "summarize", t.timeout, func(ctx context.Context) (string, error) {
		return t.next.Summarize(ctx, text, minLength, maxLength)
	})
}

type timedGenerator struct {
	next    DialogueGenerator
	timeout time.Duration
}

func (t timedGenerator) Generate(ctx context.Context, history History, maxTokens int) (string, error) {
	return callCapability(ctx, "generate", t.timeout, func(ctx context.Context) (string, error) {
		return t.next.Generate(ctx, history, maxTokens)
	})
}

func (c Capabilities) withTimeout(timeout time.Duration) Capabilities {
	out := Capabilities{
		Classifier: timedClassifier{next: c.Classifier, timeout: timeout},
		Summarizer: timedSummarizer{next: c.Summarizer, timeout: timeout},
		Generator:  timedGenerator{next: c.Generator, timeout: timeout},
	}
	if c.Embedder != nil {
		out.Embedder = timedEmbedder{next: c.Embedder, timeout: timeout}
	}
	return out
}
