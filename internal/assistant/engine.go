package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/corpus"
	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const (
	MsgSearchNearbyFirst = "I'd be glad to assist you but you must search for restaurants nearby first."
	MsgNoMatches         = "I couldn't find any recommendations similar enough. Try again with different preferences."
	MsgRecommendations   = "Based on your preferences, here are some recommendations:\n"
	MsgNotUnderstood     = "I'm sorry, I didn't understand that. Could you rephrase?"
	MsgWhichRestaurant   = "Which restaurant would you like to know about?"
	MsgHelp              = "Search for restaurants nearby, then tell me what you feel like eating and I'll suggest a few. Mention a restaurant by name to hear what reviewers say about it."
	MsgGoodbye           = "Goodbye! Enjoy your meal."
	ResetAck             = "Chat history has been reset."

	maxReviewExcerpts = 3
	maxExcerptRunes   = 200
)

var ErrEmptyMessage = errors.New("message is empty")

type Config struct {
	Labels            LabelSet
	Strategy          RankingStrategy
	Aggregation       ScoreAggregation
	TopN              int
	Summary           SummaryConfig
	GenerationTokens  int
	History           HistoryWindow
	CapabilityTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Labels:      BasicLabels,
		Strategy:    RankByEmbedding,
		Aggregation: AggregateMax,
		TopN:        3,
		Summary: SummaryConfig{
			MaxInputChars: 2048,
			MinLength:     20,
			MaxLength:     100,
		},
		GenerationTokens:  1000,
		History:           HistoryWindow{MaxTurns: 20, MaxChars: 8000},
		CapabilityTimeout: 20 * time.Second,
	}
}

// State is the per-session conversation state. Engine.Turn never mutates the
// State it is given.
type State struct {
	History             History
	LastRecommendations []RestaurantSummary
}

func (s State) clone() State {
	out := State{History: History{Turns: make([]Turn, len(s.History.Turns))}}
	copy(out.History.Turns, s.History.Turns)
	if s.LastRecommendations != nil {
		out.LastRecommendations = make([]RestaurantSummary, len(s.LastRecommendations))
		copy(out.LastRecommendations, s.LastRecommendations)
	}
	return out
}

// Idle reports whether the session holds no conversation yet.
func (s State) Idle() bool {
	return s.History.Empty() && len(s.LastRecommendations) == 0
}

// Response is the result of one chat turn. Recommendations is only set for a
// recommendation turn that produced results.
type Response struct {
	Response        string              `json:"response"`
	Intent          Intent              `json:"intent"`
	Recommendations []RestaurantSummary `json:"recommendations,omitempty"`
}

type Option func(*Engine)

// WithVectorIndex replaces the in-memory review index used by the embedding
// ranker.
func WithVectorIndex(index VectorIndex) Option {
	return func(e *Engine) { e.index = index }
}

func WithTokenizer(t Tokenizer) Option {
	return func(e *Engine) { e.tokenizer = t }
}

// components is everything built from the capabilities by Load.
type components struct {
	extractor  *EntityExtractor
	classifier *IntentClassifier
	ranker     Ranker
	summarizer *DetailSummarizer
	dialogue   *DialogueFallback
}

type outcome struct {
	text            string
	recommendations []RestaurantSummary
}

type turnInput struct {
	message    string
	entity     string
	candidates []int64
	state      *State
}

type intentHandler func(ctx context.Context, c *components, in *turnInput) (outcome, bool)

// Engine is the conversational recommendation engine. It is unusable until
// Load succeeds; every operation before that returns ErrNotReady.
type Engine struct {
	cfg       Config
	corpus    *corpus.Corpus
	index     VectorIndex
	tokenizer Tokenizer
	handlers  map[Intent]intentHandler
	loaded    atomic.Pointer[components]
}

func New(c *corpus.Corpus, cfg Config, opts ...Option) *Engine {
	if len(cfg.Labels) == 0 {
		cfg.Labels = BasicLabels
	}
	if cfg.Strategy == "" {
		cfg.Strategy = RankByEmbedding
	}

	e := &Engine{cfg: cfg, corpus: c}
	for _, opt := range opts {
		opt(e)
	}

	e.handlers = map[Intent]intentHandler{
		IntentRecommendation: e.recommend,
		IntentDetails:        e.details,
		IntentReviews:        e.reviews,
		IntentHours:          e.hours,
		IntentHelp:           fixedReply(MsgHelp),
		IntentGoodbye:        fixedReply(MsgGoodbye),
	}
	return e
}

// Load builds the engine's components from caps and makes it ready. It may
// be called again to swap capabilities.
func (e *Engine) Load(caps Capabilities) error {
	if err := caps.validate(e.cfg.Strategy == RankByEmbedding); err != nil {
		return fmt.Errorf("failed to load assistant: %w", err)
	}
	caps = caps.withTimeout(e.cfg.CapabilityTimeout)

	var ranker Ranker
	switch e.cfg.Strategy {
	case RankByEmbedding:
		index := e.index
		if index == nil {
			index = NewMemoryIndex(e.corpus)
		}
		ranker = NewEmbeddingRanker(caps.Embedder, index, e.corpus.Directory(), e.cfg.Aggregation)
	case RankByBM25:
		ranker = NewBM25Ranker(e.corpus, e.tokenizer)
	default:
		return fmt.Errorf("failed to load assistant: unknown ranking strategy %q", e.cfg.Strategy)
	}

	e.loaded.Store(&components{
		extractor:  NewEntityExtractor(e.corpus.Names()),
		classifier: NewIntentClassifier(caps.Classifier, e.cfg.Labels),
		ranker:     ranker,
		summarizer: NewDetailSummarizer(e.corpus, caps.Summarizer, e.cfg.Summary),
		dialogue:   NewDialogueFallback(caps.Generator, e.cfg.GenerationTokens, e.cfg.History),
	})

	logger.Info("Assistant loaded",
		zap.String("strategy", string(e.cfg.Strategy)),
		zap.Strings("labels", e.cfg.Labels.Names()),
		zap.Int("restaurants", e.corpus.Directory().Len()),
		zap.Int("reviews", len(e.corpus.Reviews())),
	)
	return nil
}

func (e *Engine) Ready() bool {
	return e.loaded.Load() != nil
}

// Turn processes one user message against state and returns the reply with
// the state to persist. Input errors leave state untouched.
func (e *Engine) Turn(ctx context.Context, state State, message string, candidates []int64) (Response, State, error) {
	c := e.loaded.Load()
	if c == nil {
		return Response{}, state, ErrNotReady
	}
	if strings.TrimSpace(message) == "" {
		return Response{}, state, ErrEmptyMessage
	}

	start := time.Now()
	next := state.clone()
	in := &turnInput{message: message, candidates: candidates, state: &next}

	intent := e.resolveIntent(ctx, c, in)

	out, handled := outcome{}, false
	if h, ok := e.handlers[intent]; ok {
		out, handled = h(ctx, c, in)
	}

	kind := "structured"
	if !handled {
		kind = "dialogue"
		reply, history, err := c.dialogue.Respond(ctx, next.History, message)
		if err != nil {
			logger.Warn("Dialogue generation failed", zap.Error(err))
			metrics.FallbackResponses.WithLabelValues("generator_error").Inc()
			kind = "fallback"
			reply = MsgNotUnderstood
		} else {
			next.History = history
		}
		out = outcome{text: reply}
	}

	resp := Response{Response: out.text, Intent: intent}
	if intent == IntentRecommendation && len(out.recommendations) > 0 {
		resp.Recommendations = out.recommendations
		next.LastRecommendations = out.recommendations
	}

	metrics.TurnsTotal.WithLabelValues(intent.String(), kind).Inc()
	metrics.TurnDuration.WithLabelValues(intent.String()).Observe(time.Since(start).Seconds())

	return resp, next, nil
}

// Reset returns the acknowledgement and an empty state.
func (e *Engine) Reset() (string, State, error) {
	if !e.Ready() {
		return "", State{}, ErrNotReady
	}
	return ResetAck, State{}, nil
}

// resolveIntent gives a literal restaurant name priority: when one is found
// the classifier is not consulted.
func (e *Engine) resolveIntent(ctx context.Context, c *components, in *turnInput) Intent {
	if name, ok := c.extractor.Extract(in.message, EntityRestaurantName); ok {
		in.entity = name
		return IntentDetails
	}

	label, intent, err := c.classifier.Classify(ctx, in.message)
	if err != nil {
		logger.Warn("Intent classification failed", zap.Error(err))
		metrics.FallbackResponses.WithLabelValues("classifier_error").Inc()
		return IntentOther
	}

	logger.Debug("Intent classified", zap.String("label", label), zap.String("intent", intent.String()))
	return intent
}

func (e *Engine) recommend(ctx context.Context, c *components, in *turnInput) (outcome, bool) {
	if len(in.candidates) == 0 {
		metrics.FallbackResponses.WithLabelValues("no_candidates").Inc()
		return outcome{text: MsgSearchNearbyFirst}, true
	}

	recs, err := c.ranker.Rank(ctx, in.message, in.candidates, e.cfg.TopN)
	switch {
	case errors.Is(err, ErrNoCandidates):
		metrics.FallbackResponses.WithLabelValues("no_candidates").Inc()
		return outcome{text: MsgSearchNearbyFirst}, true
	case err != nil:
		logger.Warn("Ranking failed", zap.Int("candidates", len(in.candidates)), zap.Error(err))
		metrics.FallbackResponses.WithLabelValues("ranker_error").Inc()
		return outcome{text: MsgNoMatches}, true
	}

	metrics.RecommendationsReturned.Observe(float64(len(recs)))
	if len(recs) == 0 {
		metrics.FallbackResponses.WithLabelValues("no_matches").Inc()
		return outcome{text: MsgNoMatches}, true
	}

	var b strings.Builder
	b.WriteString(MsgRecommendations)
	for _, r := range recs {
		fmt.Fprintf(&b, "%s located in %s, %s\n", r.Name, r.Location, r.Country)
	}
	return outcome{text: b.String(), recommendations: recs}, true
}

// subject is the restaurant a details-like turn is about: the extracted name,
// else the first restaurant of the last recommendation. The latter carries
// its directory id, so it is resolved by id rather than by name.
type subject struct {
	name string
	id   int64
	byID bool
}

func subjectOf(in *turnInput) (subject, bool) {
	if in.entity != "" {
		return subject{name: in.entity}, true
	}
	if recs := in.state.LastRecommendations; len(recs) > 0 {
		return subject{name: recs[0].Name, id: recs[0].ID, byID: true}, true
	}
	return subject{}, false
}

func (e *Engine) reviewsOf(s subject) []models.Review {
	if s.byID {
		return e.corpus.ReviewsFor(s.id)
	}
	return e.corpus.ReviewsByName(s.name)
}

func (e *Engine) restaurantOf(s subject) (models.Restaurant, bool) {
	if s.byID {
		return e.corpus.Directory().Get(s.id)
	}
	return e.corpus.RestaurantByName(s.name)
}

func (e *Engine) details(ctx context.Context, c *components, in *turnInput) (outcome, bool) {
	subj, ok := subjectOf(in)
	if !ok {
		return outcome{text: MsgWhichRestaurant}, true
	}
	name := subj.name

	summary, ok := c.summarizer.SummarizeReviews(ctx, name, e.reviewsOf(subj))
	if !ok {
		metrics.FallbackResponses.WithLabelValues("no_details").Inc()
		return outcome{text: fmt.Sprintf("Sorry, I couldn't find details for %s.", name)}, true
	}
	return outcome{text: summary}, true
}

func (e *Engine) reviews(_ context.Context, _ *components, in *turnInput) (outcome, bool) {
	subj, ok := subjectOf(in)
	if !ok {
		return outcome{text: MsgWhichRestaurant}, true
	}
	name := subj.name

	var excerpts []string
	for _, r := range e.reviewsOf(subj) {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxExcerptRunes {
			text = truncateRunes(text, maxExcerptRunes) + "..."
		}
		excerpts = append(excerpts, "- "+text)
		if len(excerpts) == maxReviewExcerpts {
			break
		}
	}

	if len(excerpts) == 0 {
		return outcome{text: fmt.Sprintf("Sorry, I couldn't find reviews for %s.", name)}, true
	}
	return outcome{text: fmt.Sprintf("Here is what people say about %s:\n%s", name, strings.Join(excerpts, "\n"))}, true
}

func (e *Engine) hours(_ context.Context, _ *components, in *turnInput) (outcome, bool) {
	subj, ok := subjectOf(in)
	if !ok {
		return outcome{text: MsgWhichRestaurant}, true
	}
	name := subj.name

	r, ok := e.restaurantOf(subj)
	if !ok || strings.TrimSpace(r.OpeningHours) == "" {
		return outcome{text: fmt.Sprintf("Sorry, I couldn't find opening hours for %s.", name)}, true
	}
	return outcome{text: fmt.Sprintf("%s opening hours: %s", r.Name, r.OpeningHours)}, true
}

func fixedReply(text string) intentHandler {
	return func(context.Context, *components, *turnInput) (outcome, bool) {
		return outcome{text: text}, true
	}
}
