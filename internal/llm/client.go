package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/pkg/circuitbreaker"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const embeddingBatchSize = 100

var ErrEmptyCompletion = errors.New("model returned no choices")

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	Timeout        time.Duration
}

// Client implements the assistant capabilities on an OpenAI-compatible API.
// Calls are not retried; a failing endpoint trips the circuit breaker.
type Client struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
	timeout        time.Duration
	cb             *circuitbreaker.Breaker
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.Named("breaker.llm"),
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
	})

	logger.Info("LLM client initialized",
		zap.String("chat_model", cfg.ChatModel),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(oc),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		timeout:        cfg.Timeout,
		cb:             cb,
	}
}

// EmbeddingModel names the model behind Embed, used to namespace caches.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var content string
	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}

		logger.Debug("LLM completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in request-sized batches; the result is index
// aligned with texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		err := c.embedBatch(ctx, batch, embeddings[i:end])
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(texts)))
	return embeddings, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string, out [][]float32) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.cb.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
		}

		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= len(out) {
				return fmt.Errorf("embedding index %d out of range", data.Index)
			}
			vec := make([]float32, len(data.Embedding))
			copy(vec, data.Embedding)
			out[data.Index] = vec
		}
		return nil
	})
}

const classifySystemPrompt = `You label messages sent to a restaurant discovery assistant.
Score every candidate label between 0 and 1 by how well it describes the message.
Return JSON only, in the form:
{"labels": [{"label": "<candidate>", "score": 0.9}]}`

// Classify performs zero-shot classification by prompting the chat model.
// Labels the model invents are dropped; the result is sorted best first.
func (c *Client) Classify(ctx context.Context, text string, labels []string) ([]assistant.LabelScore, error) {
	userPrompt := fmt.Sprintf("Candidate labels: %s\n\nMessage: %s", strings.Join(labels, ", "), text)

	content, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}, 0, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to classify: %w", err)
	}

	scores, err := parseLabelScores(content, labels)
	if err != nil {
		return nil, err
	}

	logger.Debug("Message classified", zap.String("top_label", scores[0].Label), zap.Float64("score", scores[0].Score))
	return scores, nil
}

type labelScoresPayload struct {
	Labels []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"labels"`
}

func parseLabelScores(content string, labels []string) ([]assistant.LabelScore, error) {
	known := make(map[string]string, len(labels))
	for _, l := range labels {
		known[strings.ToLower(l)] = l
	}

	content = stripCodeFence(content)

	var payload labelScoresPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Some models answer with the bare label.
		if l, ok := known[strings.ToLower(strings.Trim(content, " \"'.\n"))]; ok {
			return []assistant.LabelScore{{Label: l, Score: 1}}, nil
		}
		return nil, fmt.Errorf("failed to parse classification: %w", err)
	}

	seen := make(map[string]bool)
	var scores []assistant.LabelScore
	for _, ls := range payload.Labels {
		l, ok := known[strings.ToLower(strings.TrimSpace(ls.Label))]
		if !ok || seen[l] {
			continue
		}
		seen[l] = true
		scores = append(scores, assistant.LabelScore{Label: l, Score: ls.Score})
	}
	if len(scores) == 0 {
		return nil, errors.New("classification contained no candidate labels")
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const summarizeSystemPrompt = `You summarize restaurant reviews for someone deciding where to eat.
Write plain prose without lists or headings. Only use facts present in the reviews.`

func (c *Client) Summarize(ctx context.Context, text string, minLength, maxLength int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("nothing to summarize")
	}

	userPrompt := fmt.Sprintf("Summarize the following in %d to %d words.\n\n%s", minLength, maxLength, text)
	content, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarizeSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}, 0.3, maxLength*2)
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}

	logger.Debug("Reviews summarized", zap.Int("summary_length", len(content)))
	return strings.TrimSpace(content), nil
}

const dialogueSystemPrompt = `You are a friendly assistant in a restaurant discovery app.
Keep replies short and conversational.`

// Generate continues the dialogue. history already ends with the user turn.
func (c *Client) Generate(ctx context.Context, history assistant.History, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, history.Len()+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: dialogueSystemPrompt})
	for _, t := range history.Turns {
		role := openai.ChatMessageRoleUser
		if t.Role == assistant.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	content, err := c.complete(ctx, messages, c.temperature, maxTokens)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	return strings.TrimSpace(content), nil
}
