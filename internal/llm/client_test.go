package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/internal/assistant"
)

type fakeOpenAI struct {
	chatReply   string
	chatStatus  int
	lastChat    openai.ChatCompletionRequest
	chatCalls   int
	embedCalls  int
	lastEmbedIn []string
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls++
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastChat))

		if f.chatStatus != 0 {
			w.WriteHeader(f.chatStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  f.lastChat.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": f.chatReply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls++
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.lastEmbedIn = req.Input

		// Answer in reverse order to check the index is honored.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	})

	return mux
}

func newTestClient(t *testing.T, fake *fakeOpenAI) *Client {
	t.Helper()

	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:        server.URL + "/v1",
		APIKey:         "test-key",
		ChatModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		Temperature:    0.7,
		Timeout:        5 * time.Second,
	})
}

func TestClient_EmbedBatchKeepsOrder(t *testing.T) {
	fake := &fakeOpenAI{}
	c := newTestClient(t, fake)

	got, err := c.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 3}}, got)

	vec, err := c.Embed(context.Background(), "pizza")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5}, vec)
	assert.Equal(t, []string{"pizza"}, fake.lastEmbedIn)
}

func TestClient_Classify(t *testing.T) {
	fake := &fakeOpenAI{chatReply: "```json\n{\"labels\": [{\"label\": \"other\", \"score\": 0.1}, {\"label\": \"Recommendation\", \"score\": 0.85}]}\n```"}
	c := newTestClient(t, fake)

	got, err := c.Classify(context.Background(), "somewhere for pizza?", []string{"recommendation", "details", "other"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "recommendation", got[0].Label)
	assert.InDelta(t, 0.85, got[0].Score, 1e-9)
	assert.Equal(t, "gpt-4o-mini", fake.lastChat.Model)
	assert.Contains(t, fake.lastChat.Messages[1].Content, "recommendation, details, other")
}

func TestClient_GenerateSendsHistory(t *testing.T) {
	fake := &fakeOpenAI{chatReply: " Happy to help! "}
	c := newTestClient(t, fake)

	history := assistant.History{}.
		Append(assistant.RoleUser, "hi").
		Append(assistant.RoleAssistant, "hello").
		Append(assistant.RoleUser, "any tips?")

	reply, err := c.Generate(context.Background(), history, 120)
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", reply)

	require.Len(t, fake.lastChat.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.lastChat.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, fake.lastChat.Messages[2].Role)
	assert.Equal(t, "any tips?", fake.lastChat.Messages[3].Content)
	assert.Equal(t, 120, fake.lastChat.MaxTokens)
}

func TestClient_Summarize(t *testing.T) {
	fake := &fakeOpenAI{chatReply: "Crispy pizza and quick service."}
	c := newTestClient(t, fake)

	got, err := c.Summarize(context.Background(), "Information about the restaurant X:\ngreat pizza", 20, 100)
	require.NoError(t, err)
	assert.Equal(t, "Crispy pizza and quick service.", got)
	assert.Contains(t, fake.lastChat.Messages[1].Content, "20 to 100 words")

	_, err = c.Summarize(context.Background(), "  ", 20, 100)
	assert.Error(t, err)
	assert.Equal(t, 1, fake.chatCalls)
}

func TestClient_UpstreamErrorIsNotRetried(t *testing.T) {
	fake := &fakeOpenAI{chatStatus: http.StatusInternalServerError}
	c := newTestClient(t, fake)

	_, err := c.Summarize(context.Background(), "some text", 20, 100)
	require.Error(t, err)
	assert.Equal(t, 1, fake.chatCalls)
}

func TestParseLabelScores(t *testing.T) {
	labels := []string{"recommend", "details", "other"}

	got, err := parseLabelScores(`{"labels":[{"label":"details","score":0.4},{"label":"weather","score":0.9},{"label":"details","score":0.1}]}`, labels)
	require.NoError(t, err)
	assert.Equal(t, []assistant.LabelScore{{Label: "details", Score: 0.4}}, got)

	got, err = parseLabelScores("Recommend.", labels)
	require.NoError(t, err)
	assert.Equal(t, "recommend", got[0].Label)

	_, err = parseLabelScores("I am not sure", labels)
	assert.Error(t, err)

	_, err = parseLabelScores(`{"labels":[]}`, labels)
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(" {\"a\":1} "))
}
