package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/storage/codec"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const (
	sessionPrefix   = "session:"
	embeddingPrefix = "embedding:"
)

type Client struct {
	client     *redis.Client
	sessionTTL time.Duration
}

func NewClient(host string, port int, password string, db int, sessionTTL time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewClientFromRedis(client, sessionTTL), nil
}

// NewClientFromRedis wraps an existing go-redis client.
func NewClientFromRedis(client *redis.Client, sessionTTL time.Duration) *Client {
	return &Client{client: client, sessionTTL: sessionTTL}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Load returns the stored conversation state, or an empty state for an
// unknown or expired session.
func (c *Client) Load(ctx context.Context, sessionID string) (assistant.State, error) {
	data, err := c.client.Get(ctx, sessionPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return assistant.State{}, nil
	}
	if err != nil {
		return assistant.State{}, fmt.Errorf("failed to get session: %w", err)
	}

	state, err := assistant.DecodeState(data)
	if err != nil {
		logger.Warn("Discarding unreadable session state", zap.String("session_id", sessionID), zap.Error(err))
		return assistant.State{}, nil
	}
	return state, nil
}

// Save stores state and refreshes the session TTL.
func (c *Client) Save(ctx context.Context, sessionID string, state assistant.State) error {
	data, err := assistant.EncodeState(state)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, sessionPrefix+sessionID, data, c.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	logger.Debug("Session saved", zap.String("session_id", sessionID), zap.Int("history_turns", state.History.Len()))
	return nil
}

func (c *Client) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, sessionPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	err := c.client.Set(ctx, embeddingPrefix+textHash, codec.EncodeEmbedding(embedding), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+textHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	embedding, err := codec.DecodeEmbedding(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding: %w", err)
	}

	logger.Debug("Embedding cache hit", zap.String("text_hash", textHash))
	return embedding, true, nil
}

// InvalidateEmbeddings drops every cached embedding, for use after the
// embedding model changes.
func (c *Client) InvalidateEmbeddings(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, embeddingPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		removed++
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Embedding cache invalidated", zap.Int("removed", removed))
	return removed, nil
}
