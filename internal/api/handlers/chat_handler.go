package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/middleware/validation"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const (
	SessionHeader       = "X-Session-ID"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ChatService runs conversation turns; *assistant.SessionManager implements it.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string, candidates []int64) (assistant.Response, error)
	Reset(ctx context.Context, sessionID string) (string, error)
	Ready() bool
}

type TurnHistory interface {
	GetTurnHistory(ctx context.Context, sessionID string, limit int) ([]models.TurnRecord, error)
}

type ChatHandler struct {
	sessions ChatService
	history  TurnHistory
}

func NewChatHandler(sessions ChatService, history TurnHistory) *ChatHandler {
	return &ChatHandler{
		sessions: sessions,
		history:  history,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	req, ok := validation.ChatRequestFrom(c)
	if !ok {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	resp, err := h.sessions.Chat(c.UserContext(), sessionID(c), req.Message, req.Restaurants)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(resp)
}

func (h *ChatHandler) HandleReset(c *fiber.Ctx) error {
	ack, err := h.sessions.Reset(c.UserContext(), sessionID(c))
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"response": ack,
	})
}

func (h *ChatHandler) GetChatHistory(c *fiber.Ctx) error {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	records, err := h.history.GetTurnHistory(c.UserContext(), sessionID(c), limit)
	if err != nil {
		logger.Error("Failed to load chat history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}
	if records == nil {
		records = []models.TurnRecord{}
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func sessionID(c *fiber.Ctx) string {
	if id := c.Get(SessionHeader); id != "" {
		return id
	}
	return assistant.DefaultSessionID
}

func chatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, assistant.ErrNotReady):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, assistant.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	default:
		logger.Error("Failed to process chat message", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}
}
