package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/middleware/validation"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const wsSessionKey = "ws_session_id"

type wsMessage struct {
	Type        string  `json:"type"`
	Content     string  `json:"content"`
	Restaurants []int64 `json:"restaurants"`
}

type wsFrame struct {
	Type            string                        `json:"type"`
	Content         string                        `json:"content,omitempty"`
	Intent          string                        `json:"intent,omitempty"`
	Recommendations []assistant.RestaurantSummary `json:"recommendations,omitempty"`
	Error           string                        `json:"error,omitempty"`
}

// WebSocketHandler streams chat replies word by word. Chat frames go through
// the same request rules as POST /api/v1/chat.
type WebSocketHandler struct {
	sessions ChatService
	limits   validation.Config
}

func NewWebSocketHandler(sessions ChatService, limits validation.Config) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		limits:   limits,
	}
}

// Upgrade rejects plain HTTP requests and pins the session id before the
// connection is hijacked. Browsers cannot set headers on a websocket, so
// ?session= is accepted too.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id := c.Query("session")
	if id == "" {
		id = sessionID(c)
	}
	c.Locals(wsSessionKey, id)
	return c.Next()
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	id, _ := c.Locals(wsSessionKey).(string)
	if id == "" {
		id = assistant.DefaultSessionID
	}
	logger.Info("WebSocket connection established", zap.String("session_id", id))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("session_id", id))
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		for _, frame := range h.process(context.Background(), id, msg) {
			if err := c.WriteJSON(frame); err != nil {
				logger.Error("Failed to write WebSocket frame", zap.Error(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) process(ctx context.Context, id string, msg wsMessage) []wsFrame {
	switch msg.Type {
	case "chat":
		req, err := validation.ValidateChat(validation.ChatRequest{Message: msg.Content, Restaurants: msg.Restaurants}, h.limits)
		if err != nil {
			logger.Warn("Rejected WebSocket chat message", zap.String("session_id", id), zap.Error(err))
			return []wsFrame{{Type: "error", Error: err.Error()}}
		}

		resp, err := h.sessions.Chat(ctx, id, req.Message, req.Restaurants)
		if err != nil {
			return []wsFrame{errorFrame(err)}
		}

		words := splitIntoWords(resp.Response)
		frames := make([]wsFrame, 0, len(words)+1)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 && word != "\n" && words[i+1] != "\n" {
				chunk += " "
			}
			frames = append(frames, wsFrame{Type: "chunk", Content: chunk})
		}
		return append(frames, wsFrame{
			Type:            "complete",
			Intent:          resp.Intent.String(),
			Recommendations: resp.Recommendations,
		})

	case "reset":
		ack, err := h.sessions.Reset(ctx, id)
		if err != nil {
			return []wsFrame{errorFrame(err)}
		}
		return []wsFrame{{Type: "reset", Content: ack}}

	default:
		return []wsFrame{{Type: "error", Error: "Unknown message type"}}
	}
}

func errorFrame(err error) wsFrame {
	switch {
	case errors.Is(err, assistant.ErrNotReady):
		return wsFrame{Type: "error", Error: err.Error()}
	case errors.Is(err, assistant.ErrEmptyMessage):
		return wsFrame{Type: "error", Error: "Message is required"}
	default:
		logger.Error("Failed to process WebSocket message", zap.Error(err))
		return wsFrame{Type: "error", Error: "Failed to process message"}
	}
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
