package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Chat      *ChatHandler
	Places    *PlacesHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler
}

func Register(app *fiber.App, h Handlers) {
	app.Get("/search", h.Places.Search)
	app.Get("/nearby", h.Places.Nearby)

	api := app.Group("/api/v1")

	api.Post("/chat", h.Chat.HandleChat)
	api.Post("/chat/reset", h.Chat.HandleReset)
	api.Get("/chat/history", h.Chat.GetChatHistory)

	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	app.Use("/ws", h.WebSocket.Upgrade)
	app.Get("/ws/chat", websocket.New(h.WebSocket.HandleConnection))
}
