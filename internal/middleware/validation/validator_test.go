package validation

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxMessageLength: 20, MaxCandidates: 3}))
	app.Post("/api/v1/chat", func(c *fiber.Ctx) error {
		req, ok := ChatRequestFrom(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(req)
	})
	return app
}

func post(t *testing.T, app *fiber.App, contentType, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestMiddleware_Chat(t *testing.T) {
	app := newApp()

	status, body := post(t, app, "application/json", `{"message":"  I want pizza \u0000","restaurants":[12,45]}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"message":"I want pizza","restaurants":[12,45]}`, body)

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		errContains string
	}{
		{"bad json", "application/json", `{"message":`, 400, "Invalid JSON"},
		{"blank message", "application/json", `{"message":"   "}`, 400, "Message is required"},
		{"too long", "application/json", `{"message":"` + strings.Repeat("a", 21) + `"}`, 400, "maximum length"},
		{"too many candidates", "application/json", `{"message":"hi","restaurants":[1,2,3,4]}`, 400, "Too many"},
		{"xss", "application/json", `{"message":"<script>x"}`, 400, "Invalid message"},
		{"content type", "text/plain", `hello`, 415, "Unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, app, tt.contentType, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, body, tt.errContains)
		})
	}
}

func TestValidateChat(t *testing.T) {
	req, err := ValidateChat(ChatRequest{Message: " pasta\x00 ", Restaurants: []int64{12}}, Config{})
	require.NoError(t, err)
	assert.Equal(t, "pasta", req.Message)

	_, err = ValidateChat(ChatRequest{Message: strings.Repeat("a", 2001)}, Config{})
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = ValidateChat(ChatRequest{Message: "hi", Restaurants: make([]int64, 501)}, Config{})
	assert.ErrorIs(t, err, ErrTooManyRestaurants)

	_, err = ValidateChat(ChatRequest{Message: `<iframe src="x">`}, Config{})
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = ValidateChat(ChatRequest{Message: " "}, Config{})
	assert.ErrorIs(t, err, ErrMessageRequired)
	assert.Equal(t, "Message is required", err.Error())
}
