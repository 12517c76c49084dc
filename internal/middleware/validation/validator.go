package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const chatRequestKey = "chat_request"

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

// ChatRequest is the body of POST /api/v1/chat. Restaurants is the candidate
// set of directory ids, usually the result of a nearby search.
type ChatRequest struct {
	Message     string  `json:"message"`
	Restaurants []int64 `json:"restaurants"`
}

// InputError rejects a chat request. Its text is shown to clients as is.
type InputError string

func (e InputError) Error() string { return string(e) }

const (
	ErrMessageRequired    InputError = "Message is required"
	ErrMessageTooLong     InputError = "Message exceeds maximum length"
	ErrTooManyRestaurants InputError = "Too many restaurants"
	ErrInvalidContent     InputError = "Invalid message content"
)

type Config struct {
	MaxMessageLength    int
	MaxCandidates       int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.MaxCandidates == 0 {
		cfg.MaxCandidates = 500
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// ValidateChat applies the chat request rules shared by every transport and
// returns the sanitized request. Errors are InputError values.
func ValidateChat(req ChatRequest, cfg Config) (ChatRequest, error) {
	cfg = cfg.withDefaults()

	req.Message = sanitizeString(req.Message)
	switch {
	case req.Message == "":
		return req, ErrMessageRequired
	case len(req.Message) > cfg.MaxMessageLength:
		return req, ErrMessageTooLong
	case len(req.Restaurants) > cfg.MaxCandidates:
		return req, ErrTooManyRestaurants
	case containsXSS(req.Message):
		return req, ErrInvalidContent
	}
	return req, nil
}

func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if c.Method() == fiber.MethodPost && c.Path() == "/api/v1/chat" {
			var req ChatRequest
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			req, err := ValidateChat(req, cfg)
			if err != nil {
				if errors.Is(err, ErrInvalidContent) {
					cfg.Logger.Warn("Potential XSS attempt",
						zap.String("ip", c.IP()),
						zap.String("message", req.Message),
					)
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}

			c.Locals(chatRequestKey, req)
		}

		return c.Next()
	}
}

// ChatRequestFrom returns the body validated by Middleware, if it ran.
func ChatRequestFrom(c *fiber.Ctx) (ChatRequest, bool) {
	req, ok := c.Locals(chatRequestKey).(ChatRequest)
	return req, ok
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
