package validation

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// QuestionKey is the Locals key holding the sanitized question.
const QuestionKey = "sanitized_question"

type Config struct {
	MaxQuestionLength   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware screens write requests. JSON bodies carrying a "question" (or
// "query") field are length checked, scanned for injection payloads and
// sanitized.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 1000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}
		if !strings.Contains(contentType, fiber.MIMEApplicationJSON) || len(c.Body()) == 0 {
			return c.Next()
		}

		var body map[string]any
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		field := "question"
		raw, present := body[field]
		if !present {
			field = "query"
			raw, present = body[field]
		}
		if !present {
			return c.Next()
		}
		question, ok := raw.(string)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": field + " must be a string",
			})
		}

		question = Sanitize(question)
		if utf8.RuneCountInString(question) > cfg.MaxQuestionLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "질문이 너무 깁니다.",
			})
		}

		if fp, bad := Suspicious(question); bad {
			cfg.Logger.Warn("Rejected suspicious question",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.String("fingerprint", fp),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid question content",
			})
		}

		c.Locals(QuestionKey, question)
		return c.Next()
	}
}

// Suspicious reports whether input looks like an SQL injection or XSS
// payload, returning the libinjection fingerprint for SQL hits.
func Suspicious(input string) (string, bool) {
	if isSQLi, fp := libinjection.IsSQLi(input); isSQLi {
		return fp, true
	}
	if libinjection.IsXSS(input) {
		return "xss", true
	}
	return "", false
}

func Sanitize(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
