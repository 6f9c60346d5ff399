package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kcb-text2sql/backend/internal/middleware/validation"
)

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

// question prefers the copy sanitized by the validation middleware.
func question(c *fiber.Ctx, raw string) string {
	if q, ok := c.Locals(validation.QuestionKey).(string); ok {
		return q
	}
	return raw
}
