package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger logs one line per request after it completes.
func Logger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		level := slog.LevelInfo
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		attrs := []any{
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.IP(),
		}
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			attrs = append(attrs, "request_id", id)
		}
		if uid, ok := c.Locals(LocalUserID).(string); ok && uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		logger.Log(c.UserContext(), level, "Request", attrs...)
		return err
	}
}
