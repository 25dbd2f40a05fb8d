package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenHeader carries the admin API token.
const AdminTokenHeader = "X-Admin-Token"

// AdminTokenAuth rejects requests whose X-Admin-Token does not match token.
// An empty token disables the protected routes entirely.
func AdminTokenAuth(token string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			logger.Warn("Admin token not configured, rejecting admin request",
				slog.String("path", c.Path()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Admin API is disabled. Set ENGAGELY_ADMIN_TOKEN to enable it.",
				"code":  "ADMIN_DISABLED",
			})
		}

		provided := strings.TrimSpace(c.Get(AdminTokenHeader))
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing " + AdminTokenHeader + " header",
				"code":  "UNAUTHORIZED",
			})
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			logger.Warn("Rejected admin request with invalid token",
				slog.String("path", c.Path()),
				slog.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin token",
				"code":  "UNAUTHORIZED",
			})
		}

		return c.Next()
	}
}
