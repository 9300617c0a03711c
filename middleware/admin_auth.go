package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"emberline/config"
)

// Protected guards the admin surface (automations, broadcasts, queue,
// dashboard) with the configured API key.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Admin-Key")
		expected := config.AppConfig.AdminAPIKey

		if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}
