package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// WriteError standardizes JSON error responses for both admin and public APIs.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": errorText(status, msg),
	})
}

// WriteErrorDetails is WriteError with an extra details field, used when the
// cause came from an upstream collaborator.
func WriteErrorDetails(c *fiber.Ctx, status int, msg, details string) error {
	body := fiber.Map{"error": errorText(status, msg)}
	if details != "" {
		body["details"] = details
	}
	return c.Status(status).JSON(body)
}

func errorText(status int, msg string) string {
	if msg != "" {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unknown error"
}
