package httputil

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestWriteErrorFallsBackToStatusText(t *testing.T) {
	app := fiber.New()
	app.Get("/plain", func(c *fiber.Ctx) error { return WriteError(c, fiber.StatusTooManyRequests, "") })
	app.Get("/details", func(c *fiber.Ctx) error {
		return WriteErrorDetails(c, fiber.StatusInternalServerError, "Failed to perform search", "tavily api error: 500")
	})

	cases := map[string]string{
		"/plain":   `{"error":"Too Many Requests"}`,
		"/details": `{"details":"tavily api error: 500","error":"Failed to perform search"}`,
	}
	for path, want := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != want {
			t.Fatalf("%s: got %s want %s", path, body, want)
		}
	}
}
