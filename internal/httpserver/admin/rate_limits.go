package admin

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/app"
	"github.com/ncecere/kereru_gateway/internal/httpserver/httputil"
)

type rateLimitHandler struct {
	container *app.Container
}

func registerRateLimitRoutes(router fiber.Router, container *app.Container) {
	handler := &rateLimitHandler{container: container}
	group := router.Group("/rate-limits")
	group.Get("/", handler.settings)
	group.Post("/:identity/reset", handler.reset)
}

func (h *rateLimitHandler) settings(c *fiber.Ctx) error {
	cfg := h.container.Config.RateLimits
	resp := fiber.Map{
		"backend":      cfg.Backend,
		"max_requests": cfg.MaxRequests,
		"window":       cfg.Window.String(),
	}
	if h.container.Window != nil {
		resp["tracked_identities"] = h.container.Window.Len()
	}
	return c.JSON(resp)
}

func (h *rateLimitHandler) reset(c *fiber.Ctx) error {
	identity, err := url.PathUnescape(c.Params("identity"))
	if err != nil || strings.TrimSpace(identity) == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "identity is required")
	}
	if err := h.container.Limiter.Clear(userContext(c), identity); err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to reset rate limit")
	}
	slog.Info("rate limit reset",
		slog.String("identity", identity),
		slog.String("admin", adminSubject(c)))
	return c.JSON(fiber.Map{"identity": identity, "reset": true})
}
