package public

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/app"
	"github.com/ncecere/kereru_gateway/internal/guardrails"
	"github.com/ncecere/kereru_gateway/internal/httpserver/httputil"
	"github.com/ncecere/kereru_gateway/internal/limits"
	"github.com/ncecere/kereru_gateway/internal/requestctx"
)

type searchHandler struct {
	container *app.Container
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *searchHandler) search(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "Query is required")
	}
	if h.container.Search == nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "search is disabled")
	}

	ctx := userContext(c)
	if h.container.Limiter != nil {
		if err := h.container.Limiter.Allow(ctx, requestctx.IdentityFrom(ctx)); errors.Is(err, limits.ErrLimitExceeded) {
			return httputil.WriteError(c, fiber.StatusTooManyRequests, guardrails.RateLimitedMessage)
		}
	}

	results, err := h.container.Search.Search(ctx, req.Query)
	if err != nil {
		return httputil.WriteErrorDetails(c, fiber.StatusInternalServerError, "Failed to perform search", err.Error())
	}
	return c.JSON(fiber.Map{"results": results})
}
