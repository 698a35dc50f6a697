package public

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/requestctx"
)

// HeaderSessionID carries the browser session id. It is logged with safety
// entries but never used as the rate-limit identity.
const HeaderSessionID = "X-Session-ID"

// callerContext resolves the caller identity and injects request metadata.
func callerContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := requestctx.New(c.Get(HeaderSessionID), c.IP(), requestID(c))
		c.Locals(requestctx.FiberLocalsKey(), rc)
		c.SetUserContext(requestctx.WithContext(userContext(c), rc))
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func userContext(c *fiber.Ctx) context.Context {
	if c == nil {
		return context.Background()
	}
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}
