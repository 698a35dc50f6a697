package admin

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/auth"
	"github.com/ncecere/kereru_gateway/internal/httpserver/httputil"
)

type adminContextKey string

const (
	adminAuthHeaderPrefix = "bearer "
	adminContextClaimsKey = adminContextKey("kereru-gateway/admin-claims")
)

func adminAuthMiddleware(tokens *auth.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		token := ""
		if raw != "" && strings.HasPrefix(strings.ToLower(raw), adminAuthHeaderPrefix) {
			token = strings.TrimSpace(raw[len(adminAuthHeaderPrefix):])
		}
		if token == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "admin authorization required")
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		ctx := context.WithValue(userContext(c), adminContextClaimsKey, claims)
		c.SetUserContext(ctx)
		c.Locals("adminSubject", claims.Subject)
		return c.Next()
	}
}

func adminSubject(c *fiber.Ctx) string {
	if v, ok := c.Locals("adminSubject").(string); ok {
		return v
	}
	return ""
}

func userContext(c *fiber.Ctx) context.Context {
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}
