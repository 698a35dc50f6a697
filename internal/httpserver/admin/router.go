package admin

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/app"
)

// Register wires up the /admin routes. They are only mounted when an admin
// signing secret is configured.
func Register(app *fiber.App, container *app.Container) {
	if container.AdminTokens == nil {
		slog.Info("admin routes disabled: admin.jwt_secret not set")
		return
	}
	protected := app.Group("/admin", adminAuthMiddleware(container.AdminTokens))
	registerRateLimitRoutes(protected, container)
	registerGuardrailRoutes(protected, container)
}
