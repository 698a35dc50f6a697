package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/kereru_gateway/internal/app"
)

// Register wires up the browser-facing API routes.
func Register(app *fiber.App, container *app.Container) {
	group := app.Group("/api", callerContext())

	chat := &chatHandler{container: container}
	group.Post("/chat", chat.send)
	group.Post("/chat/stream", chat.stream)

	searchHandler := &searchHandler{container: container}
	group.Post("/search", searchHandler.search)
}
