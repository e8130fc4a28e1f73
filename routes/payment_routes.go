package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/itsbooked/sports_booking/handlers"
)

func PaymentRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	// The gateway posts here; it authenticates with its signature, not a JWT.
	api.Post("/payments/payfast/notify", handlers.HandlePayfastNotify)
}
