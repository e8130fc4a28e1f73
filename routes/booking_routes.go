package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/itsbooked/sports_booking/handlers"
	"github.com/itsbooked/sports_booking/middleware"
)

func BookingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings")
	booking.Post("", handlers.CreateBooking)
	booking.Get("/:bookingId", handlers.GetBooking)

	booking.Post("/:bookingId/cancel", middleware.Protected(), middleware.AdminRequired(), handlers.CancelBooking)
	booking.Post("/:bookingId/move", middleware.Protected(), middleware.AdminRequired(), handlers.MoveBooking)
}
