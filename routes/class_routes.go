package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/itsbooked/sports_booking/handlers"
	"github.com/itsbooked/sports_booking/middleware"
)

func ClassRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	classes := api.Group("/classes")
	classes.Get("", handlers.ListClasses)
	classes.Get("/:classId/availability", handlers.GetClassAvailability)

	classes.Post("/:classId/attendance", middleware.Protected(), middleware.StaffRequired(), handlers.MarkAttendance)
}
