package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/itsbooked/sports_booking/database"
	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/websocket"
	"gorm.io/gorm"
)

type MarkAttendanceRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"required,oneof=present absent"`
}

func MarkAttendance(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	markedBy, _ := uuid.Parse(claims["user_id"].(string))

	classID, err := uuid.Parse(c.Params("classId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid class ID format"})
	}

	var req MarkAttendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	bookingID, _ := uuid.Parse(req.BookingID)

	var booking models.Booking
	if err := database.DB.First(&booking, "id = ?", bookingID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	}
	if booking.ClassSlotID != classID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Booking does not belong to this class"})
	}
	if booking.Status != models.BookingConfirmed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Attendance can only be marked for confirmed bookings"})
	}

	now := time.Now()
	var attendance models.Attendance
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("booking_id = ?", bookingID).First(&attendance).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			attendance = models.Attendance{ClassSlotID: classID, BookingID: bookingID}
		}
		attendance.Status = req.Status
		attendance.MarkedAt = &now
		attendance.MarkedBy = &markedBy
		return tx.Save(&attendance).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record attendance"})
	}

	payload := map[string]interface{}{
		"class_slot_id": classID,
		"booking_id":    bookingID,
		"status":        attendance.Status,
	}
	websocket.DefaultHub.Publish(websocket.Event{
		Type:    websocket.EventAttendanceUpdate,
		Scope:   websocket.OrgScope(booking.OrganizationID),
		Payload: payload,
	})
	if booking.UserID != nil {
		websocket.DefaultHub.Publish(websocket.Event{
			Type:    websocket.EventAttendanceUpdate,
			Scope:   websocket.UserScope(*booking.UserID),
			Payload: payload,
		})
	}

	return c.JSON(attendance)
}
