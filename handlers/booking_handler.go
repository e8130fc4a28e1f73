package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/itsbooked/sports_booking/database"
	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/payments"
	"github.com/itsbooked/sports_booking/services"
	"gorm.io/gorm"
)

var validate = validator.New()

type CreateBookingRequest struct {
	ClassSlotID      string `json:"class_slot_id" validate:"required,uuid"`
	ParticipantName  string `json:"participant_name" validate:"required"`
	ParticipantEmail string `json:"participant_email" validate:"required,email"`
	ParticipantPhone string `json:"participant_phone,omitempty"`
}

func CreateBooking(c *fiber.Ctx) error {
	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	slotID, _ := uuid.Parse(req.ClassSlotID)

	var slot models.ClassSlot
	if err := database.DB.Preload("Organization").First(&slot, "id = ?", slotID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Class not found"})
	}

	// Members book with their account attached; walk-ins book by email only,
	// so a missing or bad token is not an error here.
	var userID *uuid.UUID
	if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if claims, err := parseToken(strings.TrimPrefix(auth, "Bearer ")); err == nil {
			if raw, ok := claims["user_id"].(string); ok {
				if id, err := uuid.Parse(raw); err == nil {
					userID = &id
				}
			}
		}
	}

	participant := services.Participant{
		Name:  req.ParticipantName,
		Email: req.ParticipantEmail,
		Phone: req.ParticipantPhone,
	}

	booking, err := services.Bookings.Book(&slot, participant, userID)
	if err != nil {
		if errors.Is(err, services.ErrSlotFull) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "This class is full or no longer available.",
				"code":  "SLOT_FULL",
			})
		}
		log.Printf("🔥 Failed to create booking for slot %s: %v", slotID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create booking"})
	}

	redirect, err := payments.BuildRedirect(booking, &slot, &slot.Organization)
	if err != nil {
		if errors.Is(err, payments.ErrMissingCredentials) {
			if _, failErr := services.Bookings.Fail(booking.ID, "organisation has no payment gateway configured"); failErr != nil {
				log.Printf("Error failing unpayable booking %s: %v", booking.ID, failErr)
			}
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "This organisation has not configured online payments yet.",
				"code":  "MISSING_CREDENTIALS",
			})
		}
		log.Printf("🔥 Failed to build gateway redirect for booking %s: %v", booking.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment could not be initiated, please try again."})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"booking":  booking,
		"redirect": redirect,
	})
}

// GetBooking backs the post-gateway polling flow: the client returns from
// Payfast while the booking may still be pending and polls here (or listens
// on the websocket) for the final state.
func GetBooking(c *fiber.Ctx) error {
	bookingID := c.Params("bookingId")
	if _, err := uuid.Parse(bookingID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	var booking models.Booking
	if err := database.DB.Preload("ClassSlot").First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(booking)
}

func CancelBooking(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("bookingId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	booking, err := services.Bookings.Cancel(bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
		}
		if errors.Is(err, services.ErrInvalidTransition) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Only pending or confirmed bookings can be cancelled.",
			})
		}
		log.Printf("🔥 Failed to cancel booking %s: %v", bookingID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to cancel booking"})
	}

	return c.JSON(fiber.Map{"message": "Booking cancelled successfully.", "booking": booking})
}

type MoveBookingRequest struct {
	NewClassSlotID string `json:"new_class_slot_id" validate:"required,uuid"`
}

func MoveBooking(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("bookingId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID format"})
	}

	var req MoveBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	newSlotID, _ := uuid.Parse(req.NewClassSlotID)

	newBooking, err := services.Bookings.Move(bookingID, newSlotID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking or target class not found"})
		case errors.Is(err, services.ErrInvalidTransition):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Only confirmed bookings can be moved.",
				"code":  "NOT_CONFIRMED",
			})
		case errors.Is(err, services.ErrPriceMismatch):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "The target class has a different price.",
				"code":  "PRICE_MISMATCH",
			})
		case errors.Is(err, services.ErrClassStarted):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "The target class has already started.",
				"code":  "CLASS_STARTED",
			})
		case errors.Is(err, services.ErrSlotFull):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "The target class is full.",
				"code":  "SLOT_FULL",
			})
		}
		log.Printf("🔥 Failed to move booking %s: %v", bookingID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to move booking"})
	}

	return c.JSON(fiber.Map{"message": "Booking moved successfully.", "booking": newBooking})
}
