package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/itsbooked/sports_booking/database"
	"github.com/itsbooked/sports_booking/models"
)

func ListClasses(c *fiber.Ctx) error {
	query := database.DB.Where("start_time > ?", time.Now()).Order("start_time asc")

	if rawOrgID := c.Query("organization_id"); rawOrgID != "" {
		orgID, err := uuid.Parse(rawOrgID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid organization ID format"})
		}
		query = query.Where("organization_id = ?", orgID)
	}

	var slots []models.ClassSlot
	if err := query.Find(&slots).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch classes"})
	}

	type classWithAvailability struct {
		models.ClassSlot
		AvailableSpots int `json:"available_spots"`
	}
	result := make([]classWithAvailability, 0, len(slots))
	for _, slot := range slots {
		result = append(result, classWithAvailability{ClassSlot: slot, AvailableSpots: slot.AvailableSpots()})
	}

	return c.JSON(result)
}

// GetClassAvailability is the synchronous re-sync path for realtime clients:
// the websocket only carries incremental deltas, so a reconnecting client
// fetches current counts here before resubscribing.
func GetClassAvailability(c *fiber.Ctx) error {
	classID := c.Params("classId")
	if _, err := uuid.Parse(classID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid class ID format"})
	}

	var slot models.ClassSlot
	if err := database.DB.First(&slot, "id = ?", classID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Class not found"})
	}

	return c.JSON(fiber.Map{
		"class_slot_id":   slot.ID,
		"capacity":        slot.Capacity,
		"committed_count": slot.CommittedCount,
		"reserved_count":  slot.ReservedCount,
		"available_spots": slot.AvailableSpots(),
	})
}
