package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/itsbooked/sports_booking/database"
	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/notifications"
	"github.com/itsbooked/sports_booking/websocket"
)

func SendClassReminders() {
	log.Println("Running job: SendClassReminders...")

	now := time.Now()
	lowerBound := now.Add(60 * time.Minute)
	upperBound := now.Add(65 * time.Minute)

	var upcomingBookings []models.Booking

	err := database.DB.
		Preload("ClassSlot").
		Where("bookings.status = ? AND class_slots.start_time BETWEEN ? AND ?", models.BookingConfirmed, lowerBound, upperBound).
		Joins("JOIN class_slots on bookings.class_slot_id = class_slots.id").
		Find(&upcomingBookings).Error

	if err != nil {
		log.Printf("Error checking for upcoming classes: %v", err)
		return
	}

	if len(upcomingBookings) == 0 {
		return
	}

	for _, booking := range upcomingBookings {
		log.Printf("Sending reminder for booking ID: %s", booking.ID)

		if booking.UserID != nil {
			websocket.DefaultHub.Publish(websocket.Event{
				Type:  websocket.EventClassReminder,
				Scope: websocket.UserScope(*booking.UserID),
				Payload: map[string]interface{}{
					"booking_id":    booking.ID,
					"class_slot_id": booking.ClassSlotID,
					"class_name":    booking.ClassSlot.Name,
					"start_time":    booking.ClassSlot.StartTime,
				},
			})
		}

		emailSubject := "Reminder: Your Class Starts in 1 Hour!"
		emailBody := fmt.Sprintf(
			"<h1>Class Reminder</h1><p>Hi %s,</p><p>This is a friendly reminder that %s starts at %s.</p><p><b>Location:</b> %s</p>",
			booking.ParticipantName,
			booking.ClassSlot.Name,
			booking.ClassSlot.StartTime.Format(time.Kitchen),
			booking.ClassSlot.Location,
		)

		go notifications.SendEmail(booking.ParticipantName, booking.ParticipantEmail, emailSubject, emailBody)
	}
}
