package jobs

import (
	"errors"
	"log"
	"time"

	"github.com/itsbooked/sports_booking/database"
	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/services"
)

// SweepExpiredReservations fails pending bookings whose reservation lapsed,
// releasing their held spots. The sweep re-checks booking state under the
// per-booking lock, so it can run concurrently with live traffic and with
// itself.
func SweepExpiredReservations() {
	log.Println("Running job: SweepExpiredReservations...")

	now := time.Now()
	var expired []models.Booking

	err := database.DB.
		Where("status = ? AND reserve_expires_at IS NOT NULL AND reserve_expires_at < ?", models.BookingPending, now).
		Find(&expired).Error
	if err != nil {
		log.Printf("Error querying expired reservations: %v", err)
		return
	}

	swept := 0
	for _, booking := range expired {
		if _, err := services.Bookings.Fail(booking.ID, "reservation expired"); err != nil {
			if errors.Is(err, services.ErrInvalidTransition) {
				// Resolved between the query and the lock; nothing to do.
				continue
			}
			log.Printf("Error sweeping expired booking %s: %v", booking.ID, err)
			continue
		}
		swept++
	}

	if swept > 0 {
		log.Printf("Swept %d expired booking(s) to failed.", swept)
	}

	if released := services.Ledger.ReleaseExpired(); len(released) > 0 {
		log.Printf("Released %d orphaned reservation hold(s).", len(released))
	}
}
