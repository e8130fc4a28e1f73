package services

import (
	"log"
	"time"

	config "github.com/itsbooked/sports_booking/configs"
	"github.com/itsbooked/sports_booking/websocket"
	"gorm.io/gorm"
)

var (
	Ledger     *SlotLedger
	Bookings   *BookingService
	Reconciler *ReconciliationService
)

// Setup wires the booking core against the live database and realtime hub.
// Called once from main after the database connection is established.
func Setup(db *gorm.DB, hub *websocket.Hub) {
	ttl := config.ConfigDuration("RESERVATION_TTL_MINUTES", time.Minute, 15*time.Minute)
	dedupeWindow := config.ConfigDuration("NOTIFICATION_DEDUPE_HOURS", time.Hour, 48*time.Hour)

	Ledger = NewSlotLedger(db, ttl)
	Bookings = NewBookingService(db, Ledger, hub)
	Reconciler = NewReconciliationService(db, Bookings, dedupeWindow)

	log.Printf("✅ Booking services ready (reservation TTL %s, dedupe window %s)", ttl, dedupeWindow)
}
