package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/notifications"
	"github.com/itsbooked/sports_booking/utils"
	"github.com/itsbooked/sports_booking/websocket"
	"gorm.io/gorm"
)

type Participant struct {
	Name  string
	Email string
	Phone string
}

// BookingService owns the booking lifecycle: pending -> confirmed/failed/
// cancelled, confirmed -> cancelled/moved. Every transition runs under a
// per-booking mutex and re-checks the stored state, so concurrent callbacks
// and admin actions cannot double-apply.
type BookingService struct {
	db     *gorm.DB
	ledger *SlotLedger
	hub    *websocket.Hub

	mu           sync.Mutex
	bookingLocks map[uuid.UUID]*sync.Mutex
}

func NewBookingService(db *gorm.DB, ledger *SlotLedger, hub *websocket.Hub) *BookingService {
	return &BookingService{
		db:           db,
		ledger:       ledger,
		hub:          hub,
		bookingLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *BookingService) Ledger() *SlotLedger {
	return s.ledger
}

func (s *BookingService) bookingLock(bookingID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.bookingLocks[bookingID]
	if !ok {
		lock = &sync.Mutex{}
		s.bookingLocks[bookingID] = lock
	}
	return lock
}

// Book reserves a spot and creates the pending booking behind it. If the
// booking row cannot be written the reservation is released again, so a
// failed call leaves no trace in either place.
func (s *BookingService) Book(slot *models.ClassSlot, participant Participant, userID *uuid.UUID) (*models.Booking, error) {
	token, err := s.ledger.Reserve(slot.ID)
	if err != nil {
		return nil, err
	}

	reference, err := utils.GenerateUniquePaymentReference(s.db)
	if err != nil {
		s.ledger.Release(token.ID, nil)
		return nil, err
	}

	booking := models.Booking{
		ClassSlotID:      slot.ID,
		OrganizationID:   slot.OrganizationID,
		UserID:           userID,
		ParticipantName:  participant.Name,
		ParticipantEmail: participant.Email,
		ParticipantPhone: participant.Phone,
		Amount:           slot.Price,
		Currency:         slot.Currency,
		Status:           models.BookingPending,
		PaymentReference: reference,
		ReservationToken: &token.ID,
		ReserveExpiresAt: &token.ExpiresAt,
	}
	if err := s.db.Create(&booking).Error; err != nil {
		s.ledger.Release(token.ID, nil)
		return nil, err
	}

	s.broadcastAvailability(slot.ID)
	return &booking, nil
}

// Confirm moves a pending booking to confirmed, committing its reservation.
// The counter move and the status flip share one transaction.
func (s *BookingService) Confirm(bookingID uuid.UUID, gatewayPaymentID string) (*models.Booking, error) {
	lock := s.bookingLock(bookingID)
	lock.Lock()
	defer lock.Unlock()

	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPending {
		return nil, ErrInvalidTransition
	}
	if booking.ReservationToken == nil || booking.ReserveExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	now := time.Now()
	_, err := s.ledger.CommitReserved(*booking.ReservationToken, booking.ClassSlotID, *booking.ReserveExpiresAt, func(tx *gorm.DB) error {
		booking.Status = models.BookingConfirmed
		booking.GatewayPaymentID = &gatewayPaymentID
		booking.ResolvedAt = &now
		return tx.Save(&booking).Error
	})
	if err != nil {
		return nil, err
	}

	s.broadcastAvailability(booking.ClassSlotID)
	s.broadcastBooking(&booking, "confirmed")
	go notifications.SendEmail(booking.ParticipantName, booking.ParticipantEmail,
		"Your Booking is Confirmed!",
		"<h1>Booking Confirmed</h1><p>Your payment was received and your spot in the class is secured.</p>")

	return &booking, nil
}

// Fail resolves a pending booking whose payment did not complete, releasing
// the reserved spot.
func (s *BookingService) Fail(bookingID uuid.UUID, reason string) (*models.Booking, error) {
	lock := s.bookingLock(bookingID)
	lock.Lock()
	defer lock.Unlock()

	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPending {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	update := func(tx *gorm.DB) error {
		booking.Status = models.BookingFailed
		booking.FailureReason = &reason
		booking.ResolvedAt = &now
		return tx.Save(&booking).Error
	}

	if booking.ReservationToken != nil {
		if _, err := s.ledger.ReleaseReserved(*booking.ReservationToken, booking.ClassSlotID, update); err != nil {
			return nil, err
		}
	} else if err := s.db.Transaction(update); err != nil {
		return nil, err
	}

	s.broadcastAvailability(booking.ClassSlotID)
	s.broadcastBooking(&booking, "failed")
	return &booking, nil
}

// Cancel is legal from pending and confirmed. A pending cancel gives back
// the transient hold; a confirmed cancel frees a committed spot.
func (s *BookingService) Cancel(bookingID uuid.UUID) (*models.Booking, error) {
	lock := s.bookingLock(bookingID)
	lock.Lock()
	defer lock.Unlock()

	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", bookingID).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	update := func(tx *gorm.DB) error {
		booking.Status = models.BookingCancelled
		booking.ResolvedAt = &now
		return tx.Save(&booking).Error
	}

	switch booking.Status {
	case models.BookingPending:
		if booking.ReservationToken != nil {
			if _, err := s.ledger.ReleaseReserved(*booking.ReservationToken, booking.ClassSlotID, update); err != nil {
				return nil, err
			}
		} else if err := s.db.Transaction(update); err != nil {
			return nil, err
		}
	case models.BookingConfirmed:
		if _, err := s.ledger.ReleaseCommitted(booking.ClassSlotID, update); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidTransition
	}

	s.broadcastAvailability(booking.ClassSlotID)
	s.broadcastBooking(&booking, "cancelled")
	return &booking, nil
}

// Move rebooks a confirmed booking onto another slot at the same price. The
// original booking amount is never mutated; the old booking becomes a moved
// tombstone pointing at a fresh confirmed booking. If the target slot cannot
// take another spot the whole operation rolls back and the original booking
// is untouched.
func (s *BookingService) Move(bookingID, newSlotID uuid.UUID) (*models.Booking, error) {
	lock := s.bookingLock(bookingID)
	lock.Lock()
	defer lock.Unlock()

	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	if booking.Status != models.BookingConfirmed {
		return nil, ErrInvalidTransition
	}
	if booking.ClassSlotID == newSlotID {
		return nil, ErrInvalidTransition
	}

	var newSlot models.ClassSlot
	if err := s.db.First(&newSlot, "id = ?", newSlotID).Error; err != nil {
		return nil, err
	}
	if !newSlot.Price.Equal(booking.Amount) {
		return nil, ErrPriceMismatch
	}
	if !newSlot.StartTime.After(time.Now()) {
		return nil, ErrClassStarted
	}

	reference, err := utils.GenerateUniquePaymentReference(s.db)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var newBooking models.Booking
	_, _, err = s.ledger.TransferCommitted(booking.ClassSlotID, newSlotID, func(tx *gorm.DB, from, to *models.ClassSlot) error {
		newBooking = models.Booking{
			ClassSlotID:      to.ID,
			OrganizationID:   to.OrganizationID,
			UserID:           booking.UserID,
			ParticipantName:  booking.ParticipantName,
			ParticipantEmail: booking.ParticipantEmail,
			ParticipantPhone: booking.ParticipantPhone,
			Amount:           booking.Amount,
			Currency:         booking.Currency,
			PaymentMethod:    booking.PaymentMethod,
			Status:           models.BookingConfirmed,
			PaymentReference: reference,
			GatewayPaymentID: booking.GatewayPaymentID,
			ResolvedAt:       &now,
		}
		if err := tx.Create(&newBooking).Error; err != nil {
			return err
		}

		booking.Status = models.BookingMoved
		booking.MovedToBookingID = &newBooking.ID
		booking.ResolvedAt = &now
		return tx.Save(&booking).Error
	})
	if err != nil {
		return nil, err
	}

	s.broadcastAvailability(booking.ClassSlotID)
	s.broadcastAvailability(newSlot.ID)
	s.broadcastBooking(&newBooking, "moved")
	go notifications.SendEmail(newBooking.ParticipantName, newBooking.ParticipantEmail,
		"Your Booking Was Moved",
		fmt.Sprintf("<h1>Booking Moved</h1><p>Your booking has been moved to %s starting %s.</p>",
			newSlot.Name, newSlot.StartTime.Format(time.RFC1123)))

	return &newBooking, nil
}

func (s *BookingService) broadcastAvailability(slotID uuid.UUID) {
	if s.hub == nil {
		return
	}
	var slot models.ClassSlot
	if err := s.db.First(&slot, "id = ?", slotID).Error; err != nil {
		log.Printf("Error loading slot %s for availability broadcast: %v", slotID, err)
		return
	}
	payload := map[string]interface{}{
		"class_slot_id":   slot.ID,
		"available_spots": slot.AvailableSpots(),
		"capacity":        slot.Capacity,
	}
	s.hub.Publish(websocket.Event{
		Type:    websocket.EventAvailabilityUpdate,
		Scope:   websocket.OrgScope(slot.OrganizationID),
		Payload: payload,
	})
	s.hub.Publish(websocket.Event{
		Type:    websocket.EventAvailabilityUpdate,
		Scope:   websocket.ClassScope(slot.ID),
		Payload: payload,
	})
}

func (s *BookingService) broadcastBooking(booking *models.Booking, action string) {
	if s.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"booking_id":       booking.ID,
		"class_slot_id":    booking.ClassSlotID,
		"participant_name": booking.ParticipantName,
		"status":           booking.Status,
		"action":           action,
	}
	s.hub.Publish(websocket.Event{
		Type:    websocket.EventBookingNotification,
		Scope:   websocket.OrgScope(booking.OrganizationID),
		Payload: payload,
	})
	if booking.UserID != nil {
		s.hub.Publish(websocket.Event{
			Type:    websocket.EventBookingNotification,
			Scope:   websocket.UserScope(*booking.UserID),
			Payload: payload,
		})
	}
}
