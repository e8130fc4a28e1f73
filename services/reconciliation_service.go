package services

import (
	"errors"
	"log"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/payments"
	"gorm.io/gorm"
)

// ReconciliationService consumes verified payment notifications and drives
// booking transitions. Callbacks arrive duplicated, delayed and out of
// order; everything here is written to be re-delivered safely.
type ReconciliationService struct {
	db       *gorm.DB
	bookings *BookingService
	seen     *cache.Cache
}

func NewReconciliationService(db *gorm.DB, bookings *BookingService, dedupeWindow time.Duration) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		bookings: bookings,
		seen:     cache.New(dedupeWindow, time.Hour),
	}
}

// Handle applies at most one state transition for the notification. A
// repeated pf_payment_id inside the dedupe window, an unknown booking
// reference and an already-resolved booking are all successful no-ops.
func (r *ReconciliationService) Handle(n *payments.Notification) error {
	if n.PfPaymentID != "" {
		if _, duplicate := r.seen.Get(n.PfPaymentID); duplicate {
			log.Printf("Duplicate Payfast notification %s ignored", n.PfPaymentID)
			return nil
		}
	}
	markSeen := func() {
		if n.PfPaymentID != "" {
			r.seen.SetDefault(n.PfPaymentID, true)
		}
	}

	var booking models.Booking
	if err := r.db.First(&booking, "payment_reference = ?", n.MPaymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Payfast notification %s references unknown payment %q", n.PfPaymentID, n.MPaymentID)
			markSeen()
			return nil
		}
		return err
	}

	if booking.Status != models.BookingPending {
		log.Printf("Payfast notification %s for booking %s ignored, booking already %s", n.PfPaymentID, booking.ID, booking.Status)
		markSeen()
		return nil
	}

	switch n.PaymentStatus {
	case payments.StatusComplete:
		if !n.AmountGross.Equal(booking.Amount) {
			log.Printf("🔥 Amount mismatch for booking %s: gateway reported %s, booking holds %s",
				booking.ID, n.AmountGross.StringFixed(2), booking.Amount.StringFixed(2))
			if _, err := r.bookings.Fail(booking.ID, ErrAmountMismatch.Error()); err != nil && !errors.Is(err, ErrInvalidTransition) {
				return err
			}
			markSeen()
			return ErrAmountMismatch
		}

		_, err := r.bookings.Confirm(booking.ID, n.PfPaymentID)
		if errors.Is(err, ErrInvalidTransition) {
			// Lost a race with another transition; re-delivery is a no-op.
			markSeen()
			return nil
		}
		if errors.Is(err, ErrInvalidToken) {
			log.Printf("🔥 Payment %s completed after reservation for booking %s expired", n.PfPaymentID, booking.ID)
			if _, failErr := r.bookings.Fail(booking.ID, "reservation expired before payment completed"); failErr != nil && !errors.Is(failErr, ErrInvalidTransition) {
				return failErr
			}
			markSeen()
			return nil
		}
		if err != nil {
			return err
		}
		markSeen()
		return nil

	case payments.StatusFailed, payments.StatusCancelled:
		if _, err := r.bookings.Fail(booking.ID, "gateway reported "+n.PaymentStatus); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
		markSeen()
		return nil

	default:
		// Payfast also emits intermediate statuses (e.g. PENDING); they carry
		// no transition, and the eventual terminal callback must not be
		// treated as a duplicate.
		log.Printf("Payfast notification %s with status %q ignored", n.PfPaymentID, n.PaymentStatus)
		return nil
	}
}
