package utils

import (
	"math/rand"
	"time"

	"github.com/itsbooked/sports_booking/models"
	"gorm.io/gorm"
)

const paymentReferenceLength = 10
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUniquePaymentReference produces the m_payment_id sent to the
// payment gateway. Uniqueness is what lets asynchronous notifications find
// their booking, so collisions are retried against the bookings table.
func GenerateUniquePaymentReference(tx *gorm.DB) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		b := make([]byte, paymentReferenceLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		ref := "BK" + string(b)

		var booking models.Booking
		err := tx.Where("payment_reference = ?", ref).First(&booking).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ref, nil
			}
			return "", err
		}
	}
}
