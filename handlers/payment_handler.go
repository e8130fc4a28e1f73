package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	config "github.com/itsbooked/sports_booking/configs"
	"github.com/itsbooked/sports_booking/database"
	"github.com/itsbooked/sports_booking/models"
	"github.com/itsbooked/sports_booking/payments"
	"github.com/itsbooked/sports_booking/services"
)

// HandlePayfastNotify processes the asynchronous ITN callback. Payfast keeps
// retrying anything that is not a 200, so the response is an acknowledgement
// regardless of the internal outcome; failures are logged, never surfaced.
func HandlePayfastNotify(c *fiber.Ctx) error {
	notification, err := payments.ParseNotification(string(c.Body()))
	if err != nil {
		log.Printf("🔥 Cannot parse Payfast notification: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	log.Printf("Received Payfast notification pf_payment_id=%s m_payment_id=%s status=%s",
		notification.PfPaymentID, notification.MPaymentID, notification.PaymentStatus)

	var booking models.Booking
	if err := database.DB.First(&booking, "payment_reference = ?", notification.MPaymentID).Error; err != nil {
		log.Printf("Payfast notification references unknown payment %q", notification.MPaymentID)
		return c.SendStatus(fiber.StatusOK)
	}

	var org models.Organization
	if err := database.DB.First(&org, "id = ?", booking.OrganizationID).Error; err != nil {
		log.Printf("🔥 Organisation %s missing for booking %s", booking.OrganizationID, booking.ID)
		return c.SendStatus(fiber.StatusOK)
	}

	if err := payments.VerifySignature(notification, org.PayfastPassphrase); err != nil {
		log.Printf("🔥 SECURITY: invalid Payfast signature for booking %s (pf_payment_id=%s)",
			booking.ID, notification.PfPaymentID)
		return c.SendStatus(fiber.StatusOK)
	}

	if config.Config("PAYFAST_SERVER_VALIDATE") == "true" && notification.PfPaymentID != "" {
		valid, err := payments.ValidateWithGateway(notification.PfPaymentID, org.PayfastSandbox)
		if err != nil {
			log.Printf("Payfast server validation inconclusive for %s: %v", notification.PfPaymentID, err)
		} else if !valid {
			log.Printf("🔥 SECURITY: Payfast rejected transaction %s for booking %s",
				notification.PfPaymentID, booking.ID)
			return c.SendStatus(fiber.StatusOK)
		}
	}

	if err := services.Reconciler.Handle(notification); err != nil {
		log.Printf("🔥 Error reconciling Payfast notification %s: %v", notification.PfPaymentID, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
