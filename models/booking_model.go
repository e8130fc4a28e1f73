package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingFailed    = "failed"
	BookingMoved     = "moved"
)

type Booking struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ClassSlotID    uuid.UUID  `gorm:"not null;index" json:"class_slot_id"`
	OrganizationID uuid.UUID  `gorm:"not null;index" json:"organization_id"`
	UserID         *uuid.UUID `json:"user_id"`

	ParticipantName  string `gorm:"size:255;not null" json:"participant_name"`
	ParticipantEmail string `gorm:"size:255;not null" json:"participant_email"`
	ParticipantPhone string `gorm:"size:30" json:"participant_phone"`

	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null;default:'ZAR'" json:"currency"`
	PaymentMethod string          `gorm:"size:20;not null;default:'payfast'" json:"payment_method"`
	Status        string          `gorm:"size:20;not null;default:'pending'" json:"status"`

	// PaymentReference goes to the gateway as m_payment_id and is how
	// asynchronous notifications find their way back to this booking.
	PaymentReference string  `gorm:"size:20;not null;unique" json:"payment_reference"`
	GatewayPaymentID *string `gorm:"size:255" json:"gateway_payment_id"`

	ReservationToken *uuid.UUID `json:"-"`
	ReserveExpiresAt *time.Time `gorm:"index" json:"-"`

	FailureReason    *string    `gorm:"type:text" json:"failure_reason"`
	MovedToBookingID *uuid.UUID `json:"moved_to_booking_id"`
	ResolvedAt       *time.Time `json:"resolved_at"`

	ClassSlot ClassSlot `gorm:"foreignkey:ClassSlotID" json:"class_slot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the booking can accept no further transitions
// other than confirmed -> cancelled/moved.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingCancelled || b.Status == BookingFailed || b.Status == BookingMoved
}
