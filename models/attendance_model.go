package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Attendance struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ClassSlotID uuid.UUID  `gorm:"not null;index" json:"class_slot_id"`
	BookingID   uuid.UUID  `gorm:"not null;uniqueIndex" json:"booking_id"`
	Status      string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	MarkedAt    *time.Time `json:"marked_at"`
	MarkedBy    *uuid.UUID `json:"marked_by"`

	Booking Booking `gorm:"foreignkey:BookingID" json:"booking,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Attendance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
