package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ClassSlot struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OrganizationID uuid.UUID `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	CoachName      string    `gorm:"size:255" json:"coach_name"`
	Location       string    `gorm:"size:255" json:"location"`
	StartTime      time.Time `gorm:"not null" json:"start_time"`
	EndTime        time.Time `gorm:"not null" json:"end_time"`

	Capacity       int `gorm:"not null" json:"capacity"`
	CommittedCount int `gorm:"not null;default:0" json:"committed_count"`
	ReservedCount  int `gorm:"not null;default:0" json:"reserved_count"`

	Price    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Currency string          `gorm:"size:3;not null;default:'ZAR'" json:"currency"`

	Organization Organization `gorm:"foreignkey:OrganizationID" json:"organization,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *ClassSlot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AvailableSpots is what clients render; reserved holds count against it.
func (s *ClassSlot) AvailableSpots() int {
	return s.Capacity - s.CommittedCount - s.ReservedCount
}
