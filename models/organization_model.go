package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Organization struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	ContactEmail string    `gorm:"size:255" json:"contact_email"`

	PayfastMerchantID  string `gorm:"size:50" json:"-"`
	PayfastMerchantKey string `gorm:"size:50" json:"-"`
	PayfastPassphrase  string `gorm:"size:255" json:"-"`
	PayfastSandbox     bool   `gorm:"default:true" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
