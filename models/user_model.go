package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	FullName       string     `gorm:"size:255;not null" json:"full_name"`
	Email          string     `gorm:"size:255;not null;unique" json:"email"`
	Password       string     `gorm:"not null" json:"-"`
	Role           string     `gorm:"size:20;not null;default:'member'" json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id"`

	Organization Organization `gorm:"foreignkey:OrganizationID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
