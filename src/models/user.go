package models

import (
	"parkbook/src/types"
)

type User struct {
	ID            uint   `gorm:"primarykey" json:"id"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`

	Bookings []Booking `gorm:"foreignKey:renter_id" json:"bookings,omitempty"`

	types.Timestamps
}
