package models

import (
	"parkbook/src/types"

	"github.com/google/uuid"
)

type MessageThread struct {
	ID        uuid.UUID          `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	BookingID uuid.UUID          `gorm:"type:uuid" json:"booking_id"`
	Status    types.ThreadStatus `gorm:"default:'active'" json:"status,omitempty"`

	Booking  *Booking   `gorm:"foreignKey:booking_id" json:"booking,omitempty"`
	Messages []*Message `gorm:"foreignKey:thread_id" json:"messages,omitempty"`

	types.Timestamps
}

type Message struct {
	ID       uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid" json:"thread_id"`
	SenderID uint      `json:"sender_id,omitempty"`
	Body     string    `json:"body,omitempty"`

	types.Timestamps
}
