package models

import (
	"fmt"
	"parkbook/src/types"
	"time"

	"github.com/google/uuid"
)

// PaymentHold tracks the pre-authorization placed against the renter's payment
// method when the booking request was made. It is mutated exclusively through
// the payments manager; capturedAmount never exceeds AuthorizedAmount and a
// terminal state is never left.
type PaymentHold struct {
	ProcessorHoldId  *string         `json:"processor_hold_id,omitempty"`
	AuthorizedAmount int64           `json:"authorized_amount"`
	CapturedAmount   int64           `json:"captured_amount"`
	Currency         string          `json:"currency,omitempty"`
	State            types.HoldState `gorm:"default:'requested'" json:"state"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	ExtensionCount   uint8           `json:"extension_count"`

	// PendingCaptureAmount is set when a capture attempt ended with an
	// unknown outcome. The sweep will not expire such a hold before reading
	// the processor-side state back.
	PendingCaptureAmount *int64 `json:"pending_capture_amount,omitempty"`
}

// NotificationSchedule carries the monthly anniversary check-in bookkeeping
// for a confirmed booking. AnchorDay is the day-of-month the booking started
// on; shorter months clamp to their last day.
type NotificationSchedule struct {
	AnchorDay   int        `json:"anchor_day"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	FiredCount  uint       `json:"fired_count"`
}

type Booking struct {
	ID       uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	RenterID uint      `json:"renter_id,omitempty"`
	SpaceRef string    `json:"space_ref,omitempty"`
	Zone     string    `json:"zone,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   types.BookingStatus `gorm:"default:'pending'" json:"status,omitempty"`

	// Version guards every read-modify-write on the record. A transition only
	// persists if the row still carries the version it was read at.
	Version uint `json:"-"`

	Payment      PaymentHold          `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Notification NotificationSchedule `gorm:"embedded;embeddedPrefix:notify_" json:"notification"`

	Renter  *User          `gorm:"foreignKey:renter_id" json:"renter,omitempty"`
	Threads []*MessageThread `gorm:"foreignKey:booking_id" json:"threads,omitempty"`

	types.Timestamps
}

// Window reports whether t falls inside the booking's reserved time window,
// boundaries included.
func (b *Booking) Window(t time.Time) bool {
	return !t.Before(b.StartsAt) && !t.After(b.EndsAt)
}

// RenterRef is the opaque recipient handle handed to the mail queue. The mail
// worker resolves it to an address so booking records never carry one.
func (b *Booking) RenterRef() string {
	return fmt.Sprintf("renter:%d", b.RenterID)
}
