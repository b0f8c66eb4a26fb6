package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

type BookingStatus string

const (
	BOOKING_PENDING   BookingStatus = "pending"
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_CANCELLED BookingStatus = "cancelled"
	BOOKING_COMPLETED BookingStatus = "completed"
)

type HoldState string

const (
	HOLD_REQUESTED          HoldState = "requested"
	HOLD_AUTHORIZED         HoldState = "authorized"
	HOLD_EXTENDED           HoldState = "extended"
	HOLD_CAPTURED           HoldState = "captured"
	HOLD_PARTIALLY_CAPTURED HoldState = "partially_captured"
	HOLD_RELEASED           HoldState = "released"
	HOLD_EXPIRED            HoldState = "expired"
)

// Terminal reports whether the hold has reached a state no transition may
// leave.
func (s HoldState) Terminal() bool {
	switch s {
	case HOLD_CAPTURED, HOLD_PARTIALLY_CAPTURED, HOLD_RELEASED, HOLD_EXPIRED:
		return true
	}
	return false
}

// Active reports whether the hold can still be extended, captured or released.
func (s HoldState) Active() bool {
	return s == HOLD_AUTHORIZED || s == HOLD_EXTENDED
}

type ThreadStatus string

const (
	THREAD_ACTIVE  ThreadStatus = "active"
	THREAD_EXPIRED ThreadStatus = "expired"
)

type CreateBookingRequestBody struct {
	SpaceRef         string `json:"space_ref" binding:"required"`
	Zone             string `json:"zone,omitempty"`
	StartsAt         string `json:"starts_at" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	EndsAt           string `json:"ends_at" binding:"required,bookabledate,gtdate=StartsAt" time_format:"2006-01-02 15:04:05 -07:00"`
	Amount           int64  `json:"amount" binding:"required,gt=0"`
	Currency         string `json:"currency" binding:"required,len=3"`
	PaymentMethodRef string `json:"payment_method_ref" binding:"required"`
}

type CaptureRequestBody struct {
	Amount *int64 `json:"amount,omitempty" binding:"omitempty,gt=0"`
}

type ExtendRequestBody struct {
	Days int `json:"days,omitempty" binding:"omitempty,gt=0,lte=30"`
}

type PostMessageRequestBody struct {
	Body string `json:"body" binding:"required,max=4000"`
}

type BookingIDParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type BookingQueryFilters struct {
	Status string `form:"status,omitempty" binding:"omitempty,oneof=pending confirmed cancelled completed"`
}

type Claims struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

type Handler func(payload string)
