// Package store owns every booking record together with its embedded payment
// hold and notification schedule. All mutation funnels through
// ApplyTransition, an atomic read-modify-write guarded by a per-record
// version; a losing concurrent writer gets ErrConflict and decides for itself
// whether to retry. Successful transitions are published as domain events so
// dashboards subscribe instead of polling.
package store

import (
	"context"
	"errors"
	"time"

	"parkbook/src/models"
	"parkbook/src/types"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record was modified concurrently")
)

const (
	TOPIC_BOOKING_TRANSITIONS = "BookingTransitions"
)

// TransitionFn mutates a booking snapshot. It must be pure with respect to
// the store: returning an error leaves the record untouched.
type TransitionFn func(b *models.Booking) error

type Filter struct {
	RenterID      *uint
	Status        *types.BookingStatus
	EndsOnOrAfter *time.Time
	HoldActive    bool
	HoldExpiresBy *time.Time
}

type Store interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, f Filter) ([]models.Booking, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, fn TransitionFn) (*models.Booking, error)
	// Delete removes the booking and every dependent record (threads,
	// messages) in one transaction. Partial cascade is a failure.
	Delete(ctx context.Context, id uuid.UUID) error

	CreateThread(ctx context.Context, t *models.MessageThread) error
	Thread(ctx context.Context, id uuid.UUID) (*models.MessageThread, error)
	ThreadsForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.MessageThread, error)
	AppendMessage(ctx context.Context, threadID uuid.UUID, m *models.Message) error
	// ActiveThreads returns every non-expired thread with its booking
	// attached, for the stale-thread sweep.
	ActiveThreads(ctx context.Context) ([]models.MessageThread, error)
	ExpireThread(ctx context.Context, id uuid.UUID) error
}

// Publisher receives a domain event for every successful transition.
// Implementations live in lib (kafka locally, SQS elsewhere).
type Publisher interface {
	Publish(topic string, payload types.JSONB) error
}

// RetryOnConflict re-runs fn while it keeps losing the optimistic-concurrency
// race, up to attempts tries. Any other error is returned as-is.
func RetryOnConflict(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

func transitionEvent(b *models.Booking) types.JSONB {
	return types.JSONB{
		"booking_id": b.ID.String(),
		"status":     string(b.Status),
		"hold_state": string(b.Payment.State),
		"version":    b.Version,
	}
}
