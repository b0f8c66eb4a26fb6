// Package bookings translates administrator decisions and time into booking
// status. Transition legality is checked in exactly one place, inside the
// store's atomic read-modify-write, instead of being re-derived by every
// caller.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"parkbook/src/models"
	"parkbook/src/payments"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("booking cannot change to the requested status from its current status")
	ErrInvalidWindow     = errors.New("booking window must end after it starts")
)

// conflictRetries bounds the transparent retry on optimistic-concurrency
// collisions for administrator actions.
const conflictRetries = 3

const (
	TEMPLATE_BOOKING_APPROVED = "booking-approved"
	TEMPLATE_BOOKING_REJECTED = "booking-rejected"
)

// Mailer is the fire-and-forget notification collaborator. Failures are
// logged by the coordinator and never block a transition.
type Mailer interface {
	Send(templateId string, recipient string, vars types.JSONB) error
}

type CreateInput struct {
	RenterID         uint
	SpaceRef         string
	Zone             string
	StartsAt         time.Time
	EndsAt           time.Time
	Amount           int64
	Currency         string
	PaymentMethodRef string
}

type Coordinator struct {
	store    store.Store
	payments *payments.Manager
	mailer   Mailer

	Now func() time.Time
}

func NewCoordinator(s store.Store, p *payments.Manager, m Mailer) *Coordinator {
	return &Coordinator{
		store:    s,
		payments: p,
		mailer:   m,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) notify(templateId string, b *models.Booking) {
	if c.mailer == nil {
		return
	}
	go func() {
		err := c.mailer.Send(templateId, b.RenterRef(), types.JSONB{
			"booking_id": b.ID.String(),
			"space_ref":  b.SpaceRef,
			"status":     string(b.Status),
		})
		if err != nil {
			log.Printf("[bookings] Error sending %s mail for %s: %s\n", templateId, b.ID, err.Error())
		}
	}()
}

// Create registers the booking request and places the payment hold. A
// declined authorization removes the draft again so no unfunded pending
// booking survives.
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	if !in.EndsAt.After(in.StartsAt) {
		return nil, ErrInvalidWindow
	}
	b := &models.Booking{
		RenterID: in.RenterID,
		SpaceRef: in.SpaceRef,
		Zone:     in.Zone,
		StartsAt: in.StartsAt.UTC(),
		EndsAt:   in.EndsAt.UTC(),
		Status:   types.BOOKING_PENDING,
		Payment: models.PaymentHold{
			AuthorizedAmount: in.Amount,
			Currency:         in.Currency,
			State:            types.HOLD_REQUESTED,
		},
		Notification: models.NotificationSchedule{
			AnchorDay: in.StartsAt.UTC().Day(),
		},
	}
	if err := c.store.Create(ctx, b); err != nil {
		return nil, err
	}
	if _, err := c.payments.Authorize(ctx, b.ID, in.PaymentMethodRef); err != nil {
		if errors.Is(err, payments.ErrOutcomeUnknown) {
			// funds may be held at the processor; keep the record so the
			// sweep can reconcile instead of orphaning the hold
			return nil, err
		}
		if derr := c.store.Delete(ctx, b.ID); derr != nil {
			log.Printf("[bookings] Error removing declined booking %s: %s\n", b.ID, derr.Error())
		}
		return nil, err
	}
	return c.store.Get(ctx, b.ID)
}

// Approve confirms a pending booking. Funds are not captured here; capture is
// an independent administrator action against the payments manager.
func (c *Coordinator) Approve(ctx context.Context, id uuid.UUID, adminId uint) (*models.Booking, error) {
	var out *models.Booking
	err := store.RetryOnConflict(conflictRetries, func() error {
		b, err := c.store.ApplyTransition(ctx, id, func(b *models.Booking) error {
			if b.Status != types.BOOKING_PENDING {
				return ErrInvalidTransition
			}
			if !b.Payment.State.Active() {
				// an expired or released hold cannot back a confirmation
				return ErrInvalidTransition
			}
			b.Status = types.BOOKING_CONFIRMED
			return nil
		})
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[bookings] Booking %s approved by admin %d\n", id, adminId)
	c.notify(TEMPLATE_BOOKING_APPROVED, out)
	return out, nil
}

// Reject cancels a pending booking and releases its hold.
func (c *Coordinator) Reject(ctx context.Context, id uuid.UUID, adminId uint) (*models.Booking, error) {
	b, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != types.BOOKING_PENDING {
		return nil, ErrInvalidTransition
	}
	if _, err := c.payments.Release(ctx, id); err != nil && !errors.Is(err, payments.ErrAlreadyFinalized) {
		return nil, err
	}
	// a hold that already expired on its own is as good as released; anything
	// captured blocks the rejection
	cur, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Payment.State != types.HOLD_RELEASED && cur.Payment.State != types.HOLD_EXPIRED {
		return nil, ErrInvalidTransition
	}
	var out *models.Booking
	err = store.RetryOnConflict(conflictRetries, func() error {
		b, err := c.store.ApplyTransition(ctx, id, func(b *models.Booking) error {
			if b.Status != types.BOOKING_PENDING {
				return ErrInvalidTransition
			}
			b.Status = types.BOOKING_CANCELLED
			return nil
		})
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[bookings] Booking %s rejected by admin %d\n", id, adminId)
	c.notify(TEMPLATE_BOOKING_REJECTED, out)
	return out, nil
}

// DeleteBooking hard-removes a booking with every dependent record. The
// cascade is all-or-nothing; an active hold is voided at the processor first
// and a failure there aborts the whole delete.
func (c *Coordinator) DeleteBooking(ctx context.Context, id uuid.UUID, adminId uint) error {
	b, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !b.Payment.State.Terminal() {
		if _, err := c.payments.Release(ctx, id); err != nil && !errors.Is(err, payments.ErrAlreadyFinalized) {
			return fmt.Errorf("releasing hold before delete: %w", err)
		}
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[bookings] Booking %s deleted by admin %d\n", id, adminId)
	return nil
}

// CancelExpired is the downstream cleanup for holds the sweep expired. It is
// idempotent; a booking that already moved on is left alone.
func (c *Coordinator) CancelExpired(ctx context.Context, id uuid.UUID) error {
	return store.RetryOnConflict(conflictRetries, func() error {
		_, err := c.store.ApplyTransition(ctx, id, func(b *models.Booking) error {
			if b.Payment.State != types.HOLD_EXPIRED {
				return ErrInvalidTransition
			}
			if b.Status != types.BOOKING_PENDING && b.Status != types.BOOKING_CONFIRMED {
				return ErrInvalidTransition
			}
			b.Status = types.BOOKING_CANCELLED
			return nil
		})
		if errors.Is(err, ErrInvalidTransition) {
			return nil
		}
		return err
	})
}

// CompleteElapsed marks confirmed bookings whose window has ended as
// completed. Run from the daily tick.
func (c *Coordinator) CompleteElapsed(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	status := types.BOOKING_CONFIRMED
	all, err := c.store.List(ctx, store.Filter{Status: &status})
	if err != nil {
		return nil, err
	}
	var completed []uuid.UUID
	for _, b := range all {
		if !b.EndsAt.Before(now) {
			continue
		}
		_, err := c.store.ApplyTransition(ctx, b.ID, func(b *models.Booking) error {
			if b.Status != types.BOOKING_CONFIRMED || !b.EndsAt.Before(now) {
				return ErrInvalidTransition
			}
			b.Status = types.BOOKING_COMPLETED
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, store.ErrConflict) {
				continue
			}
			log.Printf("[bookings] Error completing booking %s: %s\n", b.ID, err.Error())
			continue
		}
		completed = append(completed, b.ID)
	}
	return completed, nil
}
