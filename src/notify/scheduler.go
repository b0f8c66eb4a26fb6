// Package notify fires the monthly check-in for long-running confirmed
// bookings. Scheduling is derived, not stored: each daily run asks the
// calendar which bookings have an anniversary today and the record only keeps
// the last-fired bookkeeping that makes the run idempotent.
package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"parkbook/src/calendar"
	"parkbook/src/models"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/google/uuid"
)

const TEMPLATE_BOOKING_ANNIVERSARY = "booking-anniversary"

// ErrAlreadyFired means this booking's check-in already went out today.
var ErrAlreadyFired = errors.New("notification already fired today")

type Mailer interface {
	Send(templateId string, recipient string, vars types.JSONB) error
}

type Scheduler struct {
	store  store.Store
	mailer Mailer

	Now func() time.Time
}

func NewScheduler(s store.Store, m Mailer) *Scheduler {
	return &Scheduler{
		store:  s,
		mailer: m,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// DueNotifications returns the confirmed bookings whose monthly anniversary
// falls on now's calendar day and that have not fired yet today. The clock
// component of now is irrelevant; running at 00:05 or 23:55 selects the same
// set.
func (s *Scheduler) DueNotifications(ctx context.Context, now time.Time) ([]models.Booking, error) {
	status := types.BOOKING_CONFIRMED
	y, m, d := now.UTC().Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	bookings, err := s.store.List(ctx, store.Filter{Status: &status, EndsOnOrAfter: &startOfDay})
	if err != nil {
		return nil, err
	}
	var due []models.Booking
	for _, b := range bookings {
		a := calendar.NextAnniversary(b.StartsAt, b.EndsAt, now)
		if a.Status != calendar.ANNIVERSARY_DUE_TODAY {
			continue
		}
		if b.Notification.LastFiredAt != nil && calendar.SameDay(*b.Notification.LastFiredAt, now) {
			continue
		}
		due = append(due, b)
	}
	return due, nil
}

// MarkFired records that the check-in for a booking went out. At most one
// mark lands per booking per calendar day, whichever racing worker gets there
// second sees ErrAlreadyFired.
func (s *Scheduler) MarkFired(ctx context.Context, id uuid.UUID, now time.Time) (*models.NotificationSchedule, error) {
	b, err := s.store.ApplyTransition(ctx, id, func(b *models.Booking) error {
		if b.Notification.LastFiredAt != nil && calendar.SameDay(*b.Notification.LastFiredAt, now) {
			return ErrAlreadyFired
		}
		fired := now.UTC()
		b.Notification.LastFiredAt = &fired
		b.Notification.FiredCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b.Notification, nil
}

// RunDaily is the scheduler tick: select, mark, send. Marking before sending
// keeps the guarantee at most-once-per-day; a lost mail is logged, never
// retried into a duplicate.
func (s *Scheduler) RunDaily(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	due, err := s.DueNotifications(ctx, now)
	if err != nil {
		return nil, err
	}
	var fired []uuid.UUID
	for _, b := range due {
		if _, err := s.MarkFired(ctx, b.ID, now); err != nil {
			if errors.Is(err, ErrAlreadyFired) || errors.Is(err, store.ErrConflict) {
				continue
			}
			log.Printf("[notify] Error marking booking %s: %s\n", b.ID, err.Error())
			continue
		}
		s.send(&b, now)
		fired = append(fired, b.ID)
	}
	return fired, nil
}

func (s *Scheduler) send(b *models.Booking, now time.Time) {
	if s.mailer == nil {
		return
	}
	err := s.mailer.Send(TEMPLATE_BOOKING_ANNIVERSARY, b.RenterRef(), types.JSONB{
		"booking_id": b.ID.String(),
		"space_ref":  b.SpaceRef,
		"fired_on":   now.UTC().Format("2006-01-02"),
	})
	if err != nil {
		log.Printf("[notify] Error sending check-in for booking %s: %s\n", b.ID, err.Error())
	}
}
