// Package chat is the renter-administrator messaging surface. A thread hangs
// off a booking and only accepts messages while the booking is confirmed and
// the clock is inside its reserved window.
package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"parkbook/src/models"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/google/uuid"
)

var ErrMessagingClosed = errors.New("messaging is closed for this booking")

// MessagingAllowed is the whole gate: confirmed status and the current time
// inside the booking window, boundaries included. Everything else, including
// a pending booking whose window already started, is closed.
func MessagingAllowed(b *models.Booking, now time.Time) bool {
	return b.Status == types.BOOKING_CONFIRMED && b.Window(now)
}

type Gate struct {
	store store.Store

	Now func() time.Time
}

func NewGate(s store.Store) *Gate {
	return &Gate{
		store: s,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// PostMessage appends a message to the booking's active thread, opening one on
// first contact. The gate is re-checked on every post; a thread left open by
// the sweep does not bypass it.
func (g *Gate) PostMessage(ctx context.Context, bookingID uuid.UUID, senderID uint, body string) (*models.Message, error) {
	b, err := g.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !MessagingAllowed(b, g.Now()) {
		return nil, ErrMessagingClosed
	}

	thread, err := g.activeThread(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	m := &models.Message{SenderID: senderID, Body: body}
	if err := g.store.AppendMessage(ctx, thread.ID, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (g *Gate) activeThread(ctx context.Context, bookingID uuid.UUID) (*models.MessageThread, error) {
	threads, err := g.store.ThreadsForBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for i := range threads {
		if threads[i].Status == types.THREAD_ACTIVE {
			return &threads[i], nil
		}
	}
	thread := &models.MessageThread{BookingID: bookingID}
	if err := g.store.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// Threads returns the booking's threads with their messages. Reading stays
// open after the window closes; only posting is gated.
func (g *Gate) Threads(ctx context.Context, bookingID uuid.UUID) ([]models.MessageThread, error) {
	return g.store.ThreadsForBooking(ctx, bookingID)
}

// ExpireStaleThreads closes every active thread whose booking window has
// passed. A cancelled booking keeps its thread until then; the gate already
// blocks posting on it. Run from the daily tick; safe to re-run.
func (g *Gate) ExpireStaleThreads(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	threads, err := g.store.ActiveThreads(ctx)
	if err != nil {
		return nil, err
	}
	var expired []uuid.UUID
	for _, t := range threads {
		if t.Booking == nil || !now.After(t.Booking.EndsAt) {
			continue
		}
		if err := g.store.ExpireThread(ctx, t.ID); err != nil {
			log.Printf("[chat] Error expiring thread %s: %s\n", t.ID, err.Error())
			continue
		}
		expired = append(expired, t.ID)
	}
	return expired, nil
}
