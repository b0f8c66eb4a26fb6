package chat

import (
	"context"
	"testing"
	"time"

	"parkbook/src/models"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/stretchr/testify/assert"
)

var (
	windowStart = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
)

func seedBooking(t *testing.T, s *store.MemoryStore, status types.BookingStatus) *models.Booking {
	t.Helper()
	b := &models.Booking{
		RenterID: 7,
		SpaceRef: "garage-2/space-18",
		StartsAt: windowStart,
		EndsAt:   windowEnd,
		Status:   status,
		Payment: models.PaymentHold{
			AuthorizedAmount: 45000,
			Currency:         "usd",
			State:            types.HOLD_AUTHORIZED,
		},
	}
	assert.NoError(t, s.Create(context.Background(), b))
	return b
}

func newTestGate(s *store.MemoryStore, now time.Time) *Gate {
	g := NewGate(s)
	g.Now = func() time.Time { return now }
	return g
}

func TestMessagingAllowed(t *testing.T) {
	b := &models.Booking{Status: types.BOOKING_CONFIRMED, StartsAt: windowStart, EndsAt: windowEnd}

	assert.True(t, MessagingAllowed(b, windowStart))
	assert.True(t, MessagingAllowed(b, windowEnd))
	assert.True(t, MessagingAllowed(b, windowStart.AddDate(0, 2, 0)))
	assert.False(t, MessagingAllowed(b, windowStart.Add(-time.Minute)))
	assert.False(t, MessagingAllowed(b, windowEnd.Add(time.Minute)))

	// within the window but not confirmed
	for _, status := range []types.BookingStatus{
		types.BOOKING_PENDING, types.BOOKING_CANCELLED, types.BOOKING_COMPLETED,
	} {
		b.Status = status
		assert.False(t, MessagingAllowed(b, windowStart.AddDate(0, 1, 0)))
	}
}

func TestPostMessageOpensThread(t *testing.T) {
	s := store.NewMemoryStore(nil)
	b := seedBooking(t, s, types.BOOKING_CONFIRMED)
	g := newTestGate(s, windowStart.AddDate(0, 1, 0))

	m, err := g.PostMessage(context.Background(), b.ID, 7, "is the gate code still 4411?")
	assert.NoError(t, err)
	assert.NotEqual(t, m.ThreadID.String(), "00000000-0000-0000-0000-000000000000")

	_, err = g.PostMessage(context.Background(), b.ID, 1, "yes, unchanged")
	assert.NoError(t, err)

	threads, err := g.Threads(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Len(t, threads, 1)
	assert.Len(t, threads[0].Messages, 2)
}

func TestPostMessageGate(t *testing.T) {
	s := store.NewMemoryStore(nil)
	pending := seedBooking(t, s, types.BOOKING_PENDING)
	confirmed := seedBooking(t, s, types.BOOKING_CONFIRMED)

	g := newTestGate(s, windowStart.AddDate(0, 1, 0))
	_, err := g.PostMessage(context.Background(), pending.ID, 7, "hello?")
	assert.ErrorIs(t, err, ErrMessagingClosed)

	// confirmed but before the window opens
	g.Now = func() time.Time { return windowStart.Add(-time.Hour) }
	_, err = g.PostMessage(context.Background(), confirmed.ID, 7, "hello?")
	assert.ErrorIs(t, err, ErrMessagingClosed)

	// confirmed but the window has ended
	g.Now = func() time.Time { return windowEnd.Add(time.Hour) }
	_, err = g.PostMessage(context.Background(), confirmed.ID, 7, "hello?")
	assert.ErrorIs(t, err, ErrMessagingClosed)
}

func TestExpireStaleThreads(t *testing.T) {
	s := store.NewMemoryStore(nil)
	b := seedBooking(t, s, types.BOOKING_CONFIRMED)
	g := newTestGate(s, windowStart.AddDate(0, 1, 0))

	_, err := g.PostMessage(context.Background(), b.ID, 7, "hi")
	assert.NoError(t, err)

	// window still open: nothing to close
	expired, err := g.ExpireStaleThreads(context.Background(), windowStart.AddDate(0, 2, 0))
	assert.NoError(t, err)
	assert.Len(t, expired, 0)

	expired, err = g.ExpireStaleThreads(context.Background(), windowEnd.Add(time.Hour))
	assert.NoError(t, err)
	assert.Len(t, expired, 1)

	// closed thread no longer accepts posts even with a stale clock
	g.Now = func() time.Time { return windowEnd.Add(time.Hour) }
	_, err = g.PostMessage(context.Background(), b.ID, 7, "too late")
	assert.ErrorIs(t, err, ErrMessagingClosed)

	expired, err = g.ExpireStaleThreads(context.Background(), windowEnd.Add(2*time.Hour))
	assert.NoError(t, err)
	assert.Len(t, expired, 0)
}

func TestExpireStaleThreadsKeepsCancelledBookingUntilWindowEnd(t *testing.T) {
	s := store.NewMemoryStore(nil)
	b := seedBooking(t, s, types.BOOKING_CONFIRMED)
	g := newTestGate(s, windowStart.AddDate(0, 1, 0))

	_, err := g.PostMessage(context.Background(), b.ID, 7, "can I still park tonight?")
	assert.NoError(t, err)

	_, err = s.ApplyTransition(context.Background(), b.ID, func(b *models.Booking) error {
		b.Status = types.BOOKING_CANCELLED
		return nil
	})
	assert.NoError(t, err)

	// cancellation alone does not close the thread while the window is open
	expired, err := g.ExpireStaleThreads(context.Background(), windowStart.AddDate(0, 2, 0))
	assert.NoError(t, err)
	assert.Len(t, expired, 0)

	threads, err := g.Threads(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Len(t, threads, 1)
	assert.Equal(t, types.THREAD_ACTIVE, threads[0].Status)

	// posting is still gated by booking status
	_, err = g.PostMessage(context.Background(), b.ID, 7, "hello?")
	assert.ErrorIs(t, err, ErrMessagingClosed)

	expired, err = g.ExpireStaleThreads(context.Background(), windowEnd.Add(time.Hour))
	assert.NoError(t, err)
	assert.Len(t, expired, 1)
}
