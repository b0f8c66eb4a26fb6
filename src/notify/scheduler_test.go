package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"parkbook/src/models"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/stretchr/testify/assert"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingMailer) Send(templateId string, recipient string, _ types.JSONB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, templateId+"|"+recipient)
	return nil
}

func seedBooking(t *testing.T, s *store.MemoryStore, status types.BookingStatus, start, end time.Time) *models.Booking {
	t.Helper()
	b := &models.Booking{
		RenterID:     7,
		SpaceRef:     "garage-2/space-18",
		StartsAt:     start,
		EndsAt:       end,
		Status:       status,
		Payment:      models.PaymentHold{AuthorizedAmount: 45000, Currency: "usd", State: types.HOLD_AUTHORIZED},
		Notification: models.NotificationSchedule{AnchorDay: start.Day()},
	}
	assert.NoError(t, s.Create(context.Background(), b))
	return b
}

func TestDueNotificationsSelectsAnniversaries(t *testing.T) {
	s := store.NewMemoryStore(nil)
	start := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 6, 0)
	b := seedBooking(t, s, types.BOOKING_CONFIRMED, start, end)
	sched := NewScheduler(s, nil)

	// first month not complete yet
	due, err := sched.DueNotifications(context.Background(), time.Date(2025, time.February, 14, 8, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, due, 0)

	// the anniversary itself, regardless of the clock component
	due, err = sched.DueNotifications(context.Background(), time.Date(2025, time.February, 15, 23, 50, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, due, 1)
	assert.Equal(t, b.ID, due[0].ID)

	// the day after
	due, err = sched.DueNotifications(context.Background(), time.Date(2025, time.February, 16, 8, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, due, 0)
}

func TestDueNotificationsClampsShortMonths(t *testing.T) {
	s := store.NewMemoryStore(nil)
	start := time.Date(2025, time.January, 31, 9, 0, 0, 0, time.UTC)
	seedBooking(t, s, types.BOOKING_CONFIRMED, start, start.AddDate(1, 0, 0))
	sched := NewScheduler(s, nil)

	due, err := sched.DueNotifications(context.Background(), time.Date(2025, time.February, 28, 8, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, due, 1)

	// April has 30 days; the 28th is not an anniversary for a day-31 anchor
	due, err = sched.DueNotifications(context.Background(), time.Date(2025, time.April, 28, 8, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, due, 0)

	due, err = sched.DueNotifications(context.Background(), time.Date(2025, time.April, 30, 8, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDueNotificationsSkipsInactiveBookings(t *testing.T) {
	s := store.NewMemoryStore(nil)
	start := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	now := time.Date(2025, time.February, 15, 8, 0, 0, 0, time.UTC)

	seedBooking(t, s, types.BOOKING_PENDING, start, start.AddDate(0, 6, 0))
	seedBooking(t, s, types.BOOKING_CANCELLED, start, start.AddDate(0, 6, 0))
	// confirmed but the window ended before the anniversary
	seedBooking(t, s, types.BOOKING_CONFIRMED, start, time.Date(2025, time.February, 10, 10, 0, 0, 0, time.UTC))

	sched := NewScheduler(s, nil)
	due, err := sched.DueNotifications(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, due, 0)
}

func TestRunDailyMarksAndSends(t *testing.T) {
	s := store.NewMemoryStore(nil)
	start := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	b := seedBooking(t, s, types.BOOKING_CONFIRMED, start, start.AddDate(0, 6, 0))
	mailer := &recordingMailer{}
	sched := NewScheduler(s, mailer)

	now := time.Date(2025, time.February, 15, 8, 0, 0, 0, time.UTC)
	fired, err := sched.RunDaily(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, fired, 1)
	assert.Equal(t, []string{TEMPLATE_BOOKING_ANNIVERSARY + "|renter:7"}, mailer.sent)

	got, err := s.Get(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), got.Notification.FiredCount)
	assert.Equal(t, now, *got.Notification.LastFiredAt)

	// a second run the same day, even hours later, sends nothing
	fired, err = sched.RunDaily(context.Background(), now.Add(10*time.Hour))
	assert.NoError(t, err)
	assert.Len(t, fired, 0)
	assert.Len(t, mailer.sent, 1)

	// next month fires again
	fired, err = sched.RunDaily(context.Background(), time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, fired, 1)

	got, err = s.Get(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, uint(2), got.Notification.FiredCount)
}

func TestMarkFiredAtMostOncePerDay(t *testing.T) {
	s := store.NewMemoryStore(nil)
	start := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	b := seedBooking(t, s, types.BOOKING_CONFIRMED, start, start.AddDate(0, 6, 0))
	sched := NewScheduler(s, nil)

	now := time.Date(2025, time.February, 15, 8, 0, 0, 0, time.UTC)
	n, err := sched.MarkFired(context.Background(), b.ID, now)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), n.FiredCount)

	_, err = sched.MarkFired(context.Background(), b.ID, now.Add(6*time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyFired)
}
