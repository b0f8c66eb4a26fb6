package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parkbook/src/payments"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubProcessor struct {
	mu           sync.Mutex
	authorizeErr error
	voided       int
}

func (s *stubProcessor) Authorize(_ context.Context, _ int64, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authorizeErr != nil {
		return "", s.authorizeErr
	}
	return "pi_" + uuid.NewString(), nil
}

func (s *stubProcessor) Capture(_ context.Context, _ string, _ int64) error { return nil }

func (s *stubProcessor) Void(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voided++
	return nil
}

func (s *stubProcessor) Retrieve(_ context.Context, _ string) (*payments.HoldStatus, error) {
	return &payments.HoldStatus{}, nil
}

type recordingMailer struct {
	sent chan string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan string, 4)}
}

func (r *recordingMailer) Send(templateId string, _ string, _ types.JSONB) error {
	r.sent <- templateId
	return nil
}

func (r *recordingMailer) wait(t *testing.T) string {
	t.Helper()
	select {
	case tpl := <-r.sent:
		return tpl
	case <-time.After(time.Second):
		t.Fatal("expected a mail to be sent")
		return ""
	}
}

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func testInput() CreateInput {
	return CreateInput{
		RenterID:         7,
		SpaceRef:         "garage-2/space-18",
		Zone:             "downtown",
		StartsAt:         testNow,
		EndsAt:           testNow.AddDate(0, 6, 0),
		Amount:           45000,
		Currency:         "usd",
		PaymentMethodRef: "pm_card_visa",
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *stubProcessor, *recordingMailer, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore(nil)
	p := &stubProcessor{}
	pm := payments.NewManager(s, p)
	pm.Now = func() time.Time { return testNow }
	mailer := newRecordingMailer()
	c := NewCoordinator(s, pm, mailer)
	c.Now = pm.Now
	return c, p, mailer, s
}

func TestCreatePlacesHold(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)
	assert.Equal(t, types.BOOKING_PENDING, b.Status)
	assert.Equal(t, types.HOLD_AUTHORIZED, b.Payment.State)
	assert.NotNil(t, b.Payment.ProcessorHoldId)
	assert.Equal(t, testNow.Add(7*24*time.Hour), *b.Payment.ExpiresAt)
	assert.Equal(t, 15, b.Notification.AnchorDay)
}

func TestCreateDeclinedRemovesDraft(t *testing.T) {
	c, p, _, s := newTestCoordinator(t)
	p.authorizeErr = errors.New("card_declined")
	_, err := c.Create(context.Background(), testInput())
	assert.ErrorIs(t, err, payments.ErrAuthorizationFailed)

	all, err := s.List(context.Background(), store.Filter{})
	assert.NoError(t, err)
	assert.Len(t, all, 0)
}

func TestCreateRejectsInvertedWindow(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	in := testInput()
	in.EndsAt = in.StartsAt.Add(-time.Hour)
	_, err := c.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestApproveConfirmsAndNotifies(t *testing.T) {
	c, _, mailer, _ := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	approved, err := c.Approve(context.Background(), b.ID, 1)
	assert.NoError(t, err)
	assert.Equal(t, types.BOOKING_CONFIRMED, approved.Status)
	assert.Equal(t, types.HOLD_AUTHORIZED, approved.Payment.State)
	assert.Equal(t, TEMPLATE_BOOKING_APPROVED, mailer.wait(t))

	_, err = c.Approve(context.Background(), b.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApproveRequiresLiveHold(t *testing.T) {
	c, _, _, s := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	pm := payments.NewManager(s, &stubProcessor{})
	_, err = pm.Release(context.Background(), b.ID)
	assert.NoError(t, err)

	_, err = c.Approve(context.Background(), b.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectReleasesHold(t *testing.T) {
	c, p, mailer, _ := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	rejected, err := c.Reject(context.Background(), b.ID, 1)
	assert.NoError(t, err)
	assert.Equal(t, types.BOOKING_CANCELLED, rejected.Status)
	assert.Equal(t, types.HOLD_RELEASED, rejected.Payment.State)
	assert.Equal(t, 1, p.voided)
	assert.Equal(t, TEMPLATE_BOOKING_REJECTED, mailer.wait(t))
}

func TestRejectBlockedAfterCapture(t *testing.T) {
	c, _, _, s := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	pm := payments.NewManager(s, &stubProcessor{})
	pm.Now = func() time.Time { return testNow }
	_, err = pm.Capture(context.Background(), b.ID, nil)
	assert.NoError(t, err)

	_, err = c.Reject(context.Background(), b.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, types.BOOKING_PENDING, got.Status)
	assert.Equal(t, types.HOLD_CAPTURED, got.Payment.State)
}

func TestDeleteVoidsHoldAndCascades(t *testing.T) {
	c, p, _, s := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	assert.NoError(t, c.DeleteBooking(context.Background(), b.ID, 1))
	assert.Equal(t, 1, p.voided)

	_, err = s.Get(context.Background(), b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCancelExpired(t *testing.T) {
	c, _, _, s := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	pm := payments.NewManager(s, &stubProcessor{})
	_, err = pm.ExpireSweep(context.Background(), testNow.Add(8*24*time.Hour))
	assert.NoError(t, err)

	assert.NoError(t, c.CancelExpired(context.Background(), b.ID))
	got, err := s.Get(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, types.BOOKING_CANCELLED, got.Status)

	// re-running is a no-op
	assert.NoError(t, c.CancelExpired(context.Background(), b.ID))
}

func TestCancelExpiredIgnoresLiveHolds(t *testing.T) {
	c, _, _, s := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)

	assert.NoError(t, c.CancelExpired(context.Background(), b.ID))
	got, err := s.Get(context.Background(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, types.BOOKING_PENDING, got.Status)
}

func TestCompleteElapsed(t *testing.T) {
	c, _, mailer, _ := newTestCoordinator(t)
	b, err := c.Create(context.Background(), testInput())
	assert.NoError(t, err)
	_, err = c.Approve(context.Background(), b.ID, 1)
	assert.NoError(t, err)
	mailer.wait(t)

	// window still open
	done, err := c.CompleteElapsed(context.Background(), testNow.AddDate(0, 1, 0))
	assert.NoError(t, err)
	assert.Len(t, done, 0)

	done, err = c.CompleteElapsed(context.Background(), testNow.AddDate(0, 7, 0))
	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, done)
}
