// Package payments owns the hold/capture/extend/expire state machine for a
// booking's payment. Every mutation goes through the record store's atomic
// ApplyTransition, so two administrators (or an administrator racing the
// expiry sweep) can never both finalize the same hold: whichever transition
// lands first wins and the loser observes a terminal state.
package payments

import (
	"context"
	"errors"
	"log"
	"time"

	"parkbook/src/config"
	"parkbook/src/models"
	"parkbook/src/store"
	"parkbook/src/types"

	"github.com/google/uuid"
)

// Processor is the narrow contract against the external payment processor.
// It is the source of truth for money movement; local state only changes
// after a definitive response.
type Processor interface {
	Authorize(ctx context.Context, amount int64, currency, paymentMethodRef string) (string, error)
	Capture(ctx context.Context, holdID string, amount int64) error
	Void(ctx context.Context, holdID string) error
	Retrieve(ctx context.Context, holdID string) (*HoldStatus, error)
}

// HoldStatus is the processor-side view of a hold, read back when a capture
// attempt ended without a definitive answer.
type HoldStatus struct {
	Captured       bool
	CapturedAmount int64
	Canceled       bool
}

type Manager struct {
	store     store.Store
	processor Processor

	// Now is swappable in tests; defaults to wall clock UTC.
	Now func() time.Time
	// ProcessorTimeout bounds every processor call. A timeout is reported as
	// ErrOutcomeUnknown, never assumed failed.
	ProcessorTimeout time.Duration
}

func NewManager(s store.Store, p Processor) *Manager {
	return &Manager{
		store:            s,
		processor:        p,
		Now:              func() time.Time { return time.Now().UTC() },
		ProcessorTimeout: 10 * time.Second,
	}
}

func (m *Manager) callProcessor(ctx context.Context, fn func(ctx context.Context) error) error {
	pctx, cancel := context.WithTimeout(ctx, m.ProcessorTimeout)
	defer cancel()
	err := fn(pctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrOutcomeUnknown
	}
	return err
}

// Authorize places the hold for a freshly created booking. The authorized
// amount and payment currency were fixed on the record at creation time.
func (m *Manager) Authorize(ctx context.Context, bookingID uuid.UUID, paymentMethodRef string) (*models.PaymentHold, error) {
	b, err := m.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Payment.State != types.HOLD_REQUESTED {
		return nil, ErrAlreadyAuthorized
	}

	var holdId string
	err = m.callProcessor(ctx, func(pctx context.Context) error {
		id, perr := m.processor.Authorize(pctx, b.Payment.AuthorizedAmount, b.Payment.Currency, paymentMethodRef)
		holdId = id
		return perr
	})
	if err != nil {
		if errors.Is(err, ErrOutcomeUnknown) {
			return nil, err
		}
		log.Printf("[payments] Authorization declined for booking %s: %s\n", bookingID, err.Error())
		return nil, ErrAuthorizationFailed
	}

	expiresAt := m.Now().Add(config.HOLD_DURATION_DAYS * 24 * time.Hour)
	updated, err := m.store.ApplyTransition(ctx, bookingID, func(b *models.Booking) error {
		if b.Payment.State != types.HOLD_REQUESTED {
			return ErrAlreadyAuthorized
		}
		b.Payment.ProcessorHoldId = &holdId
		b.Payment.State = types.HOLD_AUTHORIZED
		b.Payment.ExpiresAt = &expiresAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated.Payment, nil
}

// Extend pushes the hold expiry forward by the given number of days (default
// seven) and burns one of the three extensions.
func (m *Manager) Extend(ctx context.Context, bookingID uuid.UUID, days int) (*models.PaymentHold, error) {
	if days <= 0 {
		days = config.HOLD_DURATION_DAYS
	}
	updated, err := m.store.ApplyTransition(ctx, bookingID, func(b *models.Booking) error {
		if b.Payment.State.Terminal() {
			return ErrAlreadyFinalized
		}
		if !b.Payment.State.Active() {
			return ErrNotExtendable
		}
		if b.Payment.ExtensionCount >= config.MAX_HOLD_EXTENSIONS {
			return ErrExtensionLimitExceeded
		}
		if b.Payment.ExpiresAt == nil {
			return ErrNotExtendable
		}
		next := b.Payment.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
		b.Payment.ExpiresAt = &next
		b.Payment.ExtensionCount++
		b.Payment.State = types.HOLD_EXTENDED
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated.Payment, nil
}

// Capture converts the hold into a charge. A nil amount captures the full
// authorized amount. This is the one irreversible financial action; it
// succeeds at most once per booking.
func (m *Manager) Capture(ctx context.Context, bookingID uuid.UUID, amount *int64) (*models.PaymentHold, error) {
	now := m.Now()
	var attempted int64
	updated, err := m.store.ApplyTransition(ctx, bookingID, func(b *models.Booking) error {
		if b.Payment.State.Terminal() {
			return ErrAlreadyFinalized
		}
		if !b.Payment.State.Active() {
			return ErrNotCapturable
		}
		amt := b.Payment.AuthorizedAmount
		if amount != nil {
			amt = *amount
		}
		if amt <= 0 || amt > b.Payment.AuthorizedAmount {
			return ErrInvalidAmount
		}
		if b.Payment.ExpiresAt != nil && now.After(*b.Payment.ExpiresAt) {
			return ErrHoldExpired
		}
		attempted = amt
		holdId := *b.Payment.ProcessorHoldId
		if err := m.callProcessor(ctx, func(pctx context.Context) error {
			return m.processor.Capture(pctx, holdId, amt)
		}); err != nil {
			if errors.Is(err, ErrOutcomeUnknown) {
				return err
			}
			log.Printf("[payments] Capture failed for booking %s: %s\n", bookingID, err.Error())
			return ErrProcessorFailure
		}
		b.Payment.CapturedAmount = amt
		b.Payment.PendingCaptureAmount = nil
		if amt == b.Payment.AuthorizedAmount {
			b.Payment.State = types.HOLD_CAPTURED
		} else {
			b.Payment.State = types.HOLD_PARTIALLY_CAPTURED
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOutcomeUnknown) {
			// the charge may have landed at the processor; flag the hold so
			// the sweep reads the processor state back before expiring it
			m.markCapturePending(ctx, bookingID, attempted)
		}
		return nil, err
	}
	return &updated.Payment, nil
}

func (m *Manager) markCapturePending(ctx context.Context, bookingID uuid.UUID, amount int64) {
	if _, err := m.store.ApplyTransition(ctx, bookingID, func(b *models.Booking) error {
		if !b.Payment.State.Active() {
			return errSweepSkip
		}
		b.Payment.PendingCaptureAmount = &amount
		return nil
	}); err != nil && !errors.Is(err, errSweepSkip) {
		log.Printf("[payments] Could not flag unresolved capture for booking %s: %s\n", bookingID, err.Error())
	}
}

// Release voids the hold with no charge. Used on rejection and deletion.
func (m *Manager) Release(ctx context.Context, bookingID uuid.UUID) (*models.PaymentHold, error) {
	updated, err := m.store.ApplyTransition(ctx, bookingID, func(b *models.Booking) error {
		if b.Payment.State.Terminal() {
			return ErrAlreadyFinalized
		}
		if b.Payment.State == types.HOLD_REQUESTED {
			// nothing ever reached the processor
			b.Payment.State = types.HOLD_RELEASED
			return nil
		}
		holdId := *b.Payment.ProcessorHoldId
		if err := m.callProcessor(ctx, func(pctx context.Context) error {
			return m.processor.Void(pctx, holdId)
		}); err != nil {
			if errors.Is(err, ErrOutcomeUnknown) {
				return err
			}
			log.Printf("[payments] Void failed for booking %s: %s\n", bookingID, err.Error())
			return ErrProcessorFailure
		}
		b.Payment.State = types.HOLD_RELEASED
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated.Payment, nil
}

// ExpireSweep transitions every hold whose expiry has passed to expired and
// returns the affected booking ids for downstream cleanup. Safe to re-run:
// already-expired holds no longer match the filter, and a hold that a racing
// administrator just captured is skipped without error.
func (m *Manager) ExpireSweep(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	bookings, err := m.store.List(ctx, store.Filter{HoldActive: true, HoldExpiresBy: &now})
	if err != nil {
		return nil, err
	}
	var expired []uuid.UUID
	for _, b := range bookings {
		if b.Payment.PendingCaptureAmount != nil && b.Payment.ProcessorHoldId != nil {
			settled, rerr := m.reconcilePendingCapture(ctx, b.ID, *b.Payment.ProcessorHoldId)
			if rerr != nil {
				// never expire a hold blind; leave it for the next sweep
				log.Printf("[sweep] Could not read back hold state for booking %s: %s\n", b.ID, rerr.Error())
				continue
			}
			if settled {
				continue
			}
		}
		_, err := m.store.ApplyTransition(ctx, b.ID, func(b *models.Booking) error {
			if !b.Payment.State.Active() {
				return errSweepSkip
			}
			if b.Payment.ExpiresAt == nil || b.Payment.ExpiresAt.After(now) {
				// a racing extension moved the expiry forward
				return errSweepSkip
			}
			b.Payment.State = types.HOLD_EXPIRED
			b.Payment.PendingCaptureAmount = nil
			return nil
		})
		if err != nil {
			// someone else won the race for this record; expected, move on
			if errors.Is(err, errSweepSkip) || errors.Is(err, store.ErrConflict) {
				continue
			}
			log.Printf("[sweep] Error expiring hold for booking %s: %s\n", b.ID, err.Error())
			continue
		}
		if b.Payment.ProcessorHoldId != nil {
			holdId := *b.Payment.ProcessorHoldId
			if err := m.callProcessor(ctx, func(pctx context.Context) error {
				return m.processor.Void(pctx, holdId)
			}); err != nil {
				// the processor expires manual holds on its own schedule, a
				// failed void here is informational only
				log.Printf("[sweep] Void after expiry failed for booking %s: %s\n", b.ID, err.Error())
			}
		}
		expired = append(expired, b.ID)
	}
	return expired, nil
}

// reconcilePendingCapture resolves a hold whose last capture attempt ended
// with an unknown outcome by reading the processor state back. If the charge
// landed the hold settles to captured and reports settled=true; otherwise the
// marker is cleared and the caller expires the hold as usual.
func (m *Manager) reconcilePendingCapture(ctx context.Context, bookingID uuid.UUID, holdId string) (settled bool, err error) {
	var status *HoldStatus
	if err := m.callProcessor(ctx, func(pctx context.Context) error {
		s, perr := m.processor.Retrieve(pctx, holdId)
		status = s
		return perr
	}); err != nil {
		return false, err
	}
	if status.Captured {
		_, err := m.store.ApplyTransition(ctx, bookingID, func(b *models.Booking) error {
			if !b.Payment.State.Active() {
				return errSweepSkip
			}
			b.Payment.CapturedAmount = status.CapturedAmount
			b.Payment.PendingCaptureAmount = nil
			if status.CapturedAmount == b.Payment.AuthorizedAmount {
				b.Payment.State = types.HOLD_CAPTURED
			} else {
				b.Payment.State = types.HOLD_PARTIALLY_CAPTURED
			}
			return nil
		})
		if err != nil && !errors.Is(err, errSweepSkip) {
			return false, err
		}
		log.Printf("[sweep] Hold %s had captured at the processor; settled booking %s\n", holdId, bookingID)
		return true, nil
	}
	// the capture never landed; the hold expires like any other
	return false, nil
}

// DaysUntilExpiry is what the administrator surface displays next to the
// extension button.
func DaysUntilExpiry(hold *models.PaymentHold, now time.Time) int {
	if hold.ExpiresAt == nil {
		return 0
	}
	d := hold.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
