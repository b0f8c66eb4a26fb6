package payments

import "errors"

var (
	// ErrAuthorizationFailed is a definitive decline from the processor.
	ErrAuthorizationFailed = errors.New("payment authorization was declined")
	// ErrAlreadyAuthorized guards the one-shot authorize call at booking
	// creation.
	ErrAlreadyAuthorized = errors.New("a hold was already placed for this booking")
	// ErrExtensionLimitExceeded is returned once three extensions were used.
	ErrExtensionLimitExceeded = errors.New("maximum extensions reached")
	ErrNotExtendable          = errors.New("hold cannot be extended in its current state")
	ErrNotCapturable          = errors.New("hold cannot be captured in its current state")
	ErrInvalidAmount          = errors.New("capture amount must be positive and within the authorized amount")
	// ErrAlreadyFinalized means the hold reached a terminal state; the
	// attempted mutation was a no-op.
	ErrAlreadyFinalized = errors.New("payment hold is already finalized")
	// ErrHoldExpired rejects capture once the local expiry has passed, even
	// before the sweep flips the state. A fresh extension is required first.
	ErrHoldExpired = errors.New("hold has expired; extend it before capturing")
	// ErrOutcomeUnknown is a processor timeout. Local state is left alone and
	// the next sweep reconciles whatever actually happened.
	ErrOutcomeUnknown   = errors.New("payment processor did not answer in time; outcome unknown")
	ErrProcessorFailure = errors.New("payment processor rejected the request")
)

// errSweepSkip marks a hold the expiry sweep read as eligible but which moved
// on before the transition landed.
var errSweepSkip = errors.New("hold no longer eligible for expiry")
