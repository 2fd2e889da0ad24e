package domain

import "errors"

var (
	// Rejected before any durable state exists; fully recoverable.
	ErrInvalidAmount      = errors.New("amount outside permitted bounds")
	ErrDailyLimitExceeded = errors.New("daily payment limit exceeded")
	ErrCardNotEligible    = errors.New("card is not eligible for payment")
	ErrDuplicatePayment   = errors.New("duplicate payment within idempotency window")
	ErrOTPRejected        = errors.New("otp confirmation rejected")

	// Terminal gateway outcomes. The ledger entry is left in FAILED state.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPaymentDeclined    = errors.New("payment declined by gateway")

	// Rewards.
	ErrInsufficientPoints = errors.New("insufficient reward points")

	// ErrInvalidTransition indicates ledger corruption, not user error.
	// Callers must abort rather than coerce state.
	ErrInvalidTransition = errors.New("invalid payment state transition")

	// Card management.
	ErrInvalidCard      = errors.New("invalid card number")
	ErrCardLimitReached = errors.New("card limit reached")
	ErrCardNotFound     = errors.New("card not found")

	// Storage.
	ErrAttemptNotFound    = errors.New("payment attempt not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
