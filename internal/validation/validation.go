// Package validation holds the pure pre-payment rules. Nothing here performs
// I/O: the caller supplies a snapshot of the ledger and the card record, and
// the decision is deterministic given that snapshot.
package validation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// Input is everything a validation decision depends on.
type Input struct {
	UserID     uuid.UUID
	Card       *domain.Card
	Amount     decimal.Decimal
	Kind       domain.PaymentKind
	TodayTotal decimal.Decimal // user's successful-or-pending total today
}

// Result carries side-channel flags for the orchestrator. OTPRequired is not
// a failure: the payment proceeds once the OTP collaborator confirms.
type Result struct {
	OTPRequired bool
}

// Validate applies the payment rules in order; the first failure wins.
func Validate(in Input) (Result, error) {
	// Bill-derived kinds bypass the lower bound by construction but still
	// respect the upper bound.
	if in.Kind == domain.KindCustom && in.Amount.LessThan(domain.MinCustomAmount) {
		return Result{}, domain.ErrInvalidAmount
	}
	if in.Amount.GreaterThan(domain.MaxPaymentAmount) {
		return Result{}, domain.ErrInvalidAmount
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return Result{}, domain.ErrInvalidAmount
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return Result{}, domain.ErrInvalidAmount
	}

	if in.TodayTotal.Add(in.Amount).GreaterThan(domain.DailyPaymentLimit) {
		return Result{}, domain.ErrDailyLimitExceeded
	}

	if in.Card == nil || !in.Card.Verified || in.Card.UserID != in.UserID {
		return Result{}, domain.ErrCardNotEligible
	}

	return Result{OTPRequired: in.Amount.GreaterThan(domain.OTPThreshold)}, nil
}
