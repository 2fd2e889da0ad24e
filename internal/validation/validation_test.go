package validation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"billpay-processing-system/internal/core/domain"
)

func eligibleCard(userID uuid.UUID) *domain.Card {
	return &domain.Card{
		ID:       uuid.New(),
		UserID:   userID,
		Last4:    "9010",
		Verified: true,
	}
}

func input(userID uuid.UUID, amount string) Input {
	return Input{
		UserID:     userID,
		Card:       eligibleCard(userID),
		Amount:     decimal.RequireFromString(amount),
		Kind:       domain.KindCustom,
		TodayTotal: decimal.Zero,
	}
}

func TestValidate_AmountBounds(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name   string
		amount string
		kind   domain.PaymentKind
		err    error
	}{
		{"below minimum", "99.99", domain.KindCustom, domain.ErrInvalidAmount},
		{"at minimum", "100", domain.KindCustom, nil},
		{"at maximum", "500000", domain.KindCustom, nil},
		{"above maximum", "500000.01", domain.KindCustom, domain.ErrInvalidAmount},
		{"zero", "0", domain.KindCustom, domain.ErrInvalidAmount},
		{"negative", "-50", domain.KindCustom, domain.ErrInvalidAmount},
		{"minimum-due below custom floor", "42.50", domain.KindMinimumDue, nil},
		{"total-due still capped", "600000", domain.KindTotalDue, domain.ErrInvalidAmount},
		{"three decimal places", "150.005", domain.KindCustom, domain.ErrInvalidAmount},
		{"two decimal places", "150.05", domain.KindCustom, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input(userID, tt.amount)
			in.Kind = tt.kind
			_, err := Validate(in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_DailyLimit(t *testing.T) {
	userID := uuid.New()

	in := input(userID, "100000")
	in.TodayTotal = decimal.RequireFromString("900000")
	_, err := Validate(in)
	assert.NoError(t, err, "exactly at the cap is allowed")

	in.TodayTotal = decimal.RequireFromString("900000.01")
	_, err = Validate(in)
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)
}

func TestValidate_CardEligibility(t *testing.T) {
	userID := uuid.New()

	in := input(userID, "500")
	in.Card.Verified = false
	_, err := Validate(in)
	assert.ErrorIs(t, err, domain.ErrCardNotEligible)

	in = input(userID, "500")
	in.Card.UserID = uuid.New() // someone else's card
	_, err = Validate(in)
	assert.ErrorIs(t, err, domain.ErrCardNotEligible)

	in = input(userID, "500")
	in.Card = nil
	_, err = Validate(in)
	assert.ErrorIs(t, err, domain.ErrCardNotEligible)
}

func TestValidate_OrderOfChecks(t *testing.T) {
	// The amount check must win over the card check.
	userID := uuid.New()
	in := input(userID, "10")
	in.Card = nil
	_, err := Validate(in)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestValidate_OTPFlag(t *testing.T) {
	userID := uuid.New()

	res, err := Validate(input(userID, "10000"))
	assert.NoError(t, err)
	assert.False(t, res.OTPRequired, "exactly at threshold does not require OTP")

	res, err = Validate(input(userID, "10000.01"))
	assert.NoError(t, err)
	assert.True(t, res.OTPRequired)

	res, err = Validate(input(userID, "15000"))
	assert.NoError(t, err)
	assert.True(t, res.OTPRequired)
}

func TestLuhnValid(t *testing.T) {
	assert.True(t, LuhnValid("4111111111111111"))
	assert.True(t, LuhnValid("4111 1111 1111 1111"))
	assert.False(t, LuhnValid("4111111111111112"))
	assert.False(t, LuhnValid("1234"))
	assert.False(t, LuhnValid("4111-1111-1111-1111"))
	assert.False(t, LuhnValid(""))
}
