package domain

import "github.com/shopspring/decimal"

// Business limits, in rupees. Kept as package vars because decimal values
// cannot be constants.
var (
	// MinCustomAmount applies to KindCustom only; bill-derived amounts may
	// be smaller.
	MinCustomAmount = decimal.NewFromInt(100)

	// MaxPaymentAmount caps every payment regardless of kind.
	MaxPaymentAmount = decimal.NewFromInt(500_000)

	// DailyPaymentLimit caps the sum of a user's successful-or-pending
	// payments per calendar day, across all cards.
	DailyPaymentLimit = decimal.NewFromInt(1_000_000)

	// OTPThreshold: amounts strictly above it require a synchronous OTP
	// confirmation before the gateway is called.
	OTPThreshold = decimal.NewFromInt(10_000)
)

// MaxCardsPerUser bounds how many cards a user may register.
const MaxCardsPerUser = 5
