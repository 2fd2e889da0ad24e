package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RewardTransaction records the points earned for exactly one successful
// PaymentAttempt. AttemptID is unique across the store: a second credit for
// the same attempt is a no-op that returns the existing row.
type RewardTransaction struct {
	ID               uuid.UUID
	AttemptID        uuid.UUID
	UserID           uuid.UUID
	BasePoints       int64
	FullPaymentBonus int64
	EarlyPaymentBonus int64
	TotalPoints      int64
	BalanceAfter     int64
	CreatedAt        time.Time
}

// Redemption records a debit of reward points in exchange for cashback.
// The store rejects any redemption that would make the balance negative.
type Redemption struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Points        int64
	CashbackValue decimal.Decimal
	BalanceAfter  int64
	CreatedAt     time.Time
}
