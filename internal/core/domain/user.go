package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier is a derived classification of a user based on accumulated reward
// points. It is never stored: always recompute from the balance so the two
// cannot drift apart.
type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

const (
	silverThreshold = 1000
	goldThreshold   = 5000
)

// TierForBalance maps a point balance to its tier.
// Bronze 0-999, Silver 1000-4999, Gold 5000+.
func TierForBalance(balance int64) Tier {
	switch {
	case balance >= goldThreshold:
		return TierGold
	case balance >= silverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// User is a registered customer. Users are deactivated, never deleted.
// RewardBalance is kept non-negative by the reward store.
type User struct {
	ID            uuid.UUID
	Mobile        string
	PINHash       string
	RewardBalance int64
	Active        bool
	CreatedAt     time.Time
}

// Tier derives the current tier from the balance.
func (u *User) Tier() Tier {
	return TierForBalance(u.RewardBalance)
}

// Card is a registered credit card. Only the last four digits and a SHA-256
// hash of the PAN are retained; the full number is never persisted.
// Invariant: a user holds at most 5 cards and at most one is primary.
type Card struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Last4       string
	Network     string
	ExpiryMonth int
	ExpiryYear  int
	CardHash    string
	Verified    bool
	Primary     bool
	CreatedAt   time.Time
}

// Bill is a per-card statement produced by the core-banking collaborator.
// It is read-only to this service.
type Bill struct {
	CardID      uuid.UUID
	TotalDue    decimal.Decimal
	MinimumDue  decimal.Decimal
	DueDate     time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
}
