package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// PaymentLedger is the outgoing port for the durable record of payment
// attempts; the single source of truth for "did this payment happen".
// Implementations must serialize read-then-decide operations per user
// (daily cap in Create) and per attempt (Transition).
type PaymentLedger interface {
	// Create persists a new PENDING attempt. It re-checks the daily cap
	// atomically and returns domain.ErrDailyLimitExceeded when the attempt
	// would breach it.
	Create(ctx context.Context, attempt *domain.PaymentAttempt) error

	// Transition moves an attempt from PENDING to a terminal state and
	// stamps SettledAt. Any other transition returns
	// domain.ErrInvalidTransition.
	Transition(ctx context.Context, id uuid.UUID, to domain.PaymentStatus) error

	SetGatewayRef(ctx context.Context, id uuid.UUID, ref string) error

	// IncrementRetry bumps the persisted retry counter and returns the new
	// value.
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)

	// SumActiveToday returns today's successful-or-pending total for the
	// user across all cards, observed as one consistent snapshot.
	SumActiveToday(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	Query(ctx context.Context, userID uuid.UUID, f domain.LedgerFilter) ([]domain.PaymentAttempt, error)
}

// IdempotencyStore is a keyed compare-and-set store. PutIfAbsent returns
// false when the key is already held by an active attempt.
type IdempotencyStore interface {
	PutIfAbsent(ctx context.Context, key string, attemptID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RewardStore persists reward transactions and the point balance they move.
type RewardStore interface {
	// CreditOnce inserts rtx and applies its balance delta atomically,
	// guarded by a compare-and-set on the attempt id. When the attempt was
	// already credited it returns the existing row and created=false.
	CreditOnce(ctx context.Context, rtx *domain.RewardTransaction) (stored *domain.RewardTransaction, created bool, err error)

	// Redeem debits points, never below zero, and records the redemption.
	Redeem(ctx context.Context, userID uuid.UUID, points int64, cashback decimal.Decimal) (*domain.Redemption, error)

	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	TransactionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.RewardTransaction, error)
}

// CardStore persists registered cards and their invariants (at most
// 5 cards per user, at most one primary).
type CardStore interface {
	Add(ctx context.Context, card *domain.Card) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Card, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Card, error)
	SetPrimary(ctx context.Context, userID, cardID uuid.UUID) error
	Remove(ctx context.Context, userID, cardID uuid.UUID) error
}

// Gateway abstracts the payment rail. Charge must be safe to call repeatedly
// with the same attemptID without double-charging.
type Gateway interface {
	Charge(ctx context.Context, attemptID uuid.UUID, cardRef string, amount decimal.Decimal, method domain.PaymentMethod) (domain.ChargeResult, error)
}

// BillProvider is the read-only core-banking collaborator.
type BillProvider interface {
	GetBill(ctx context.Context, cardID uuid.UUID) (*domain.Bill, error)
}

// OTPVerifier confirms high-value payments synchronously. A rejection is
// reported as an error wrapping domain.ErrOTPRejected.
type OTPVerifier interface {
	Verify(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
}

// Notifier publishes settled-transaction and reward events. Delivery is
// fire-and-forget: failures never affect core state.
type Notifier interface {
	PaymentSettled(ctx context.Context, attempt *domain.PaymentAttempt) error
	RewardCredited(ctx context.Context, rtx *domain.RewardTransaction) error
	RewardReconcile(ctx context.Context, attempt *domain.PaymentAttempt) error
}

// RateLimiterRepository backs the HTTP rate-limiting middleware.
type RateLimiterRepository interface {
	IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PaymentService is the incoming port for payment submission and history.
type PaymentService interface {
	Pay(ctx context.Context, auth domain.AuthContext, req domain.PaymentRequest) (*domain.PaymentAttempt, error)
	History(ctx context.Context, userID uuid.UUID, f domain.LedgerFilter) ([]domain.PaymentAttempt, error)
}

// RewardService is the incoming port for the rewards surface.
type RewardService interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, domain.Tier, error)
	Redeem(ctx context.Context, userID uuid.UUID, points int64) (*domain.Redemption, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]domain.RewardTransaction, error)
}

// CardService is the incoming port for card management.
type CardService interface {
	AddCard(ctx context.Context, userID uuid.UUID, pan, network string, expMonth, expYear int) (*domain.Card, error)
	RemoveCard(ctx context.Context, userID, cardID uuid.UUID) error
	SetPrimary(ctx context.Context, userID, cardID uuid.UUID) error
	ListCards(ctx context.Context, userID uuid.UUID) ([]domain.Card, error)
}
