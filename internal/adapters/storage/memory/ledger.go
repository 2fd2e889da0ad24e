// Package memory provides in-memory implementations of the storage ports.
// They back local development without Postgres/Redis and give the tests a
// store with real compare-and-set semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// Ledger is an in-memory PaymentLedger. A single mutex serializes every
// read-then-decide operation, which also gives daily-limit reads a
// consistent snapshot.
type Ledger struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*domain.PaymentAttempt

	// Now is a seam for tests; defaults to time.Now.
	Now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		attempts: make(map[uuid.UUID]*domain.PaymentAttempt),
		Now:      time.Now,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (l *Ledger) sumActiveTodayLocked(userID uuid.UUID, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, a := range l.attempts {
		if a.UserID != userID || a.Status == domain.StatusFailed {
			continue
		}
		if sameDay(a.CreatedAt, now) {
			total = total.Add(a.Amount)
		}
	}
	return total
}

// Create enforces the daily cap and stores the attempt in one critical
// section, so no two concurrent creates can both slip under the cap.
func (l *Ledger) Create(_ context.Context, attempt *domain.PaymentAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	if l.sumActiveTodayLocked(attempt.UserID, now).Add(attempt.Amount).GreaterThan(domain.DailyPaymentLimit) {
		return domain.ErrDailyLimitExceeded
	}

	stored := *attempt
	l.attempts[attempt.ID] = &stored
	return nil
}

func (l *Ledger) Transition(_ context.Context, id uuid.UUID, to domain.PaymentStatus) error {
	if !to.Terminal() {
		return domain.ErrInvalidTransition
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}
	a.Status = to
	settled := l.Now()
	a.SettledAt = &settled
	return nil
}

func (l *Ledger) SetGatewayRef(_ context.Context, id uuid.UUID, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	a.GatewayRef = ref
	return nil
}

func (l *Ledger) IncrementRetry(_ context.Context, id uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[id]
	if !ok {
		return 0, domain.ErrAttemptNotFound
	}
	a.RetryCount++
	return a.RetryCount, nil
}

func (l *Ledger) SumActiveToday(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sumActiveTodayLocked(userID, l.Now()), nil
}

func (l *Ledger) Get(_ context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	out := *a
	return &out, nil
}

func (l *Ledger) Query(_ context.Context, userID uuid.UUID, f domain.LedgerFilter) ([]domain.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.PaymentAttempt
	for _, a := range l.attempts {
		if a.UserID != userID {
			continue
		}
		if f.CardID != nil && a.CardID != *f.CardID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, *a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
