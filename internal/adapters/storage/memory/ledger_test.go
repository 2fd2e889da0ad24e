package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"billpay-processing-system/internal/core/domain"
)

func newAttempt(userID, cardID uuid.UUID, amount string) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		CardID:    cardID,
		Amount:    decimal.RequireFromString(amount),
		Method:    domain.MethodUPI,
		Kind:      domain.KindCustom,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
}

func TestLedger_Transition_TerminalStatesAreFinal(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	userID, cardID := uuid.New(), uuid.New()

	a := newAttempt(userID, cardID, "1000.00")
	assert.NoError(t, ledger.Create(ctx, a))

	assert.NoError(t, ledger.Transition(ctx, a.ID, domain.StatusSuccess))

	// SUCCESS is terminal; no further transition is legal.
	err := ledger.Transition(ctx, a.ID, domain.StatusFailed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	err = ledger.Transition(ctx, a.ID, domain.StatusSuccess)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, _ := ledger.Get(ctx, a.ID)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	assert.NotNil(t, stored.SettledAt)
}

func TestLedger_Transition_PendingIsNotTerminal(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	a := newAttempt(uuid.New(), uuid.New(), "1000.00")
	assert.NoError(t, ledger.Create(ctx, a))

	err := ledger.Transition(ctx, a.ID, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLedger_Transition_UnknownAttempt(t *testing.T) {
	ledger := NewLedger()
	err := ledger.Transition(context.Background(), uuid.New(), domain.StatusSuccess)
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestLedger_SumActiveToday(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	userID, cardID := uuid.New(), uuid.New()

	pending := newAttempt(userID, cardID, "1000.00")
	assert.NoError(t, ledger.Create(ctx, pending))

	succeeded := newAttempt(userID, cardID, "2000.00")
	assert.NoError(t, ledger.Create(ctx, succeeded))
	assert.NoError(t, ledger.Transition(ctx, succeeded.ID, domain.StatusSuccess))

	// Failed attempts do not count against the cap.
	failed := newAttempt(userID, cardID, "4000.00")
	assert.NoError(t, ledger.Create(ctx, failed))
	assert.NoError(t, ledger.Transition(ctx, failed.ID, domain.StatusFailed))

	// Another user's spending is invisible.
	other := newAttempt(uuid.New(), cardID, "8000.00")
	assert.NoError(t, ledger.Create(ctx, other))

	total, err := ledger.SumActiveToday(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("3000.00")), "got %s", total)
}

func TestLedger_Create_EnforcesDailyCap(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	userID, cardID := uuid.New(), uuid.New()

	a := newAttempt(userID, cardID, "500000.00")
	assert.NoError(t, ledger.Create(ctx, a))
	b := newAttempt(userID, cardID, "500000.00")
	assert.NoError(t, ledger.Create(ctx, b))

	// Exactly at the cap now; anything further breaches it.
	c := newAttempt(userID, cardID, "100.00")
	assert.ErrorIs(t, ledger.Create(ctx, c), domain.ErrDailyLimitExceeded)
}

func TestLedger_Query_Filters(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	userID := uuid.New()
	cardA, cardB := uuid.New(), uuid.New()

	onA := newAttempt(userID, cardA, "1000.00")
	assert.NoError(t, ledger.Create(ctx, onA))
	onB := newAttempt(userID, cardB, "2000.00")
	assert.NoError(t, ledger.Create(ctx, onB))
	assert.NoError(t, ledger.Transition(ctx, onB.ID, domain.StatusSuccess))

	byCard, err := ledger.Query(ctx, userID, domain.LedgerFilter{CardID: &cardA})
	assert.NoError(t, err)
	assert.Len(t, byCard, 1)
	assert.Equal(t, onA.ID, byCard[0].ID)

	success := domain.StatusSuccess
	byStatus, err := ledger.Query(ctx, userID, domain.LedgerFilter{Status: &success})
	assert.NoError(t, err)
	assert.Len(t, byStatus, 1)
	assert.Equal(t, onB.ID, byStatus[0].ID)

	limited, err := ledger.Query(ctx, userID, domain.LedgerFilter{Limit: 1})
	assert.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := ledger.Query(ctx, uuid.New(), domain.LedgerFilter{})
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_IncrementRetry(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	a := newAttempt(uuid.New(), uuid.New(), "1000.00")
	assert.NoError(t, ledger.Create(ctx, a))

	n, err := ledger.IncrementRetry(ctx, a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = ledger.IncrementRetry(ctx, a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
