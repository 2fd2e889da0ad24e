package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"billpay-processing-system/internal/adapters/storage/memory"
	"billpay-processing-system/internal/core/domain"
)

func TestKeyFor_SameBucketCollides(t *testing.T) {
	userID := uuid.New()
	cardID := uuid.New()
	amount := decimal.RequireFromString("2500.00")
	at := time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)

	key1 := KeyFor(userID, cardID, amount, at)
	key2 := KeyFor(userID, cardID, amount, at.Add(2*time.Minute))

	assert.Equal(t, key1, key2)
}

func TestKeyFor_DifferentBucket(t *testing.T) {
	userID := uuid.New()
	cardID := uuid.New()
	amount := decimal.RequireFromString("2500.00")
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	key1 := KeyFor(userID, cardID, amount, at)
	key2 := KeyFor(userID, cardID, amount, at.Add(Window))

	assert.NotEqual(t, key1, key2)
}

func TestKeyFor_TrailingZerosNormalized(t *testing.T) {
	userID := uuid.New()
	cardID := uuid.New()
	at := time.Now()

	// "2500" and "2500.00" are the same amount and must dedupe together.
	key1 := KeyFor(userID, cardID, decimal.RequireFromString("2500"), at)
	key2 := KeyFor(userID, cardID, decimal.RequireFromString("2500.00"), at)

	assert.Equal(t, key1, key2)
}

func TestGuard_Admit_DuplicateRejected(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyStore())
	ctx := context.Background()
	key := KeyFor(uuid.New(), uuid.New(), decimal.RequireFromString("100.00"), time.Now())

	assert.NoError(t, guard.Admit(ctx, key, uuid.New(), time.Now()))

	err := guard.Admit(ctx, key, uuid.New(), time.Now())
	assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
}

func TestGuard_Release_AdmitsRetry(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyStore())
	ctx := context.Background()
	key := KeyFor(uuid.New(), uuid.New(), decimal.RequireFromString("100.00"), time.Now())

	assert.NoError(t, guard.Admit(ctx, key, uuid.New(), time.Now()))
	assert.NoError(t, guard.Release(ctx, key))

	// A failed attempt frees the key; the retry is admitted immediately.
	assert.NoError(t, guard.Admit(ctx, key, uuid.New(), time.Now()))
}

func TestGuard_Admit_SingleWinnerUnderConcurrency(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyStore())
	ctx := context.Background()
	key := KeyFor(uuid.New(), uuid.New(), decimal.RequireFromString("100.00"), time.Now())

	const submitters = 16
	var wg sync.WaitGroup
	errs := make([]error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = guard.Admit(ctx, key, uuid.New(), time.Now())
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestGuard_Admit_ExpiredKeyReclaimed(t *testing.T) {
	store := memory.NewIdempotencyStore()
	guard := NewGuard(store)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	key := KeyFor(uuid.New(), uuid.New(), decimal.RequireFromString("100.00"), now)
	assert.NoError(t, guard.Admit(ctx, key, uuid.New(), now))

	// Next window: the old claim has expired.
	now = now.Add(Window + time.Second)
	assert.NoError(t, guard.Admit(ctx, key, uuid.New(), now))
}
