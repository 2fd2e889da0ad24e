// Package idempotency deduplicates payment submissions. The key is derived
// from (user, card, amount, 5-minute bucket); admission is a compare-and-set
// against a keyed store so concurrent submissions resolve deterministically
// to a single winner.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/core/ports"
)

// Window is the dedup horizon: two identical submissions inside the same
// bucket map to the same key.
const Window = 5 * time.Minute

// KeyFor derives the idempotency key. The timestamp is floored to the
// window so all submissions inside one bucket collide.
func KeyFor(userID, cardID uuid.UUID, amount decimal.Decimal, at time.Time) string {
	bucket := at.Unix() - at.Unix()%int64(Window/time.Second)
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", userID, cardID, amount.StringFixed(2), bucket)))
	return hex.EncodeToString(h[:])
}

// Guard admits at most one active attempt per key within the window.
type Guard struct {
	store ports.IdempotencyStore
}

func NewGuard(store ports.IdempotencyStore) *Guard {
	return &Guard{store: store}
}

// Admit claims the key for attemptID. Losers of the race receive
// domain.ErrDuplicatePayment. The claim expires with the bucket, so a key
// held by a PENDING or SUCCESS attempt blocks for the remainder of the
// window only.
func (g *Guard) Admit(ctx context.Context, key string, attemptID uuid.UUID, at time.Time) error {
	ttl := Window - time.Duration(at.Unix()%int64(Window/time.Second))*time.Second
	ok, err := g.store.PutIfAbsent(ctx, key, attemptID, ttl)
	if err != nil {
		return fmt.Errorf("idempotency admit: %w", err)
	}
	if !ok {
		return domain.ErrDuplicatePayment
	}
	return nil
}

// Release frees the key immediately. Called when an attempt terminal-fails
// so an identical retry is admitted without waiting out the window.
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.store.Release(ctx, key)
}
