package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"billpay-processing-system/internal/core/domain"
)

func TestCardStore_Add_EnforcesCap(t *testing.T) {
	store := NewCardStore()
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < domain.MaxCardsPerUser; i++ {
		err := store.Add(ctx, &domain.Card{
			ID:     uuid.New(),
			UserID: userID,
			Last4:  fmt.Sprintf("%04d", i),
		})
		assert.NoError(t, err)
	}

	err := store.Add(ctx, &domain.Card{ID: uuid.New(), UserID: userID})
	assert.ErrorIs(t, err, domain.ErrCardLimitReached)

	// The cap is per user, not global.
	err = store.Add(ctx, &domain.Card{ID: uuid.New(), UserID: uuid.New()})
	assert.NoError(t, err)
}

func TestCardStore_SinglePrimary(t *testing.T) {
	store := NewCardStore()
	ctx := context.Background()
	userID := uuid.New()

	first := &domain.Card{ID: uuid.New(), UserID: userID, Primary: true}
	assert.NoError(t, store.Add(ctx, first))

	// Adding a second primary demotes the first.
	second := &domain.Card{ID: uuid.New(), UserID: userID, Primary: true}
	assert.NoError(t, store.Add(ctx, second))

	cards, err := store.ListByUser(ctx, userID)
	assert.NoError(t, err)
	primaries := 0
	for _, c := range cards {
		if c.Primary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestCardStore_SetPrimary_Swaps(t *testing.T) {
	store := NewCardStore()
	ctx := context.Background()
	userID := uuid.New()

	a := &domain.Card{ID: uuid.New(), UserID: userID, Primary: true}
	b := &domain.Card{ID: uuid.New(), UserID: userID}
	assert.NoError(t, store.Add(ctx, a))
	assert.NoError(t, store.Add(ctx, b))

	assert.NoError(t, store.SetPrimary(ctx, userID, b.ID))

	gotA, _ := store.Get(ctx, a.ID)
	gotB, _ := store.Get(ctx, b.ID)
	assert.False(t, gotA.Primary)
	assert.True(t, gotB.Primary)
}

func TestCardStore_OwnershipChecks(t *testing.T) {
	store := NewCardStore()
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	card := &domain.Card{ID: uuid.New(), UserID: owner}
	assert.NoError(t, store.Add(ctx, card))

	assert.ErrorIs(t, store.SetPrimary(ctx, stranger, card.ID), domain.ErrCardNotFound)
	assert.ErrorIs(t, store.Remove(ctx, stranger, card.ID), domain.ErrCardNotFound)

	// The owner can remove it.
	assert.NoError(t, store.Remove(ctx, owner, card.ID))
	_, err := store.Get(ctx, card.ID)
	assert.ErrorIs(t, err, domain.ErrCardNotFound)
}
