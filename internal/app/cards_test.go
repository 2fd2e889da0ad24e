package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"billpay-processing-system/internal/adapters/gateway"
	"billpay-processing-system/internal/adapters/storage/memory"
	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/observability"
)

// Luhn-valid test PANs.
const (
	testPAN        = "4111111111111111"
	anotherTestPAN = "5555555555554444"
)

func newCardManager() (*CardManager, *memory.CardStore, *gateway.Simulated) {
	store := memory.NewCardStore()
	sim := gateway.NewSimulated()
	return NewCardManager(store, sim, observability.SetupLogger("test")), store, sim
}

func TestCardManager_AddCard_Success(t *testing.T) {
	// --- Arrange ---
	manager, _, _ := newCardManager()
	userID := uuid.New()

	// --- Act ---
	card, err := manager.AddCard(context.Background(), userID, testPAN, "VISA", 12, 2028)

	// --- Assert ---
	assert.NoError(t, err)
	assert.True(t, card.Verified)
	assert.True(t, card.Primary)
	assert.Equal(t, "1111", card.Last4)
	assert.NotContains(t, card.CardHash, testPAN[:6])
	assert.NotEqual(t, testPAN, card.CardHash)
}

func TestCardManager_AddCard_SecondCardNotPrimary(t *testing.T) {
	manager, _, _ := newCardManager()
	userID := uuid.New()

	_, err := manager.AddCard(context.Background(), userID, testPAN, "VISA", 12, 2028)
	assert.NoError(t, err)

	second, err := manager.AddCard(context.Background(), userID, anotherTestPAN, "VISA", 6, 2029)
	assert.NoError(t, err)
	assert.False(t, second.Primary)
}

func TestCardManager_AddCard_LuhnRejected(t *testing.T) {
	manager, store, _ := newCardManager()
	userID := uuid.New()

	_, err := manager.AddCard(context.Background(), userID, "4111111111111112", "VISA", 12, 2028)

	assert.ErrorIs(t, err, domain.ErrInvalidCard)
	cards, _ := store.ListByUser(context.Background(), userID)
	assert.Empty(t, cards)
}

func TestCardManager_AddCard_VerificationDeclined(t *testing.T) {
	manager, store, sim := newCardManager()
	sim.Script = []domain.ChargeOutcome{domain.ChargeDeclined}
	userID := uuid.New()

	_, err := manager.AddCard(context.Background(), userID, testPAN, "VISA", 12, 2028)

	assert.ErrorIs(t, err, domain.ErrInvalidCard)
	cards, _ := store.ListByUser(context.Background(), userID)
	assert.Empty(t, cards)
}

func TestCardManager_AddCard_CapEnforced(t *testing.T) {
	manager, store, _ := newCardManager()
	userID := uuid.New()

	for i := 0; i < domain.MaxCardsPerUser; i++ {
		err := store.Add(context.Background(), &domain.Card{ID: uuid.New(), UserID: userID, Verified: true})
		assert.NoError(t, err)
	}

	_, err := manager.AddCard(context.Background(), userID, testPAN, "VISA", 12, 2028)
	assert.ErrorIs(t, err, domain.ErrCardLimitReached)
}
