package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/core/ports"
	"billpay-processing-system/internal/validation"
)

// verificationAmount is the ₹1 charge used to prove the card is live.
var verificationAmount = decimal.NewFromInt(1)

// CardManager implements the CardService port.
type CardManager struct {
	cards   ports.CardStore
	gateway ports.Gateway
	logger  *slog.Logger

	now func() time.Time
}

func NewCardManager(cards ports.CardStore, gateway ports.Gateway, logger *slog.Logger) *CardManager {
	return &CardManager{cards: cards, gateway: gateway, logger: logger, now: time.Now}
}

// AddCard registers a card after Luhn validation and a ₹1 verification
// charge. The PAN is hashed immediately; only the last four digits are kept.
func (m *CardManager) AddCard(ctx context.Context, userID uuid.UUID, pan, network string, expMonth, expYear int) (*domain.Card, error) {
	if !validation.LuhnValid(pan) {
		return nil, domain.ErrInvalidCard
	}

	existing, err := m.cards.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	if len(existing) >= domain.MaxCardsPerUser {
		return nil, domain.ErrCardLimitReached
	}

	hash := sha256.Sum256([]byte(pan))
	card := &domain.Card{
		ID:          uuid.New(),
		UserID:      userID,
		Last4:       pan[len(pan)-4:],
		Network:     network,
		ExpiryMonth: expMonth,
		ExpiryYear:  expYear,
		CardHash:    fmt.Sprintf("%x", hash),
		CreatedAt:   m.now(),
	}

	res, err := m.gateway.Charge(ctx, card.ID, card.CardHash, verificationAmount, domain.MethodCard)
	if err != nil {
		return nil, fmt.Errorf("verification charge: %w", err)
	}
	if res.Outcome != domain.ChargeSuccess {
		m.logger.Info("card verification declined", "card_last4", card.Last4, "reason", res.DeclineReason)
		return nil, domain.ErrInvalidCard
	}
	card.Verified = true

	// First card becomes primary automatically.
	card.Primary = len(existing) == 0

	if err := m.cards.Add(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (m *CardManager) RemoveCard(ctx context.Context, userID, cardID uuid.UUID) error {
	return m.cards.Remove(ctx, userID, cardID)
}

func (m *CardManager) SetPrimary(ctx context.Context, userID, cardID uuid.UUID) error {
	return m.cards.SetPrimary(ctx, userID, cardID)
}

func (m *CardManager) ListCards(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return m.cards.ListByUser(ctx, userID)
}
