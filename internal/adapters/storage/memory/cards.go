package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"billpay-processing-system/internal/core/domain"
)

// CardStore is an in-memory CardStore enforcing the per-user card cap and
// the at-most-one-primary invariant under one lock.
type CardStore struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*domain.Card
}

func NewCardStore() *CardStore {
	return &CardStore{cards: make(map[uuid.UUID]*domain.Card)}
}

func (s *CardStore) Add(_ context.Context, card *domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.cards {
		if c.UserID == card.UserID {
			count++
			if card.Primary && c.Primary {
				c.Primary = false
			}
		}
	}
	if count >= domain.MaxCardsPerUser {
		return domain.ErrCardLimitReached
	}

	stored := *card
	s.cards[card.ID] = &stored
	return nil
}

func (s *CardStore) Get(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[id]
	if !ok {
		return nil, domain.ErrCardNotFound
	}
	out := *c
	return &out, nil
}

func (s *CardStore) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Card
	for _, c := range s.cards {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

// SetPrimary flips the primary flag to cardID atomically, keeping at most
// one primary card per user.
func (s *CardStore) SetPrimary(_ context.Context, userID, cardID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.cards[cardID]
	if !ok || target.UserID != userID {
		return domain.ErrCardNotFound
	}
	for _, c := range s.cards {
		if c.UserID == userID {
			c.Primary = false
		}
	}
	target.Primary = true
	return nil
}

func (s *CardStore) Remove(_ context.Context, userID, cardID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return domain.ErrCardNotFound
	}
	delete(s.cards, cardID)
	return nil
}
