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

// RewardStore is an in-memory RewardStore. Balances start at zero and are
// created on first credit. One mutex makes CreditOnce and Redeem atomic,
// which is exactly the compare-and-set the reward invariants need.
type RewardStore struct {
	mu        sync.Mutex
	balances  map[uuid.UUID]int64
	byAttempt map[uuid.UUID]*domain.RewardTransaction

	Now func() time.Time
}

func NewRewardStore() *RewardStore {
	return &RewardStore{
		balances:  make(map[uuid.UUID]int64),
		byAttempt: make(map[uuid.UUID]*domain.RewardTransaction),
		Now:       time.Now,
	}
}

func (s *RewardStore) CreditOnce(_ context.Context, rtx *domain.RewardTransaction) (*domain.RewardTransaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAttempt[rtx.AttemptID]; ok {
		out := *existing
		return &out, false, nil
	}

	s.balances[rtx.UserID] += rtx.TotalPoints
	stored := *rtx
	stored.BalanceAfter = s.balances[rtx.UserID]
	s.byAttempt[rtx.AttemptID] = &stored

	out := stored
	return &out, true, nil
}

func (s *RewardStore) Redeem(_ context.Context, userID uuid.UUID, points int64, cashback decimal.Decimal) (*domain.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if points > s.balances[userID] {
		return nil, domain.ErrInsufficientPoints
	}
	s.balances[userID] -= points

	return &domain.Redemption{
		ID:            uuid.New(),
		UserID:        userID,
		Points:        points,
		CashbackValue: cashback,
		BalanceAfter:  s.balances[userID],
		CreatedAt:     s.Now(),
	}, nil
}

func (s *RewardStore) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *RewardStore) TransactionsByUser(_ context.Context, userID uuid.UUID) ([]domain.RewardTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.RewardTransaction
	for _, rtx := range s.byAttempt {
		if rtx.UserID == userID {
			out = append(out, *rtx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
