package rewards

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"billpay-processing-system/internal/adapters/storage/memory"
	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/observability"
)

// Mock - implementation of the bill provider
type MockBillProvider struct {
	mock.Mock
}

func (m *MockBillProvider) GetBill(ctx context.Context, cardID uuid.UUID) (*domain.Bill, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bill), args.Error(1)
}

func rupees(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestCalculatePoints_FullAndEarly(t *testing.T) {
	// --- Arrange ---
	dueDate := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	bill := &domain.Bill{
		TotalDue: rupees("15000.00"),
		DueDate:  dueDate,
	}
	// Settled 6 days ahead of the due date.
	settledAt := dueDate.AddDate(0, 0, -6)

	// --- Act ---
	b := CalculatePoints(rupees("15000.00"), settledAt, bill)

	// --- Assert ---
	assert.Equal(t, int64(150), b.Base)
	assert.Equal(t, int64(FullPaymentBonus), b.Full)
	assert.Equal(t, int64(EarlyPaymentBonus), b.Early)
	assert.Equal(t, int64(850), b.Total())
}

func TestCalculatePoints_EarlyBoundary(t *testing.T) {
	dueDate := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	bill := &domain.Bill{TotalDue: rupees("20000.00"), DueDate: dueDate}

	// Exactly dueDate - 5 days still earns the early bonus.
	atBoundary := CalculatePoints(rupees("5000.00"), dueDate.AddDate(0, 0, -5), bill)
	assert.Equal(t, int64(EarlyPaymentBonus), atBoundary.Early)

	// One second later does not.
	pastBoundary := CalculatePoints(rupees("5000.00"), dueDate.AddDate(0, 0, -5).Add(time.Second), bill)
	assert.Zero(t, pastBoundary.Early)
}

func TestCalculatePoints_PartialPaymentNoBonus(t *testing.T) {
	dueDate := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	bill := &domain.Bill{TotalDue: rupees("15000.00"), DueDate: dueDate}

	b := CalculatePoints(rupees("14999.99"), dueDate, bill)

	assert.Equal(t, int64(149), b.Base)
	assert.Zero(t, b.Full)
	assert.Zero(t, b.Early)
}

func TestCalculatePoints_NoBill(t *testing.T) {
	b := CalculatePoints(rupees("250.00"), time.Now(), nil)

	assert.Equal(t, int64(2), b.Base)
	assert.Zero(t, b.Full)
	assert.Zero(t, b.Early)
}

func TestCalculatePoints_SubHundredAmount(t *testing.T) {
	b := CalculatePoints(rupees("199.00"), time.Now(), nil)
	assert.Equal(t, int64(1), b.Base)
}

func successfulAttempt(amount string, settledAt time.Time) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		CardID:    uuid.New(),
		Amount:    rupees(amount),
		Kind:      domain.KindCustom,
		Status:    domain.StatusSuccess,
		CreatedAt: settledAt,
		SettledAt: &settledAt,
	}
}

func TestEngine_Credit_Success(t *testing.T) {
	// --- Arrange ---
	store := memory.NewRewardStore()
	bills := new(MockBillProvider)
	engine := NewEngine(store, bills, observability.SetupLogger("test"))

	dueDate := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	attempt := successfulAttempt("15000.00", dueDate.AddDate(0, 0, -6))
	bills.On("GetBill", mock.Anything, attempt.CardID).
		Return(&domain.Bill{TotalDue: rupees("15000.00"), DueDate: dueDate}, nil)

	// --- Act ---
	rtx, err := engine.Credit(context.Background(), attempt)

	// --- Assert ---
	assert.NoError(t, err)
	assert.Equal(t, int64(850), rtx.TotalPoints)
	assert.Equal(t, int64(850), rtx.BalanceAfter)
	bills.AssertExpectations(t)
}

func TestEngine_Credit_RejectsNonSuccess(t *testing.T) {
	engine := NewEngine(memory.NewRewardStore(), new(MockBillProvider), observability.SetupLogger("test"))

	attempt := successfulAttempt("1000.00", time.Now())
	attempt.Status = domain.StatusPending

	_, err := engine.Credit(context.Background(), attempt)
	assert.Error(t, err)
}

func TestEngine_Credit_IdempotentUnderConcurrency(t *testing.T) {
	// --- Arrange ---
	store := memory.NewRewardStore()
	bills := new(MockBillProvider)
	engine := NewEngine(store, bills, observability.SetupLogger("test"))

	attempt := successfulAttempt("10000.00", time.Now())
	bills.On("GetBill", mock.Anything, attempt.CardID).
		Return(&domain.Bill{TotalDue: rupees("99999.00"), DueDate: time.Now().AddDate(0, 0, 1)}, nil)

	// --- Act: the orchestrator retry path and the reconciler may race ---
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Credit(context.Background(), attempt)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// --- Assert: exactly one credit moved the balance ---
	balance, err := store.Balance(context.Background(), attempt.UserID)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestEngine_Balance_Tiers(t *testing.T) {
	tests := []struct {
		balance int64
		tier    domain.Tier
	}{
		{0, domain.TierBronze},
		{999, domain.TierBronze},
		{1000, domain.TierSilver},
		{4999, domain.TierSilver},
		{5000, domain.TierGold},
		{120000, domain.TierGold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.tier, domain.TierForBalance(tt.balance), "balance %d", tt.balance)
	}
}

func creditPoints(t *testing.T, store *memory.RewardStore, userID uuid.UUID, points int64) {
	t.Helper()
	_, _, err := store.CreditOnce(context.Background(), &domain.RewardTransaction{
		ID:          uuid.New(),
		AttemptID:   uuid.New(),
		UserID:      userID,
		BasePoints:  points,
		TotalPoints: points,
		CreatedAt:   time.Now(),
	})
	assert.NoError(t, err)
}

func TestEngine_Redeem_Success(t *testing.T) {
	store := memory.NewRewardStore()
	engine := NewEngine(store, new(MockBillProvider), observability.SetupLogger("test"))
	userID := uuid.New()
	creditPoints(t, store, userID, 1200)

	red, err := engine.Redeem(context.Background(), userID, 1000)

	assert.NoError(t, err)
	assert.Equal(t, "10.00", red.CashbackValue.StringFixed(2))
	assert.Equal(t, int64(200), red.BalanceAfter)
}

func TestEngine_Redeem_BelowMinimum(t *testing.T) {
	store := memory.NewRewardStore()
	engine := NewEngine(store, new(MockBillProvider), observability.SetupLogger("test"))
	userID := uuid.New()
	creditPoints(t, store, userID, 1200)

	_, err := engine.Redeem(context.Background(), userID, 400)

	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	// Balance untouched.
	balance, _ := store.Balance(context.Background(), userID)
	assert.Equal(t, int64(1200), balance)
}

func TestEngine_Redeem_MoreThanBalance(t *testing.T) {
	store := memory.NewRewardStore()
	engine := NewEngine(store, new(MockBillProvider), observability.SetupLogger("test"))
	userID := uuid.New()
	creditPoints(t, store, userID, 600)

	_, err := engine.Redeem(context.Background(), userID, 800)

	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
	balance, _ := store.Balance(context.Background(), userID)
	assert.Equal(t, int64(600), balance)
}

func TestEngine_Redeem_ConcurrentNeverNegative(t *testing.T) {
	store := memory.NewRewardStore()
	engine := NewEngine(store, new(MockBillProvider), observability.SetupLogger("test"))
	userID := uuid.New()
	creditPoints(t, store, userID, 1000)

	// Two redemptions of 600 against a balance of 1000: at most one wins.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Redeem(context.Background(), userID, 600)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	balance, _ := store.Balance(context.Background(), userID)
	assert.Equal(t, int64(400), balance)
}
