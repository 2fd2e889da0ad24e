package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"billpay-processing-system/internal/adapters/gateway"
	"billpay-processing-system/internal/adapters/storage/memory"
	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/idempotency"
	"billpay-processing-system/internal/observability"
	"billpay-processing-system/internal/rewards"
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

// Mock - implementation of the OTP verifier
type MockOTPVerifier struct {
	mock.Mock
}

func (m *MockOTPVerifier) Verify(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

// Mock - implementation of the notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PaymentSettled(ctx context.Context, attempt *domain.PaymentAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockNotifier) RewardCredited(ctx context.Context, rtx *domain.RewardTransaction) error {
	args := m.Called(ctx, rtx)
	return args.Error(0)
}

func (m *MockNotifier) RewardReconcile(ctx context.Context, attempt *domain.PaymentAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

type fixture struct {
	orch        *Orchestrator
	ledger      *memory.Ledger
	rewardStore *memory.RewardStore
	cards       *memory.CardStore
	gateway     *gateway.Simulated
	bills       *MockBillProvider
	otp         *MockOTPVerifier
	notifier    *MockNotifier

	userID uuid.UUID
	cardID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger:      memory.NewLedger(),
		rewardStore: memory.NewRewardStore(),
		cards:       memory.NewCardStore(),
		gateway:     gateway.NewSimulated(),
		bills:       new(MockBillProvider),
		otp:         new(MockOTPVerifier),
		notifier:    new(MockNotifier),
		userID:      uuid.New(),
		cardID:      uuid.New(),
	}

	err := f.cards.Add(context.Background(), &domain.Card{
		ID:       f.cardID,
		UserID:   f.userID,
		Last4:    "9010",
		Verified: true,
		Primary:  true,
	})
	assert.NoError(t, err)

	logger := observability.SetupLogger("test")
	engine := rewards.NewEngine(f.rewardStore, f.bills, logger)
	guard := idempotency.NewGuard(memory.NewIdempotencyStore())
	f.orch = NewOrchestrator(f.ledger, guard, f.cards, f.gateway, f.bills, f.otp, engine, f.notifier, logger)
	return f
}

func (f *fixture) pay(amount string) (*domain.PaymentAttempt, error) {
	return f.orch.Pay(context.Background(), domain.AuthContext{UserID: f.userID}, domain.PaymentRequest{
		CardID: f.cardID,
		Amount: decimal.RequireFromString(amount),
		Method: domain.MethodUPI,
		Kind:   domain.KindCustom,
	})
}

func TestOrchestrator_Pay_Success(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("9999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	// --- Act ---
	attempt, err := f.pay("2500.00")

	// --- Assert ---
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, attempt.Status)
	assert.NotEmpty(t, attempt.GatewayRef)
	assert.NotNil(t, attempt.SettledAt)

	stored, err := f.ledger.Get(context.Background(), attempt.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)

	// 25 base + 200 early payment bonus.
	balance, _ := f.rewardStore.Balance(context.Background(), f.userID)
	assert.Equal(t, int64(225), balance)

	f.notifier.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "RewardReconcile", mock.Anything, mock.Anything)
}

func TestOrchestrator_Pay_TransientExhaustsRetries(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t)
	f.gateway.Script = []domain.ChargeOutcome{
		domain.ChargeTransient, domain.ChargeTransient, domain.ChargeTransient,
	}
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)

	// --- Act ---
	_, err := f.pay("2500.00")

	// --- Assert ---
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, 0, f.gateway.ChargeCount())

	// The attempt is terminal FAILED with the retry budget spent.
	attempts, _ := f.ledger.Query(context.Background(), f.userID, domain.LedgerFilter{})
	assert.Len(t, attempts, 1)
	assert.Equal(t, domain.StatusFailed, attempts[0].Status)
	assert.Equal(t, MaxGatewayAttempts-1, attempts[0].RetryCount)

	// No reward moved.
	balance, _ := f.rewardStore.Balance(context.Background(), f.userID)
	assert.Zero(t, balance)

	// Failure freed the key: the same payment is admitted again.
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("9999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)
	retry, err := f.pay("2500.00")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, retry.Status)
}

func TestOrchestrator_Pay_TransientThenRecovered(t *testing.T) {
	f := newFixture(t)
	f.gateway.Script = []domain.ChargeOutcome{domain.ChargeTransient, domain.ChargeSuccess}
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("9999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	attempt, err := f.pay("2500.00")

	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, attempt.Status)
	assert.Equal(t, 1, attempt.RetryCount)
	assert.Equal(t, 1, f.gateway.ChargeCount())
}

func TestOrchestrator_Pay_DeclinedNotRetried(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t)
	f.gateway.Script = []domain.ChargeOutcome{domain.ChargeDeclined}
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)

	// --- Act ---
	_, err := f.pay("2500.00")

	// --- Assert ---
	assert.ErrorIs(t, err, domain.ErrPaymentDeclined)
	// The script held one outcome; a retry would have succeeded, so the
	// empty charge count proves the decline was final.
	assert.Equal(t, 0, f.gateway.ChargeCount())

	attempts, _ := f.ledger.Query(context.Background(), f.userID, domain.LedgerFilter{})
	assert.Len(t, attempts, 1)
	assert.Equal(t, domain.StatusFailed, attempts[0].Status)
	assert.Zero(t, attempts[0].RetryCount)
}

func TestOrchestrator_Pay_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("9999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	first, err := f.pay("2500.00")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, first.Status)

	_, err = f.pay("2500.00")
	assert.ErrorIs(t, err, domain.ErrDuplicatePayment)

	// Only the winner reached the ledger and the rail.
	attempts, _ := f.ledger.Query(context.Background(), f.userID, domain.LedgerFilter{})
	assert.Len(t, attempts, 1)
	assert.Equal(t, 1, f.gateway.ChargeCount())
}

func TestOrchestrator_Pay_RewardFailureDoesNotRollBackPayment(t *testing.T) {
	// --- Arrange: the statement service is down during crediting ---
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(nil, errors.New("core banking unavailable"))
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardReconcile", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)

	// --- Act ---
	attempt, err := f.pay("2500.00")

	// --- Assert: the payment stands, the credit is queued ---
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, attempt.Status)

	balance, _ := f.rewardStore.Balance(context.Background(), f.userID)
	assert.Zero(t, balance)

	f.notifier.AssertCalled(t, "RewardReconcile", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt"))
	f.notifier.AssertNotCalled(t, "RewardCredited", mock.Anything, mock.Anything)
}

func TestOrchestrator_Pay_OTPRequired(t *testing.T) {
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("99999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.otp.On("Verify", mock.Anything, f.userID, decimal.RequireFromString("15000.00")).Return(nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	attempt, err := f.pay("15000.00")

	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, attempt.Status)
	f.otp.AssertExpectations(t)
}

func TestOrchestrator_Pay_OTPRejected(t *testing.T) {
	// --- Arrange ---
	f := newFixture(t)
	f.otp.On("Verify", mock.Anything, f.userID, mock.Anything).Return(errors.New("wrong code"))

	// --- Act ---
	_, err := f.pay("15000.00")

	// --- Assert ---
	assert.ErrorIs(t, err, domain.ErrOTPRejected)

	// Nothing durable: no ledger entry, no charge, and the key is free.
	attempts, _ := f.ledger.Query(context.Background(), f.userID, domain.LedgerFilter{})
	assert.Empty(t, attempts)
	assert.Equal(t, 0, f.gateway.ChargeCount())

	f.otp.ExpectedCalls = nil
	f.otp.On("Verify", mock.Anything, f.userID, mock.Anything).Return(nil)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("99999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)
	retry, err := f.pay("15000.00")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, retry.Status)
}

func TestOrchestrator_Pay_NoOTPBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("99999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	// Exactly at the threshold: no OTP.
	_, err := f.pay("10000.00")

	assert.NoError(t, err)
	f.otp.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Pay_DailyLimit(t *testing.T) {
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("99999999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.otp.On("Verify", mock.Anything, f.userID, mock.Anything).Return(nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	// Two max-size payments land exactly on the ₹10,00,000 cap.
	for i := 0; i < 2; i++ {
		_, err := f.pay("500000.00")
		assert.NoError(t, err)
		// Distinct amounts would change the idempotency key; advance the
		// clock instead so the second submission is not a duplicate.
		f.orch.now = func() time.Time { return time.Now().Add(idempotency.Window * time.Duration(i+1)) }
	}

	// The next rupee breaches the cap.
	_, err := f.pay("100.00")
	assert.ErrorIs(t, err, domain.ErrDailyLimitExceeded)
}

func TestOrchestrator_Pay_UnverifiedCard(t *testing.T) {
	f := newFixture(t)
	unverified := uuid.New()
	err := f.cards.Add(context.Background(), &domain.Card{
		ID:       unverified,
		UserID:   f.userID,
		Verified: false,
	})
	assert.NoError(t, err)

	_, err = f.orch.Pay(context.Background(), domain.AuthContext{UserID: f.userID}, domain.PaymentRequest{
		CardID: unverified,
		Amount: decimal.RequireFromString("2500.00"),
		Method: domain.MethodUPI,
		Kind:   domain.KindCustom,
	})

	assert.ErrorIs(t, err, domain.ErrCardNotEligible)
}

func TestOrchestrator_Pay_UnknownCard(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Pay(context.Background(), domain.AuthContext{UserID: f.userID}, domain.PaymentRequest{
		CardID: uuid.New(),
		Amount: decimal.RequireFromString("2500.00"),
		Method: domain.MethodUPI,
		Kind:   domain.KindCustom,
	})

	assert.ErrorIs(t, err, domain.ErrCardNotEligible)
}

func TestOrchestrator_Pay_OtherUsersCard(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Pay(context.Background(), domain.AuthContext{UserID: uuid.New()}, domain.PaymentRequest{
		CardID: f.cardID,
		Amount: decimal.RequireFromString("2500.00"),
		Method: domain.MethodUPI,
		Kind:   domain.KindCustom,
	})

	assert.ErrorIs(t, err, domain.ErrCardNotEligible)
}

func TestOrchestrator_Pay_TotalDueUsesBillAmount(t *testing.T) {
	// --- Arrange: TOTAL_DUE payments take the amount from the statement ---
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{
			TotalDue:   decimal.RequireFromString("4250.00"),
			MinimumDue: decimal.RequireFromString("425.00"),
			DueDate:    time.Now().AddDate(0, 0, 10),
		}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	// --- Act ---
	attempt, err := f.orch.Pay(context.Background(), domain.AuthContext{UserID: f.userID}, domain.PaymentRequest{
		CardID: f.cardID,
		Method: domain.MethodNetBanking,
		Kind:   domain.KindTotalDue,
	})

	// --- Assert ---
	assert.NoError(t, err)
	assert.True(t, attempt.Amount.Equal(decimal.RequireFromString("4250.00")))

	// Full statement cleared early: 42 base + 500 + 200.
	balance, _ := f.rewardStore.Balance(context.Background(), f.userID)
	assert.Equal(t, int64(742), balance)
}

func TestOrchestrator_History_Filters(t *testing.T) {
	f := newFixture(t)
	f.bills.On("GetBill", mock.Anything, f.cardID).
		Return(&domain.Bill{TotalDue: decimal.RequireFromString("99999.00"), DueDate: time.Now().AddDate(0, 0, 10)}, nil)
	f.notifier.On("PaymentSettled", mock.Anything, mock.AnythingOfType("*domain.PaymentAttempt")).Return(nil)
	f.notifier.On("RewardCredited", mock.Anything, mock.AnythingOfType("*domain.RewardTransaction")).Return(nil)

	_, err := f.pay("2500.00")
	assert.NoError(t, err)

	success := domain.StatusSuccess
	got, err := f.orch.History(context.Background(), f.userID, domain.LedgerFilter{Status: &success})
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	failed := domain.StatusFailed
	got, err = f.orch.History(context.Background(), f.userID, domain.LedgerFilter{Status: &failed})
	assert.NoError(t, err)
	assert.Empty(t, got)
}
