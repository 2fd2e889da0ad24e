// Package rewards computes loyalty points for settled payments and manages
// the point balance, tier derivation, and redemptions.
package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/core/ports"
)

const (
	// FullPaymentBonus is granted when the paid amount clears the statement
	// total exactly.
	FullPaymentBonus = 500

	// EarlyPaymentBonus is granted when settlement lands at least
	// EarlyPaymentLead before the due date.
	EarlyPaymentBonus = 200
	EarlyPaymentLead  = 5 * 24 * time.Hour

	// MinRedeemPoints is the smallest redemption accepted.
	MinRedeemPoints = 500

	// CashbackPointsPerRupee converts redeemed points to cashback value.
	CashbackPointsPerRupee = 100
)

// Breakdown itemizes the points earned for one payment. Tiers gate perks,
// not earning, so no multiplier is applied here.
type Breakdown struct {
	Base  int64
	Full  int64
	Early int64
}

// Total sums the itemized points.
func (b Breakdown) Total() int64 {
	return b.Base + b.Full + b.Early
}

// CalculatePoints is the pure earning rule: 1 point per ₹100 paid, +500 for
// clearing the total due exactly, +200 for settling 5+ days early. bill may
// be nil when the card has no open statement; only the base rule applies.
func CalculatePoints(amount decimal.Decimal, settledAt time.Time, bill *domain.Bill) Breakdown {
	b := Breakdown{
		Base: amount.Div(decimal.NewFromInt(100)).Floor().IntPart(),
	}
	if bill == nil {
		return b
	}
	if amount.Equal(bill.TotalDue) {
		b.Full = FullPaymentBonus
	}
	if !settledAt.After(bill.DueDate.Add(-EarlyPaymentLead)) {
		b.Early = EarlyPaymentBonus
	}
	return b
}

// Engine implements the RewardService port and the credit path invoked by
// the payment orchestrator.
type Engine struct {
	store  ports.RewardStore
	bills  ports.BillProvider
	logger *slog.Logger
}

func NewEngine(store ports.RewardStore, bills ports.BillProvider, logger *slog.Logger) *Engine {
	return &Engine{store: store, bills: bills, logger: logger}
}

// Credit computes and applies the reward for a successful attempt. It is
// idempotent: the store holds a compare-and-set on the attempt id, so a
// second call (retry path, reconciliation job) returns the original row
// without moving the balance again.
func (e *Engine) Credit(ctx context.Context, attempt *domain.PaymentAttempt) (*domain.RewardTransaction, error) {
	if attempt.Status != domain.StatusSuccess {
		return nil, fmt.Errorf("reward credit requires a SUCCESS attempt, got %s", attempt.Status)
	}
	settledAt := attempt.CreatedAt
	if attempt.SettledAt != nil {
		settledAt = *attempt.SettledAt
	}

	bill, err := e.bills.GetBill(ctx, attempt.CardID)
	if err != nil {
		// Bonuses depend on the statement; without it the credit would be
		// non-deterministic. Fail and let reconciliation retry.
		return nil, fmt.Errorf("fetch bill for reward credit: %w", err)
	}

	points := CalculatePoints(attempt.Amount, settledAt, bill)
	rtx := &domain.RewardTransaction{
		ID:                uuid.New(),
		AttemptID:         attempt.ID,
		UserID:            attempt.UserID,
		BasePoints:        points.Base,
		FullPaymentBonus:  points.Full,
		EarlyPaymentBonus: points.Early,
		TotalPoints:       points.Total(),
		CreatedAt:         settledAt,
	}

	stored, created, err := e.store.CreditOnce(ctx, rtx)
	if err != nil {
		return nil, fmt.Errorf("credit reward: %w", err)
	}
	if !created {
		e.logger.Debug("reward already credited", "attempt_id", attempt.ID)
	}
	return stored, nil
}

// Balance returns the user's point balance and derived tier.
func (e *Engine) Balance(ctx context.Context, userID uuid.UUID) (int64, domain.Tier, error) {
	balance, err := e.store.Balance(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	return balance, domain.TierForBalance(balance), nil
}

// Redeem debits points for cashback at CashbackPointsPerRupee. Requests
// below the minimum or above the balance fail with ErrInsufficientPoints;
// the balance never goes negative.
func (e *Engine) Redeem(ctx context.Context, userID uuid.UUID, points int64) (*domain.Redemption, error) {
	if points < MinRedeemPoints {
		return nil, domain.ErrInsufficientPoints
	}
	cashback := decimal.NewFromInt(points).
		Div(decimal.NewFromInt(CashbackPointsPerRupee)).
		Round(2)
	return e.store.Redeem(ctx, userID, points, cashback)
}

// Transactions lists the user's reward history for the export surface.
func (e *Engine) Transactions(ctx context.Context, userID uuid.UUID) ([]domain.RewardTransaction, error) {
	return e.store.TransactionsByUser(ctx, userID)
}
