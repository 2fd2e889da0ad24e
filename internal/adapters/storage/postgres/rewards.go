package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// CreditOnce applies the reward inside one transaction. The compare-and-set
// is the unique index on attempt_id: ON CONFLICT DO NOTHING tells us whether
// this call was the one that credited, and only that call moves the balance.
func (r *Repository) CreditOnce(ctx context.Context, rtx *domain.RewardTransaction) (*domain.RewardTransaction, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockUser(ctx, tx, rtx.UserID); err != nil {
		return nil, false, err
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO reward_transactions
		    (id, attempt_id, user_id, base_points, full_payment_bonus, early_payment_bonus, total_points, balance_after, created_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		ON CONFLICT (attempt_id) DO NOTHING
	`, rtx.ID, rtx.AttemptID, rtx.UserID, rtx.BasePoints, rtx.FullPaymentBonus,
		rtx.EarlyPaymentBonus, rtx.TotalPoints, rtx.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert reward transaction: %w", err)
	}

	if ct.RowsAffected() == 0 {
		// Already credited by an earlier call; hand back the original row.
		existing, err := r.rewardByAttempt(ctx, tx, rtx.AttemptID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, tx.Commit(ctx)
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET reward_balance = reward_balance + $2
		WHERE id = $1
		RETURNING reward_balance
	`, rtx.UserID, rtx.TotalPoints).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("apply reward balance: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE reward_transactions SET balance_after = $2 WHERE attempt_id = $1`,
		rtx.AttemptID, balance); err != nil {
		return nil, false, fmt.Errorf("record balance after: %w", err)
	}

	stored := *rtx
	stored.BalanceAfter = balance
	return &stored, true, tx.Commit(ctx)
}

// Redeem debits points under a row lock; the balance check and the debit are
// one atomic step, so the balance can never go negative.
func (r *Repository) Redeem(ctx context.Context, userID uuid.UUID, points int64, cashback decimal.Decimal) (*domain.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT reward_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user balance: %w", err)
	}

	if points > balance {
		return nil, domain.ErrInsufficientPoints
	}
	balance -= points

	if _, err := tx.Exec(ctx,
		`UPDATE users SET reward_balance = $2 WHERE id = $1`, userID, balance); err != nil {
		return nil, fmt.Errorf("debit reward balance: %w", err)
	}

	red := &domain.Redemption{
		ID:            uuid.New(),
		UserID:        userID,
		Points:        points,
		CashbackValue: cashback,
		BalanceAfter:  balance,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO redemptions (id, user_id, points, cashback_value, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`, red.ID, red.UserID, red.Points, red.CashbackValue.StringFixed(2), red.BalanceAfter).Scan(&red.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}

	return red, tx.Commit(ctx)
}

func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT reward_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read reward balance: %w", err)
	}
	return balance, nil
}

func (r *Repository) TransactionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.RewardTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, attempt_id, user_id, base_points, full_payment_bonus,
		       early_payment_bonus, total_points, balance_after, created_at
		FROM reward_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query reward transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.RewardTransaction
	for rows.Next() {
		var rtx domain.RewardTransaction
		if err := rows.Scan(&rtx.ID, &rtx.AttemptID, &rtx.UserID, &rtx.BasePoints,
			&rtx.FullPaymentBonus, &rtx.EarlyPaymentBonus, &rtx.TotalPoints,
			&rtx.BalanceAfter, &rtx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reward transaction: %w", err)
		}
		out = append(out, rtx)
	}
	return out, rows.Err()
}

func (r *Repository) rewardByAttempt(ctx context.Context, tx pgx.Tx, attemptID uuid.UUID) (*domain.RewardTransaction, error) {
	var rtx domain.RewardTransaction
	err := tx.QueryRow(ctx, `
		SELECT id, attempt_id, user_id, base_points, full_payment_bonus,
		       early_payment_bonus, total_points, balance_after, created_at
		FROM reward_transactions
		WHERE attempt_id = $1
	`, attemptID).Scan(&rtx.ID, &rtx.AttemptID, &rtx.UserID, &rtx.BasePoints,
		&rtx.FullPaymentBonus, &rtx.EarlyPaymentBonus, &rtx.TotalPoints,
		&rtx.BalanceAfter, &rtx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load existing reward transaction: %w", err)
	}
	return &rtx, nil
}
