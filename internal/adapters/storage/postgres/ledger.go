package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

const sumActiveTodaySQL = `
	SELECT COALESCE(SUM(amount), 0)::text
	FROM payment_attempts
	WHERE user_id = $1
	  AND status IN ('PENDING', 'SUCCESS')
	  AND created_at >= date_trunc('day', now())
`

// Create inserts a PENDING attempt. The daily cap is re-checked inside the
// same transaction, under a per-user advisory lock, so the validation-time
// snapshot cannot be raced past.
func (r *Repository) Create(ctx context.Context, a *domain.PaymentAttempt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := lockUser(ctx, tx, a.UserID); err != nil {
		return err
	}

	var totalStr string
	if err := tx.QueryRow(ctx, sumActiveTodaySQL, a.UserID).Scan(&totalStr); err != nil {
		return fmt.Errorf("sum active today: %w", err)
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return fmt.Errorf("parse daily total %q: %w", totalStr, err)
	}
	if total.Add(a.Amount).GreaterThan(domain.DailyPaymentLimit) {
		return domain.ErrDailyLimitExceeded
	}

	const insertSQL = `
		INSERT INTO payment_attempts
		    (id, idempotency_key, user_id, card_id, amount, method, kind, status, retry_count, created_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.Exec(ctx, insertSQL,
		a.ID,
		a.IdempotencyKey,
		a.UserID,
		a.CardID,
		a.Amount.StringFixed(2),
		string(a.Method),
		string(a.Kind),
		string(a.Status),
		a.RetryCount,
		a.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}

	return tx.Commit(ctx)
}

// Transition moves an attempt out of PENDING. The state check lives in the
// UPDATE predicate: zero rows affected means the attempt is missing or
// already terminal.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, to domain.PaymentStatus) error {
	if !to.Terminal() {
		return domain.ErrInvalidTransition
	}

	ct, err := r.pool.Exec(ctx, `
		UPDATE payment_attempts
		SET status = $2, settled_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`, id, string(to))
	if err != nil {
		return fmt.Errorf("transition payment attempt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); errors.Is(err, domain.ErrAttemptNotFound) {
			return domain.ErrAttemptNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *Repository) SetGatewayRef(ctx context.Context, id uuid.UUID, ref string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE payment_attempts SET gateway_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("set gateway ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (r *Repository) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE payment_attempts
		SET retry_count = retry_count + 1
		WHERE id = $1
		RETURNING retry_count
	`, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrAttemptNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry: %w", err)
	}
	return count, nil
}

func (r *Repository) SumActiveToday(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var totalStr string
	if err := r.pool.QueryRow(ctx, sumActiveTodaySQL, userID).Scan(&totalStr); err != nil {
		return decimal.Zero, fmt.Errorf("sum active today: %w", err)
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse daily total %q: %w", totalStr, err)
	}
	return total, nil
}

const attemptColumns = `
	id, idempotency_key, user_id, card_id, amount::text, method, kind,
	status, COALESCE(gateway_ref, ''), retry_count, created_at, settled_at
`

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	var (
		a         domain.PaymentAttempt
		amountStr string
		method    string
		kind      string
		status    string
		settledAt *time.Time
	)
	if err := row.Scan(
		&a.ID, &a.IdempotencyKey, &a.UserID, &a.CardID, &amountStr,
		&method, &kind, &status, &a.GatewayRef, &a.RetryCount,
		&a.CreatedAt, &settledAt,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amountStr, err)
	}
	a.Amount = amount
	a.Method = domain.PaymentMethod(method)
	a.Kind = domain.PaymentKind(kind)
	a.Status = domain.PaymentStatus(status)
	a.SettledAt = settledAt
	return &a, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment attempt: %w", err)
	}
	return a, nil
}

// Query supports the history/export surface: filter by card, status and
// created-at range, newest first.
func (r *Repository) Query(ctx context.Context, userID uuid.UUID, f domain.LedgerFilter) ([]domain.PaymentAttempt, error) {
	sql := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE user_id = $1`
	args := []any{userID}

	if f.CardID != nil {
		args = append(args, *f.CardID)
		sql += fmt.Sprintf(" AND card_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		sql += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		sql += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		sql += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	sql += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query payment attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
