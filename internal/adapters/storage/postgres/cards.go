package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"billpay-processing-system/internal/core/domain"
)

// Add inserts a card, enforcing the per-user cap under the user's advisory
// lock. When the new card is primary, any previous primary is demoted in the
// same transaction so the at-most-one invariant holds at every commit point.
func (r *Repository) Add(ctx context.Context, card *domain.Card) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockUser(ctx, tx, card.UserID); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM cards WHERE user_id = $1`, card.UserID).Scan(&count); err != nil {
		return fmt.Errorf("count cards: %w", err)
	}
	if count >= domain.MaxCardsPerUser {
		return domain.ErrCardLimitReached
	}

	if card.Primary {
		if _, err := tx.Exec(ctx,
			`UPDATE cards SET is_primary = false WHERE user_id = $1 AND is_primary`, card.UserID); err != nil {
			return fmt.Errorf("demote primary card: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cards
		    (id, user_id, last4, network, expiry_month, expiry_year, card_hash, verified, is_primary, created_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, card.ID, card.UserID, card.Last4, card.Network, card.ExpiryMonth,
		card.ExpiryYear, card.CardHash, card.Verified, card.Primary, card.CreatedAt); err != nil {
		return fmt.Errorf("insert card: %w", err)
	}

	return tx.Commit(ctx)
}

const cardColumns = `
	id, user_id, last4, network, expiry_month, expiry_year, card_hash,
	verified, is_primary, created_at
`

func scanCard(row pgx.Row) (*domain.Card, error) {
	var c domain.Card
	if err := row.Scan(&c.ID, &c.UserID, &c.Last4, &c.Network, &c.ExpiryMonth,
		&c.ExpiryYear, &c.CardHash, &c.Verified, &c.Primary, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CardRepository is the ports.CardStore view of Repository. It exists
// because CardStore.Get and PaymentLedger.Get differ in return type, so
// one method set cannot carry both.
type CardRepository struct {
	*Repository
}

// Cards returns the CardStore view sharing this repository's pool.
func (r *Repository) Cards() *CardRepository {
	return &CardRepository{Repository: r}
}

func (r *CardRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	c, err := scanCard(r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repository) SetPrimary(ctx context.Context, userID, cardID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := lockUser(ctx, tx, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET is_primary = false WHERE user_id = $1 AND is_primary`, userID); err != nil {
		return fmt.Errorf("demote primary card: %w", err)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE cards SET is_primary = true WHERE id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return fmt.Errorf("promote primary card: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrCardNotFound
	}

	return tx.Commit(ctx)
}

func (r *Repository) Remove(ctx context.Context, userID, cardID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx,
		`DELETE FROM cards WHERE id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrCardNotFound
	}
	return nil
}
