package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CreateReferralEdge links a referred user to their referrer. The referred
// user is the primary key, so only the first link ever wins; a repeat attempt
// (same or different referrer) reports created=false without touching the row.
func (s *PostgresStore) CreateReferralEdge(ctx context.Context, referrerUserID, referredUserID int64) (bool, error) {
	const op = "store.postgres.CreateReferralEdge"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO referral_edges (referred_user_id, referrer_user_id)
VALUES ($1, $2)
ON CONFLICT (referred_user_id) DO NOTHING
`, referredUserID, referrerUserID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// QualifyReferral marks the referred user's edge qualified and credits the
// referrer's balance in the same transaction. The conditional UPDATE fires at
// most once per edge, so the bonus is paid exactly once no matter how many
// qualifying actions the referred user performs.
func (s *PostgresStore) QualifyReferral(ctx context.Context, referredUserID int64, bonus int64, now time.Time) (int64, bool, error) {
	const op = "store.postgres.QualifyReferral"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var referrerUserID int64
	err = tx.QueryRow(ctx, `
UPDATE referral_edges
SET qualified = TRUE, qualified_at = $2
WHERE referred_user_id = $1 AND NOT qualified
RETURNING referrer_user_id
`, referredUserID, now.UTC()).Scan(&referrerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// no edge, or already paid out
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(ctx, `
UPDATE users
SET referral_balance = referral_balance + $2, updated_at = NOW()
WHERE id = $1
`, referrerUserID, bonus)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return referrerUserID, true, nil
}

func (s *PostgresStore) CountReferrals(ctx context.Context, referrerUserID int64) (int, error) {
	const op = "store.postgres.CountReferrals"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var n int
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM referral_edges
WHERE referrer_user_id = $1
`, referrerUserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
