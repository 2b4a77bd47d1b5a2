package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/velmor/infoshop-bot/types"
)

func (s *PostgresStore) GetPromoCode(ctx context.Context, code string) (*types.PromoCode, error) {
	const op = "store.postgres.GetPromoCode"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var pc types.PromoCode
	err := s.pool.QueryRow(ctx, `
SELECT code, product, plan, max_uses, uses_so_far, expires_at, created_at
FROM promo_codes
WHERE code = $1
`, code).Scan(&pc.Code, &pc.Product, &pc.Plan, &pc.MaxUses, &pc.UsesSoFar, &pc.ExpiresAt, &pc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &pc, nil
}

func (s *PostgresStore) CreatePromoCode(ctx context.Context, pc types.PromoCode) error {
	const op = "store.postgres.CreatePromoCode"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO promo_codes (code, product, plan, max_uses, expires_at)
VALUES ($1, $2, $3, $4, $5)
`, pc.Code, pc.Product, pc.Plan, pc.MaxUses, pc.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConsumePromoCode performs the whole redemption in one transaction: lock the
// code row, record the redemption, bump the use counter. The redemption insert
// is the per-user idempotency gate; the conditional counter update is the
// capacity gate. Either one failing rolls back the other, so a rejected
// redemption never burns a use.
func (s *PostgresStore) ConsumePromoCode(ctx context.Context, code string, userID int64, now time.Time) error {
	const op = "store.postgres.ConsumePromoCode"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		maxUses   int
		usesSoFar int
		expiresAt *time.Time
	)
	err = tx.QueryRow(ctx, `
SELECT max_uses, uses_so_far, expires_at
FROM promo_codes
WHERE code = $1
FOR UPDATE
`, code).Scan(&maxUses, &usesSoFar, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, types.ErrCodeNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if expiresAt != nil && !expiresAt.After(now.UTC()) {
		return fmt.Errorf("%s: %w", op, types.ErrCodeExpired)
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO promo_redemptions (code, user_id)
VALUES ($1, $2)
ON CONFLICT (code, user_id) DO NOTHING
`, code, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, types.ErrAlreadyRedeemed)
	}

	tag, err = tx.Exec(ctx, `
UPDATE promo_codes
SET uses_so_far = uses_so_far + 1
WHERE code = $1 AND uses_so_far < max_uses
`, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, types.ErrCodeExhausted)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
