package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/velmor/infoshop-bot/types"
)

// RecordPayment inserts the payment keyed by Telegram's charge id. Telegram
// retries successful-payment updates, so a conflict means this exact charge
// was already recorded; the fulfilled flag of the existing row tells the
// caller whether its grant still has to be retried.
func (s *PostgresStore) RecordPayment(ctx context.Context, p types.Payment) (bool, bool, error) {
	const op = "store.postgres.RecordPayment"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO payments (user_id, product, plan, provider, currency, total_amount, invoice_payload, telegram_payment_charge_id, provider_payment_charge_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (telegram_payment_charge_id) DO NOTHING
RETURNING id
`, p.UserID, p.Product, p.Plan, p.Provider, p.Currency, p.TotalAmount, p.InvoicePayload, p.TelegramPaymentCharge, p.ProviderPaymentCharge).Scan(&id)
	if err == nil {
		return true, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}

	// duplicate delivery; payment rows are never deleted, so the row is there
	var fulfilled bool
	err = s.pool.QueryRow(ctx, `
SELECT fulfilled FROM payments WHERE telegram_payment_charge_id = $1
`, p.TelegramPaymentCharge).Scan(&fulfilled)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}
	return false, fulfilled, nil
}

// MarkPaymentFulfilled closes the charge once its entitlement was granted.
func (s *PostgresStore) MarkPaymentFulfilled(ctx context.Context, telegramChargeID string) error {
	const op = "store.postgres.MarkPaymentFulfilled"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE payments SET fulfilled = TRUE WHERE telegram_payment_charge_id = $1
`, telegramChargeID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return nil
}

// CreateWithdrawal debits the user's referral balance and opens a pending
// request in one transaction. The conditional debit is the only balance check:
// if it matches no row the user either does not exist or cannot cover the
// amount, and nothing is written.
func (s *PostgresStore) CreateWithdrawal(ctx context.Context, userID int64, amount int64, phone, bank string) (*types.WithdrawalRequest, error) {
	const op = "store.postgres.CreateWithdrawal"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE users
SET referral_balance = referral_balance - $2, updated_at = NOW()
WHERE id = $1 AND referral_balance >= $2
`, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%s: %w", op, types.ErrInsufficientBalance)
	}

	var w types.WithdrawalRequest
	err = tx.QueryRow(ctx, `
INSERT INTO withdrawal_requests (user_id, amount, status, phone, bank)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, amount, status, phone, bank, requested_at, decided_at
`, userID, amount, types.WithdrawalPending, phone, bank).Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Status, &w.Phone, &w.Bank, &w.RequestedAt, &w.DecidedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &w, nil
}

func (s *PostgresStore) ListWithdrawals(ctx context.Context, userID int64) ([]*types.WithdrawalRequest, error) {
	const op = "store.postgres.ListWithdrawals"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, amount, status, phone, bank, requested_at, decided_at
FROM withdrawal_requests
WHERE user_id = $1
ORDER BY requested_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*types.WithdrawalRequest
	for rows.Next() {
		var w types.WithdrawalRequest
		if err := rows.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &w.Phone, &w.Bank, &w.RequestedAt, &w.DecidedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// SetWithdrawalStatus decides a pending request. Rejecting refunds the held
// amount in the same transaction. Deciding an already-decided request is a
// no-op, so an operator double-click cannot refund twice.
func (s *PostgresStore) SetWithdrawalStatus(ctx context.Context, requestID int64, status types.WithdrawalStatus, now time.Time) error {
	const op = "store.postgres.SetWithdrawalStatus"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		userID int64
		amount int64
	)
	err = tx.QueryRow(ctx, `
UPDATE withdrawal_requests
SET status = $2, decided_at = $3
WHERE id = $1 AND status = $4
RETURNING user_id, amount
`, requestID, status, now.UTC(), types.WithdrawalPending).Scan(&userID, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if status == types.WithdrawalRejected {
		_, err = tx.Exec(ctx, `
UPDATE users
SET referral_balance = referral_balance + $2, updated_at = NOW()
WHERE id = $1
`, userID, amount)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
