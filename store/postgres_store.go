package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/velmor/infoshop-bot/types"
)

// PostgresStore is the ledger: users, subscriptions, promo codes,
// referral edges, payments and withdrawal requests all live here. Every
// multi-step mutation runs inside a transaction, so the database is the
// only serialization point the bot needs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	const op = "store.postgres.New"

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "infoshop_bot"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "infoshop_bot"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// ===== users =====

// GetOrCreateUser upserts by Telegram id. The xmax = 0 check tells a fresh
// insert apart from an update of an existing row, so callers know whether
// this contact is a first registration.
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*types.User, bool, error) {
	const op = "store.postgres.GetOrCreateUser"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var (
		u       types.User
		created bool
	)
	err := s.pool.QueryRow(ctx, `
INSERT INTO users (telegram_id, username)
VALUES ($1, $2)
ON CONFLICT (telegram_id) DO UPDATE SET
  username = EXCLUDED.username,
  updated_at = NOW()
RETURNING id, telegram_id, username, referral_balance, created_at, updated_at, (xmax = 0)
`, telegramID, strings.TrimSpace(username)).Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.ReferralBalance, &u.CreatedAt, &u.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &u, created, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*types.User, error) {
	const op = "store.postgres.GetUser"
	return s.getUserBy(ctx, op, "id", id)
}

func (s *PostgresStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*types.User, error) {
	const op = "store.postgres.GetUserByTelegramID"
	return s.getUserBy(ctx, op, "telegram_id", telegramID)
}

func (s *PostgresStore) getUserBy(ctx context.Context, op, column string, key int64) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var u types.User
	err := s.pool.QueryRow(ctx, `
SELECT id, telegram_id, username, referral_balance, created_at, updated_at
FROM users
WHERE `+column+` = $1
`, key).Scan(&u.ID, &u.TelegramID, &u.Username, &u.ReferralBalance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (s *PostgresStore) CreditBalance(ctx context.Context, userID int64, amount int64) error {
	const op = "store.postgres.CreditBalance"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE users
SET referral_balance = referral_balance + $2, updated_at = NOW()
WHERE id = $1
`, userID, amount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return nil
}

// ===== subscriptions =====

func (s *PostgresStore) GetSubscription(ctx context.Context, userID int64, product string) (*types.Subscription, error) {
	const op = "store.postgres.GetSubscription"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var sub types.Subscription
	err := s.pool.QueryRow(ctx, `
SELECT user_id, product, plan, active, expires_at, created_at, updated_at
FROM subscriptions
WHERE user_id = $1 AND product = $2
`, userID, product).Scan(&sub.UserID, &sub.Product, &sub.Plan, &sub.Active, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, types.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, userID int64) ([]*types.Subscription, error) {
	const op = "store.postgres.ListSubscriptions"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT user_id, product, plan, active, expires_at, created_at, updated_at
FROM subscriptions
WHERE user_id = $1
ORDER BY product
`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var subs []*types.Subscription
	for rows.Next() {
		var sub types.Subscription
		if err := rows.Scan(&sub.UserID, &sub.Product, &sub.Plan, &sub.Active, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}

// ActivateOrExtend creates or extends a timed subscription. The new expiry
// counts from the later of (current expiry, now), so stacked grants add up.
// An already-unlimited subscription is left untouched: a timed grant must
// never shorten access.
func (s *PostgresStore) ActivateOrExtend(ctx context.Context, userID int64, product, plan string, duration time.Duration, now time.Time) (*types.Subscription, error) {
	const op = "store.postgres.ActivateOrExtend"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now = now.UTC()
	var (
		currentExpires *time.Time
		currentActive  bool
		exists         = true
	)
	err = tx.QueryRow(ctx, `
SELECT expires_at, active
FROM subscriptions
WHERE user_id = $1 AND product = $2
FOR UPDATE
`, userID, product).Scan(&currentExpires, &currentActive)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		exists = false
	}

	if exists && currentActive && currentExpires == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s.GetSubscription(ctx, userID, product)
	}

	newExpires := nextTimedExpiry(currentExpires, currentActive, duration, now)

	_, err = tx.Exec(ctx, `
INSERT INTO subscriptions (user_id, product, plan, active, expires_at)
VALUES ($1, $2, $3, TRUE, $4)
ON CONFLICT (user_id, product) DO UPDATE SET
  plan = EXCLUDED.plan,
  active = TRUE,
  expires_at = EXCLUDED.expires_at,
  updated_at = NOW()
`, userID, product, plan, newExpires)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &types.Subscription{
		UserID:    userID,
		Product:   product,
		Plan:      plan,
		Active:    true,
		ExpiresAt: &newExpires,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) ActivateUnlimited(ctx context.Context, userID int64, product, plan string, now time.Time) (*types.Subscription, error) {
	const op = "store.postgres.ActivateUnlimited"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO subscriptions (user_id, product, plan, active, expires_at)
VALUES ($1, $2, $3, TRUE, NULL)
ON CONFLICT (user_id, product) DO UPDATE SET
  plan = EXCLUDED.plan,
  active = TRUE,
  expires_at = NULL,
  updated_at = NOW()
`, userID, product, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &types.Subscription{
		UserID:    userID,
		Product:   product,
		Plan:      plan,
		Active:    true,
		UpdatedAt: now.UTC(),
	}, nil
}

// nextTimedExpiry computes the expiry for a timed grant. While the current
// subscription is still active and not yet expired, the new duration stacks
// on top of the remaining time; otherwise it counts from now.
func nextTimedExpiry(currentExpires *time.Time, currentActive bool, duration time.Duration, now time.Time) time.Time {
	base := now
	if currentActive && currentExpires != nil && currentExpires.After(base) {
		base = *currentExpires
	}
	return base.Add(duration)
}

// ExpireDue flips expired subscriptions inactive. Rows that are already
// inactive do not match, which keeps repeated and concurrent sweeps no-ops.
func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	const op = "store.postgres.ExpireDue"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE subscriptions
SET active = FALSE, updated_at = NOW()
WHERE active AND expires_at IS NOT NULL AND expires_at <= $1
`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}
