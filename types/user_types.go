package types

import (
	"context"
	"time"
)

type User struct {
	ID              int64
	TelegramID      int64
	Username        string
	ReferralBalance int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Subscription struct {
	UserID    int64
	Product   string
	Plan      string
	Active    bool
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStore interface {
	// GetOrCreateUser upserts the user row for the Telegram sender.
	// created reports whether this call inserted the row, i.e. the user
	// registered just now.
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (u *User, created bool, err error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	CreditBalance(ctx context.Context, userID int64, amount int64) error
}

type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID int64, product string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*Subscription, error)
	ActivateOrExtend(ctx context.Context, userID int64, product, plan string, duration time.Duration, now time.Time) (*Subscription, error)
	ActivateUnlimited(ctx context.Context, userID int64, product, plan string, now time.Time) (*Subscription, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
