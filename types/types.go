package types

import (
	"context"
	"time"
)

// PromoCode is consumed incrementally and never physically removed: once
// exhausted or expired it just stops redeeming.
type PromoCode struct {
	Code      string
	Product   string
	Plan      string
	MaxUses   int
	UsesSoFar int
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Bound reports whether the code grants a concrete product plan; unbound
// codes credit the redeemer's balance instead.
func (p *PromoCode) Bound() bool {
	return p.Product != "" && p.Plan != ""
}

type PromoStore interface {
	GetPromoCode(ctx context.Context, code string) (*PromoCode, error)
	// ConsumePromoCode increments uses_so_far and records the redeemer in a
	// single transaction. Returns ErrAlreadyRedeemed, ErrCodeExhausted or
	// ErrCodeNotFound without consuming anything.
	ConsumePromoCode(ctx context.Context, code string, userID int64, now time.Time) error
	CreatePromoCode(ctx context.Context, promo PromoCode) error
}

type ReferralStore interface {
	CreateReferralEdge(ctx context.Context, referrerUserID, referredUserID int64) (created bool, err error)
	// QualifyReferral flips the edge's qualified flag and credits the
	// referrer's balance in one transaction. credited is false when no
	// pending edge exists for the user.
	QualifyReferral(ctx context.Context, referredUserID int64, bonus int64, now time.Time) (referrerUserID int64, credited bool, err error)
	CountReferrals(ctx context.Context, referrerUserID int64) (int, error)
}

// StateStore keeps the per-chat pending input flows (awaiting a promo code,
// a withdrawal amount, ...). TTL'd; losing a row only resets the dialog.
type StateStore interface {
	SetPending(userID int64, state PendingState) error
	GetPending(userID int64) (*PendingState, error)
	ClearPending(userID int64) error
}

type PendingState struct {
	ID        string                 `json:"id"`
	UserID    int64                  `json:"user_id"`
	ChatID    int64                  `json:"chat_id"`
	Kind      PendingKind            `json:"kind"`
	Options   map[string]interface{} `json:"options,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
