package types

import "errors"

// Rejection kinds the transport layer turns into user-facing messages.
// Everything else coming out of a store is treated as a transient failure.
var (
	ErrNotFound = errors.New("not found")

	ErrMalformedCode   = errors.New("malformed promo code")
	ErrCodeNotFound    = errors.New("promo code not found")
	ErrCodeExpired     = errors.New("promo code expired")
	ErrCodeExhausted   = errors.New("promo code exhausted")
	ErrAlreadyRedeemed = errors.New("promo code already redeemed by this user")

	ErrSelfReferral = errors.New("self referral")

	ErrUnknownPlan         = errors.New("unknown product plan")
	ErrInsufficientBalance = errors.New("insufficient referral balance")

	// ErrInvariant marks state that must never occur (uses_so_far above
	// max_uses and the like). Fatal to the operation, not the process.
	ErrInvariant = errors.New("store invariant violated")
)
