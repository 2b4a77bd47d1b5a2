package types

type PendingKind string

const (
	PendingPromoCode      PendingKind = "promo_code"
	PendingWithdrawAmount PendingKind = "withdraw_amount"
	PendingWithdrawPhone  PendingKind = "withdraw_phone"
	PendingWithdrawBank   PendingKind = "withdraw_bank"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)
