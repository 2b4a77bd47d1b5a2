package types

import (
	"context"
	"time"
)

type Payment struct {
	UserID                int64
	Product               string
	Plan                  string
	Provider              string
	Currency              string
	TotalAmount           int64
	InvoicePayload        string
	TelegramPaymentCharge string
	ProviderPaymentCharge string
	// Fulfilled flips to true once the entitlement for this charge has
	// been granted. A recorded but unfulfilled payment is retried on the
	// next delivery of the same charge.
	Fulfilled bool
	CreatedAt time.Time
}

type WithdrawalRequest struct {
	ID          int64
	UserID      int64
	Amount      int64
	Status      WithdrawalStatus
	Phone       string
	Bank        string
	RequestedAt time.Time
	DecidedAt   *time.Time
}

type PaymentStore interface {
	// RecordPayment inserts the payment unless the charge id was seen
	// before. inserted=false means a duplicate delivery; fulfilled then
	// reports whether the earlier delivery got its grant through.
	RecordPayment(ctx context.Context, p Payment) (inserted, fulfilled bool, err error)
	// MarkPaymentFulfilled records that the charge's entitlement was
	// granted, ending replay retries for it.
	MarkPaymentFulfilled(ctx context.Context, telegramChargeID string) error
}

type WithdrawalStore interface {
	// CreateWithdrawal debits the user's referral balance and inserts the
	// request in one transaction. Returns ErrInsufficientBalance when the
	// balance does not cover the amount.
	CreateWithdrawal(ctx context.Context, userID, amount int64, phone, bank string) (*WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID int64) ([]*WithdrawalRequest, error)
	// SetWithdrawalStatus moves a pending request to approved/rejected;
	// rejection refunds the debited amount.
	SetWithdrawalStatus(ctx context.Context, requestID int64, status WithdrawalStatus, now time.Time) error
}
