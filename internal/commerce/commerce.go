// Package commerce wires promo redemption, entitlements and referrals into
// the operations the transport layer calls. It owns no state of its own;
// what matters here is the call order, in particular that a referral
// qualifies only after a grant succeeded.
package commerce

import (
	"context"
	"log/slog"
	"time"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/internal/promo"
	"github.com/velmor/infoshop-bot/internal/referral"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

type Redeemer interface {
	Redeem(ctx context.Context, code string, userID int64, now time.Time) (*promo.Result, error)
}

type Entitlements interface {
	HasAccess(ctx context.Context, userID int64, product string, now time.Time) (bool, error)
	Grant(ctx context.Context, userID int64, plan catalog.Plan, now time.Time) (*types.Subscription, error)
}

type Referrals interface {
	Register(ctx context.Context, user *types.User, token string) (referral.Outcome, error)
	CompleteQualifyingAction(ctx context.Context, userID int64, now time.Time) error
}

type Orchestrator struct {
	users        types.UserStore
	payments     types.PaymentStore
	promo        Redeemer
	entitlements Entitlements
	referrals    Referrals
	log          *slog.Logger
}

func New(users types.UserStore, payments types.PaymentStore, redeemer Redeemer, ents Entitlements, refs Referrals, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		users:        users,
		payments:     payments,
		promo:        redeemer,
		entitlements: ents,
		referrals:    refs,
		log:          log,
	}
}

// RegisterArrival handles a user's contact with /start: get-or-create the
// user row, then try to link the referral token from the start parameter.
// The link is attempted only when this contact created the user: a referral
// edge records who brought the user in, so a token sent by someone already
// registered is ignored. Referral problems never fail the registration; a
// store fault during linking is logged and swallowed, the user is still
// registered.
func (o *Orchestrator) RegisterArrival(ctx context.Context, telegramID int64, username, startArg string) (*types.User, referral.Outcome, error) {
	user, created, err := o.users.GetOrCreateUser(ctx, telegramID, username)
	if err != nil {
		return nil, referral.NoReferral, err
	}
	if !created {
		return user, referral.NoReferral, nil
	}

	outcome, err := o.referrals.Register(ctx, user, startArg)
	if err != nil {
		o.log.Warn("referral link not recorded",
			slog.Int64("user_id", user.ID),
			sl.Err(err))
		return user, referral.NoReferral, nil
	}
	return user, outcome, nil
}

// RedeemPromo converts a code into an entitlement or balance credit for the
// user. Rejections come back as the sentinel errors from types.
func (o *Orchestrator) RedeemPromo(ctx context.Context, userID int64, code string, now time.Time) (*promo.Result, error) {
	return o.promo.Redeem(ctx, code, userID, now)
}

// CheckAccess answers whether the user can open the product right now.
func (o *Orchestrator) CheckAccess(ctx context.Context, userID int64, product string, now time.Time) (bool, error) {
	return o.entitlements.HasAccess(ctx, userID, product, now)
}

// ConfirmPurchase runs the externally-confirmed-payment path: record the
// payment (idempotently, keyed by the charge id), grant the plan, mark the
// charge fulfilled, and only then mark the buyer's referral as qualified.
// A charge that was recorded but never got its grant through (the store
// failed mid-way) is retried when Telegram redelivers the update: only a
// delivery whose charge is already fulfilled is dismissed as a duplicate,
// with granted=false. The buyer paid; the grant must land eventually.
func (o *Orchestrator) ConfirmPurchase(ctx context.Context, userID int64, p types.Payment, plan catalog.Plan, now time.Time) (sub *types.Subscription, granted bool, err error) {
	inserted, fulfilled, err := o.payments.RecordPayment(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if !inserted && fulfilled {
		o.log.Info("duplicate payment delivery ignored",
			slog.Int64("user_id", userID),
			slog.String("charge", p.TelegramPaymentCharge))
		return nil, false, nil
	}
	if !inserted {
		o.log.Warn("retrying grant for unfulfilled payment",
			slog.Int64("user_id", userID),
			slog.String("charge", p.TelegramPaymentCharge))
	}

	sub, err = o.entitlements.Grant(ctx, userID, plan, now)
	if err != nil {
		return nil, false, err
	}

	if err := o.payments.MarkPaymentFulfilled(ctx, p.TelegramPaymentCharge); err != nil {
		// the grant stands; worst case the next redelivery grants again,
		// which only ever extends access
		o.log.Error("charge not marked fulfilled",
			slog.Int64("user_id", userID),
			slog.String("charge", p.TelegramPaymentCharge),
			sl.Err(err))
	}

	// Referral credit strictly follows a successful grant, so abandoned
	// or failed purchases never pay out. The grant stands even if the
	// credit write fails; that failure is logged, not propagated.
	if err := o.referrals.CompleteQualifyingAction(ctx, userID, now); err != nil {
		o.log.Error("referral credit failed after grant",
			slog.Int64("user_id", userID),
			sl.Err(err))
	}
	return sub, true, nil
}
