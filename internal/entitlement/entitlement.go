// Package entitlement decides whether a user currently has access to a
// product and mutates subscription state on grants and expiry.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

type Service struct {
	subs types.SubscriptionStore
	log  *slog.Logger
}

func New(subs types.SubscriptionStore, log *slog.Logger) *Service {
	return &Service{subs: subs, log: log}
}

// HasAccess reports whether the user holds a live entitlement for the
// product: an active subscription row whose expiry is absent or ahead of
// now. A missing row is a plain "no".
func (s *Service) HasAccess(ctx context.Context, userID int64, product string, now time.Time) (bool, error) {
	sub, err := s.subs.GetSubscription(ctx, userID, product)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !sub.Active {
		return false, nil
	}
	if sub.ExpiresAt != nil && !sub.ExpiresAt.After(now) {
		return false, nil
	}
	return true, nil
}

// Grant activates the plan's product for the user. A timed plan extends an
// existing subscription from the later of (current expiry, now), so stacked
// grants add up and never shorten access. An unlimited plan clears the
// expiry entirely.
func (s *Service) Grant(ctx context.Context, userID int64, plan catalog.Plan, now time.Time) (*types.Subscription, error) {
	var (
		sub *types.Subscription
		err error
	)
	if plan.Unlimited() {
		sub, err = s.subs.ActivateUnlimited(ctx, userID, plan.Product, plan.Name, now)
	} else {
		sub, err = s.subs.ActivateOrExtend(ctx, userID, plan.Product, plan.Name, plan.Duration(), now)
	}
	if err != nil {
		s.log.Error("grant failed",
			slog.Int64("user_id", userID),
			slog.String("product", plan.Product),
			sl.Err(err))
		return nil, err
	}
	s.log.Info("granted subscription",
		slog.Int64("user_id", userID),
		slog.String("product", plan.Product),
		slog.String("plan", plan.Name))
	return sub, nil
}

// ExpireSweep deactivates subscriptions whose expiry is at or before now.
// Already-inactive rows are untouched, so overlapping runs are harmless.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.subs.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired subscriptions", slog.Int64("count", n))
	}
	return n, nil
}
