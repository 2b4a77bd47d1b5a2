// Package promo validates and redeems promotional codes. A code is consumed
// at most once per user and at most max_uses times overall; the consume step
// is a single store transaction, so two users racing for the last use slot
// serialize there.
package promo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/types"
)

const minCodeLen = 3

type Granter interface {
	Grant(ctx context.Context, userID int64, plan catalog.Plan, now time.Time) (*types.Subscription, error)
}

type Service struct {
	codes   types.PromoStore
	users   types.UserStore
	catalog *catalog.Catalog
	granter Granter
	// credit granted for codes not bound to a plan, minor currency units
	credit int64
	log    *slog.Logger
}

func New(codes types.PromoStore, users types.UserStore, cat *catalog.Catalog, granter Granter, credit int64, log *slog.Logger) *Service {
	return &Service{
		codes:   codes,
		users:   users,
		catalog: cat,
		granter: granter,
		credit:  credit,
		log:     log,
	}
}

// Result describes a successful redemption: either a granted subscription
// (bound code) or a balance credit (unbound code).
type Result struct {
	Code         string
	Plan         *catalog.Plan
	Subscription *types.Subscription
	Credited     int64
}

// ValidateFormat checks the code shape without touching the store: at least
// three characters, letters/digits/dash/underscore only.
func ValidateFormat(code string) error {
	if len(code) < minCodeLen {
		return types.ErrMalformedCode
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return types.ErrMalformedCode
		}
	}
	return nil
}

// Redeem runs the validation ladder and, on success, consumes one use
// and applies the code's effect. Failures come back as the sentinel errors
// in types; anything else is a store fault.
func (s *Service) Redeem(ctx context.Context, code string, userID int64, now time.Time) (*Result, error) {
	code = strings.TrimSpace(code)
	if err := ValidateFormat(code); err != nil {
		return nil, err
	}

	pc, err := s.codes.GetPromoCode(ctx, code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrCodeNotFound
		}
		return nil, err
	}
	if pc.ExpiresAt != nil && !pc.ExpiresAt.After(now) {
		return nil, types.ErrCodeExpired
	}
	if pc.UsesSoFar > pc.MaxUses {
		s.log.Error("promo code over-consumed",
			slog.String("code", pc.Code),
			slog.Int("uses", pc.UsesSoFar),
			slog.Int("max", pc.MaxUses))
		return nil, types.ErrInvariant
	}
	if pc.UsesSoFar == pc.MaxUses {
		return nil, types.ErrCodeExhausted
	}

	// The read above is only a fast path; the consume transaction
	// re-checks everything under lock.
	if err := s.codes.ConsumePromoCode(ctx, code, userID, now); err != nil {
		return nil, err
	}

	res := &Result{Code: code}
	if pc.Bound() {
		plan, ok := s.catalog.Find(pc.Product, pc.Plan)
		if !ok {
			s.log.Error("promo code refers to unknown plan",
				slog.String("code", code),
				slog.String("product", pc.Product),
				slog.String("plan", pc.Plan))
			return nil, types.ErrUnknownPlan
		}
		sub, err := s.granter.Grant(ctx, userID, plan, now)
		if err != nil {
			return nil, err
		}
		res.Plan = &plan
		res.Subscription = sub
	} else {
		if err := s.users.CreditBalance(ctx, userID, s.credit); err != nil {
			return nil, err
		}
		res.Credited = s.credit
	}

	s.log.Info("promo code redeemed",
		slog.String("code", code),
		slog.Int64("user_id", userID))
	return res, nil
}

// Rejected reports whether the error is a user-facing rejection rather than
// a system fault.
func Rejected(err error) bool {
	return errors.Is(err, types.ErrMalformedCode) ||
		errors.Is(err, types.ErrCodeNotFound) ||
		errors.Is(err, types.ErrCodeExpired) ||
		errors.Is(err, types.ErrCodeExhausted) ||
		errors.Is(err, types.ErrAlreadyRedeemed)
}
