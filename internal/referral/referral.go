// Package referral records who brought whom and credits the referrer once
// the referred user completes a qualifying action (first confirmed
// purchase). A broken deep-link token never fails the caller: it just means
// no referral.
package referral

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

const tokenPrefix = "r_"

type Service struct {
	edges types.ReferralStore
	users types.UserStore
	// bonus credited to the referrer per qualified referral
	bonus int64
	log   *slog.Logger
}

func New(edges types.ReferralStore, users types.UserStore, bonus int64, log *slog.Logger) *Service {
	return &Service{edges: edges, users: users, bonus: bonus, log: log}
}

type Outcome int

const (
	NoReferral Outcome = iota
	Linked
)

// ParseToken extracts the referrer's Telegram id from a start parameter of
// the form "r_<id>". Anything else is simply not a referral token.
func ParseToken(token string) (int64, bool) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, tokenPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(token[len(tokenPrefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Register links a freshly arrived user to the referrer named by the token.
// Malformed tokens, unknown referrers, self-referral and an already existing
// referrer all come back as NoReferral with a nil error: none of them may
// abort the caller's registration flow.
func (s *Service) Register(ctx context.Context, user *types.User, token string) (Outcome, error) {
	referrerTelegramID, ok := ParseToken(token)
	if !ok {
		return NoReferral, nil
	}

	referrer, err := s.users.GetUserByTelegramID(ctx, referrerTelegramID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return NoReferral, nil
		}
		return NoReferral, err
	}
	if referrer.ID == user.ID {
		s.log.Info("self referral ignored", slog.Int64("user_id", user.ID))
		return NoReferral, nil
	}

	created, err := s.edges.CreateReferralEdge(ctx, referrer.ID, user.ID)
	if err != nil {
		return NoReferral, err
	}
	if !created {
		// user already has a referrer; first link wins
		return NoReferral, nil
	}

	s.log.Info("referral registered",
		slog.Int64("referrer_id", referrer.ID),
		slog.Int64("referred_id", user.ID))
	return Linked, nil
}

// CompleteQualifyingAction credits the referrer for this user's first
// qualifying action. The store flips the edge's flag and credits the
// balance in one transaction; repeat calls find no pending edge and do
// nothing.
func (s *Service) CompleteQualifyingAction(ctx context.Context, userID int64, now time.Time) error {
	referrerID, credited, err := s.edges.QualifyReferral(ctx, userID, s.bonus, now)
	if err != nil {
		s.log.Error("referral qualification failed",
			slog.Int64("referred_id", userID),
			sl.Err(err))
		return err
	}
	if credited {
		s.log.Info("referral credited",
			slog.Int64("referrer_id", referrerID),
			slog.Int64("referred_id", userID),
			slog.Int64("bonus", s.bonus))
	}
	return nil
}

// Stats returns the numbers shown in the referral cabinet.
func (s *Service) Stats(ctx context.Context, user *types.User) (invited int, balance int64, err error) {
	invited, err = s.edges.CountReferrals(ctx, user.ID)
	if err != nil {
		return 0, 0, err
	}
	return invited, user.ReferralBalance, nil
}
