package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/messages"
	"github.com/velmor/infoshop-bot/internal/promo"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

// HandleText drives the pending input flows. A free-text message outside of
// any flow just gets the menu back.
func (bh *Handlers) HandleText(ctx context.Context, b *bot.Bot, update *models.Update, userID int64) {
	if update == nil || update.Message == nil {
		return
	}
	lang := langFromCtx(ctx)
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	pending, err := bh.state.GetPending(userID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			bh.log.Error("loading pending state", slog.Int64("user_id", userID), sl.Err(err))
		}
		bh.sendWithKeyboard(ctx, b, chatID, messages.StartWelcome(lang), bh.buildMenuKeyboard(lang))
		return
	}

	switch pending.Kind {
	case types.PendingPromoCode:
		bh.finishPromoFlow(ctx, b, chatID, userID, lang, text)
	case types.PendingWithdrawAmount:
		bh.continueWithdrawAmount(ctx, b, chatID, userID, lang, text, pending)
	case types.PendingWithdrawPhone:
		bh.continueWithdrawPhone(ctx, b, chatID, userID, lang, text, pending)
	case types.PendingWithdrawBank:
		bh.finishWithdrawFlow(ctx, b, chatID, userID, lang, text, pending)
	default:
		_ = bh.state.ClearPending(userID)
		bh.sendWithKeyboard(ctx, b, chatID, messages.StartWelcome(lang), bh.buildMenuKeyboard(lang))
	}
}

func (bh *Handlers) finishPromoFlow(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang, code string) {
	res, err := bh.orchestrator.RedeemPromo(ctx, userID, code, time.Now().UTC())
	if err != nil {
		if promo.Rejected(err) {
			_ = bh.state.ClearPending(userID)
			bh.send(ctx, b, chatID, messages.RedeemRejected(lang, err))
			return
		}
		bh.log.Error("redeeming promo code", slog.Int64("user_id", userID), sl.Err(err))
		_ = bh.state.ClearPending(userID)
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	_ = bh.state.ClearPending(userID)
	if res.Plan != nil {
		var expires *time.Time
		if res.Subscription != nil {
			expires = res.Subscription.ExpiresAt
		}
		bh.send(ctx, b, chatID, messages.RedeemSuccessPlan(lang, res.Plan.Product, expires))
		return
	}
	bh.send(ctx, b, chatID, messages.RedeemSuccessCredit(lang, res.Credited))
}

// parseMoney reads a human amount like "150", "150.5" or "150,50" into
// minor currency units.
func parseMoney(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || major < 0 {
		return 0, false
	}
	minor := int64(0)
	if hasFrac {
		if frac == "" || len(frac) > 2 {
			return 0, false
		}
		if len(frac) == 1 {
			frac += "0"
		}
		minor, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || minor < 0 {
			return 0, false
		}
	}
	return major*100 + minor, true
}

func (bh *Handlers) continueWithdrawAmount(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang, text string, pending *types.PendingState) {
	amount, ok := parseMoney(text)
	if !ok || amount <= 0 {
		bh.send(ctx, b, chatID, messages.WithdrawBadAmount(lang))
		return
	}
	if amount < bh.cfg.MinWithdrawal {
		bh.send(ctx, b, chatID, messages.WithdrawBelowMinimum(lang, bh.cfg.MinWithdrawal))
		return
	}

	user, err := bh.users.GetUser(ctx, userID)
	if err != nil {
		bh.log.Error("loading user", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	if amount > user.ReferralBalance {
		bh.send(ctx, b, chatID, messages.WithdrawInsufficient(lang, user.ReferralBalance))
		return
	}

	err = bh.state.SetPending(userID, types.PendingState{
		UserID:  userID,
		ChatID:  chatID,
		Kind:    types.PendingWithdrawPhone,
		Options: map[string]interface{}{"amount": amount},
	})
	if err != nil {
		bh.log.Error("setting pending state", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.WithdrawPhonePrompt(lang))
}

func (bh *Handlers) continueWithdrawPhone(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang, text string, pending *types.PendingState) {
	options := pending.Options
	if options == nil {
		options = map[string]interface{}{}
	}
	options["phone"] = text
	err := bh.state.SetPending(userID, types.PendingState{
		UserID:  userID,
		ChatID:  chatID,
		Kind:    types.PendingWithdrawBank,
		Options: options,
	})
	if err != nil {
		bh.log.Error("setting pending state", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.WithdrawBankPrompt(lang))
}

func (bh *Handlers) finishWithdrawFlow(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang, bank string, pending *types.PendingState) {
	amount := optionInt64(pending.Options, "amount")
	phone, _ := pending.Options["phone"].(string)
	if amount <= 0 || strings.TrimSpace(phone) == "" {
		// flow state got lost midway; restart cleanly
		_ = bh.state.ClearPending(userID)
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	w, err := bh.withdrawals.CreateWithdrawal(ctx, userID, amount, phone, bank)
	if err != nil {
		_ = bh.state.ClearPending(userID)
		if errors.Is(err, types.ErrInsufficientBalance) {
			user, uerr := bh.users.GetUser(ctx, userID)
			balance := int64(0)
			if uerr == nil {
				balance = user.ReferralBalance
			}
			bh.send(ctx, b, chatID, messages.WithdrawInsufficient(lang, balance))
			return
		}
		bh.log.Error("creating withdrawal", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	_ = bh.state.ClearPending(userID)
	bh.send(ctx, b, chatID, messages.WithdrawCreated(lang, w.Amount))
}

// optionInt64 reads a numeric option that may have round-tripped through
// JSON (and so come back as float64).
func optionInt64(options map[string]interface{}, key string) int64 {
	if options == nil {
		return 0
	}
	switch v := options[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}
