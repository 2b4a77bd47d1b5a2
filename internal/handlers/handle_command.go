package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/contextkeys"
	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/messages"
	"github.com/velmor/infoshop-bot/internal/promo"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

func (bh *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update, userID int64) {
	if update == nil || update.Message == nil {
		return
	}
	lang := langFromCtx(ctx)
	chatID := update.Message.Chat.ID

	fields := strings.Fields(strings.TrimSpace(update.Message.Text))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	switch cmd {
	case "/start":
		startArg := ""
		if len(fields) >= 2 {
			startArg = fields[1]
		}
		from := update.Message.From
		if from == nil {
			return
		}
		_, _, err := bh.orchestrator.RegisterArrival(ctx, from.ID, from.Username, startArg)
		if err != nil {
			bh.log.Error("registering arrival", slog.Int64("telegram_id", from.ID), sl.Err(err))
			bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
			return
		}
		bh.sendWithKeyboard(ctx, b, chatID, messages.StartWelcome(lang), bh.buildMenuKeyboard(lang))
	case "/menu":
		bh.sendWithKeyboard(ctx, b, chatID, messages.StartWelcome(lang), bh.buildMenuKeyboard(lang))
	case "/buy":
		bh.sendProductChoice(ctx, b, chatID, lang)
	case "/redeem":
		bh.startPromoFlow(ctx, b, chatID, userID, lang)
	case "/myaccess":
		bh.sendAccessList(ctx, b, chatID, userID, lang)
	case "/ref":
		bh.sendReferralCabinet(ctx, b, chatID, userID, lang)
	case "/withdraw":
		bh.startWithdrawFlow(ctx, b, chatID, userID, lang)
	case "/grant":
		bh.handleGrant(ctx, b, update, fields[1:], lang)
	case "/newcode":
		bh.handleNewCode(ctx, b, update, fields[1:], lang)
	case "/decide":
		bh.handleDecide(ctx, b, update, fields[1:], lang)
	default:
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
	}
}

// handleGrant is the operator backdoor: /grant <secret> <product> <plan>
// [telegram_id]. Without the id the grant applies to the caller.
func (bh *Handlers) handleGrant(ctx context.Context, b *bot.Bot, update *models.Update, args []string, lang i18n.Lang) {
	chatID := update.Message.Chat.ID
	from := update.Message.From
	if from == nil {
		return
	}

	if !bh.cfg.IsAdmin(from.ID) {
		// pretend the command does not exist
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		return
	}
	if len(args) < 3 {
		bh.send(ctx, b, chatID, messages.AdminGrantUsage(lang))
		return
	}
	if !adminSecretOK(args[0], bh.cfg.AdminSecret) {
		bh.send(ctx, b, chatID, messages.AdminDenied(lang))
		return
	}

	product, planName := args[1], args[2]
	plan, ok := bh.catalog.Find(product, planName)
	if !ok {
		bh.send(ctx, b, chatID, messages.AdminGrantUsage(lang))
		return
	}

	targetUserID := int64(0)
	if len(args) >= 4 {
		tgID, err := strconv.ParseInt(strings.TrimSpace(args[3]), 10, 64)
		if err != nil {
			bh.send(ctx, b, chatID, messages.AdminGrantUsage(lang))
			return
		}
		target, err := bh.users.GetUserByTelegramID(ctx, tgID)
		if err != nil {
			bh.send(ctx, b, chatID, messages.AdminGrantUsage(lang))
			return
		}
		targetUserID = target.ID
	} else {
		id, ok := contextkeys.GetUserID(ctx)
		if !ok {
			bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
			return
		}
		targetUserID = id
	}

	sub, err := bh.entitlements.Grant(ctx, targetUserID, plan, time.Now().UTC())
	if err != nil {
		bh.log.Error("admin grant failed",
			slog.Int64("user_id", targetUserID),
			slog.String("product", product),
			sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.AdminGrantDone(lang, product, sub.ExpiresAt))
}

// handleNewCode creates a promo code: /newcode <secret> <code> <max_uses>
// [product plan]. Without a product/plan pair the code credits the
// redeemer's balance instead of granting access.
func (bh *Handlers) handleNewCode(ctx context.Context, b *bot.Bot, update *models.Update, args []string, lang i18n.Lang) {
	chatID := update.Message.Chat.ID
	from := update.Message.From
	if from == nil {
		return
	}
	if !bh.cfg.IsAdmin(from.ID) {
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		return
	}
	if len(args) < 3 {
		bh.send(ctx, b, chatID, messages.AdminNewCodeUsage(lang))
		return
	}
	if !adminSecretOK(args[0], bh.cfg.AdminSecret) {
		bh.send(ctx, b, chatID, messages.AdminDenied(lang))
		return
	}

	code := strings.TrimSpace(args[1])
	maxUses, err := strconv.Atoi(args[2])
	if err != nil || maxUses <= 0 || promo.ValidateFormat(code) != nil {
		bh.send(ctx, b, chatID, messages.AdminNewCodeUsage(lang))
		return
	}

	pc := types.PromoCode{Code: code, MaxUses: maxUses}
	if len(args) >= 5 {
		if _, ok := bh.catalog.Find(args[3], args[4]); !ok {
			bh.send(ctx, b, chatID, messages.AdminNewCodeUsage(lang))
			return
		}
		pc.Product, pc.Plan = args[3], args[4]
	}

	if err := bh.promoStore.CreatePromoCode(ctx, pc); err != nil {
		bh.log.Error("creating promo code", slog.String("code", code), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.AdminNewCodeDone(lang, code, maxUses))
}

// handleDecide settles a withdrawal request:
// /decide <secret> <request_id> approve|reject.
func (bh *Handlers) handleDecide(ctx context.Context, b *bot.Bot, update *models.Update, args []string, lang i18n.Lang) {
	chatID := update.Message.Chat.ID
	from := update.Message.From
	if from == nil {
		return
	}
	if !bh.cfg.IsAdmin(from.ID) {
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		return
	}
	if len(args) < 3 {
		bh.send(ctx, b, chatID, messages.AdminDecideUsage(lang))
		return
	}
	if !adminSecretOK(args[0], bh.cfg.AdminSecret) {
		bh.send(ctx, b, chatID, messages.AdminDenied(lang))
		return
	}

	requestID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		bh.send(ctx, b, chatID, messages.AdminDecideUsage(lang))
		return
	}
	var status types.WithdrawalStatus
	switch strings.ToLower(args[2]) {
	case "approve":
		status = types.WithdrawalApproved
	case "reject":
		status = types.WithdrawalRejected
	default:
		bh.send(ctx, b, chatID, messages.AdminDecideUsage(lang))
		return
	}

	if err := bh.withdrawals.SetWithdrawalStatus(ctx, requestID, status, time.Now().UTC()); err != nil {
		bh.log.Error("deciding withdrawal", slog.Int64("request_id", requestID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.AdminDecideDone(lang, requestID, string(status)))
}

func adminSecretOK(secret, expected string) bool {
	secret = strings.TrimSpace(secret)
	expected = strings.TrimSpace(expected)
	if secret == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(expected)) == 1
}
