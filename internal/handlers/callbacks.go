package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/contextkeys"
	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/messages"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

func (bh *Handlers) HandleClickButton(ctx context.Context, b *bot.Bot, update *models.Update, userID int64) {
	if update.CallbackQuery == nil {
		return
	}
	lang := langFromCtx(ctx)
	chatID, _ := contextkeys.GetChatID(ctx)
	if chatID == 0 {
		return
	}

	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = update.CallbackQuery.Data
	}
	data = strings.TrimSpace(data)

	// ack first so the button stops spinning
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	switch {
	case data == "menu_main":
		bh.sendWithKeyboard(ctx, b, chatID, messages.StartWelcome(lang), bh.buildMenuKeyboard(lang))
	case data == "menu_buy":
		bh.sendProductChoice(ctx, b, chatID, lang)
	case data == "menu_redeem":
		bh.startPromoFlow(ctx, b, chatID, userID, lang)
	case data == "menu_access":
		bh.sendAccessList(ctx, b, chatID, userID, lang)
	case data == "menu_ref":
		bh.sendReferralCabinet(ctx, b, chatID, userID, lang)
	case data == "ref_withdraw":
		bh.startWithdrawFlow(ctx, b, chatID, userID, lang)
	case data == "ref_history":
		bh.sendWithdrawHistory(ctx, b, chatID, userID, lang)
	case strings.HasPrefix(data, "prod:"):
		bh.sendPlanChoice(ctx, b, chatID, lang, strings.TrimPrefix(data, "prod:"))
	case strings.HasPrefix(data, "buy:"):
		bh.sendInvoice(ctx, b, chatID, lang, strings.TrimPrefix(data, "buy:"))
	default:
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
	}
}

func (bh *Handlers) buildMenuKeyboard(lang i18n.Lang) models.InlineKeyboardMarkup {
	pad := func(s string) string { return "   " + s + "   " }
	rows := [][]models.InlineKeyboardButton{
		{{Text: pad(messages.MenuBtnBuy(lang)), CallbackData: "menu_buy"}},
		{{Text: pad(messages.MenuBtnRedeem(lang)), CallbackData: "menu_redeem"}},
		{{Text: pad(messages.MenuBtnAccess(lang)), CallbackData: "menu_access"}},
		{{Text: pad(messages.MenuBtnReferral(lang)), CallbackData: "menu_ref"}},
	}
	return models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (bh *Handlers) sendProductChoice(ctx context.Context, b *bot.Bot, chatID int64, lang i18n.Lang) {
	products := bh.catalog.Products()
	rows := make([][]models.InlineKeyboardButton, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: p, CallbackData: "prod:" + p},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: messages.MenuBtnBack(lang), CallbackData: "menu_main"},
	})
	bh.sendWithKeyboard(ctx, b, chatID, messages.ChooseProduct(lang), models.InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (bh *Handlers) sendPlanChoice(ctx context.Context, b *bot.Bot, chatID int64, lang i18n.Lang, product string) {
	plans := bh.catalog.PlansFor(product)
	if len(plans) == 0 {
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		return
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(plans)+1)
	for _, p := range plans {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: messages.PlanButton(p.Name, p.Days, p.Price), CallbackData: fmt.Sprintf("buy:%s:%s", p.Product, p.Name)},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: messages.MenuBtnBack(lang), CallbackData: "menu_buy"},
	})
	bh.sendWithKeyboard(ctx, b, chatID, messages.ChoosePlan(lang, product), models.InlineKeyboardMarkup{InlineKeyboard: rows})
}

// sendInvoice starts the Telegram payment flow for "product:plan". The
// payload carries the same pair so pre-checkout and fulfillment can resolve
// the plan without extra state.
func (bh *Handlers) sendInvoice(ctx context.Context, b *bot.Bot, chatID int64, lang i18n.Lang, target string) {
	product, planName, ok := strings.Cut(target, ":")
	if !ok {
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		return
	}
	plan, found := bh.catalog.Find(product, planName)
	if !found {
		bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		return
	}
	if strings.TrimSpace(bh.cfg.PaymentToken) == "" {
		bh.send(ctx, b, chatID, messages.PaymentNotConfigured(lang))
		return
	}

	_, err := b.SendInvoice(ctx, &bot.SendInvoiceParams{
		ChatID:        chatID,
		Title:         product,
		Description:   messages.PlanButton(plan.Name, plan.Days, plan.Price),
		Payload:       fmt.Sprintf("%s:%s", plan.Product, plan.Name),
		ProviderToken: bh.cfg.PaymentToken,
		Currency:      bh.cfg.Currency,
		Prices: []models.LabeledPrice{
			{Label: plan.Name, Amount: int(plan.Price)},
		},
	})
	if err != nil {
		bh.log.Error("sending invoice",
			slog.Int64("chat_id", chatID),
			slog.String("product", product),
			sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
	}
}

func (bh *Handlers) startPromoFlow(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang) {
	err := bh.state.SetPending(userID, types.PendingState{
		UserID: userID,
		ChatID: chatID,
		Kind:   types.PendingPromoCode,
	})
	if err != nil {
		bh.log.Error("setting pending state", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.RedeemPrompt(lang))
}

func (bh *Handlers) startWithdrawFlow(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang) {
	user, err := bh.users.GetUser(ctx, userID)
	if err != nil {
		bh.log.Error("loading user", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	if user.ReferralBalance < bh.cfg.MinWithdrawal {
		bh.send(ctx, b, chatID, messages.WithdrawInsufficient(lang, user.ReferralBalance))
		return
	}
	err = bh.state.SetPending(userID, types.PendingState{
		UserID: userID,
		ChatID: chatID,
		Kind:   types.PendingWithdrawAmount,
	})
	if err != nil {
		bh.log.Error("setting pending state", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.WithdrawAmountPrompt(lang, user.ReferralBalance, bh.cfg.MinWithdrawal))
}

func (bh *Handlers) sendAccessList(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang) {
	subs, err := bh.subs.ListSubscriptions(ctx, userID)
	if err != nil {
		bh.log.Error("listing subscriptions", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	now := time.Now().UTC()
	active := subs[:0]
	for _, s := range subs {
		if s.Active && (s.ExpiresAt == nil || s.ExpiresAt.After(now)) {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		bh.send(ctx, b, chatID, messages.AccessNone(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.AccessList(lang, active))
}

func (bh *Handlers) sendReferralCabinet(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang) {
	user, err := bh.users.GetUser(ctx, userID)
	if err != nil {
		bh.log.Error("loading user", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	invited, balance, err := bh.referrals.Stats(ctx, user)
	if err != nil {
		bh.log.Error("loading referral stats", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	link := fmt.Sprintf("https://t.me/%s?start=r_%d", bh.botUsername, user.TelegramID)
	kb := models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: messages.MenuBtnWithdraw(lang), CallbackData: "ref_withdraw"}},
		{{Text: messages.MenuBtnHistory(lang), CallbackData: "ref_history"}},
		{{Text: messages.MenuBtnBack(lang), CallbackData: "menu_main"}},
	}}
	bh.sendWithKeyboard(ctx, b, chatID, messages.ReferralCabinet(lang, link, invited, balance), kb)
}

func (bh *Handlers) sendWithdrawHistory(ctx context.Context, b *bot.Bot, chatID, userID int64, lang i18n.Lang) {
	requests, err := bh.withdrawals.ListWithdrawals(ctx, userID)
	if err != nil {
		bh.log.Error("listing withdrawals", slog.Int64("user_id", userID), sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	if len(requests) == 0 {
		bh.send(ctx, b, chatID, messages.WithdrawHistoryEmpty(lang))
		return
	}
	bh.send(ctx, b, chatID, messages.WithdrawHistory(lang, requests))
}
