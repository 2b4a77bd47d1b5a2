package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/internal/commerce"
	"github.com/velmor/infoshop-bot/internal/config"
	"github.com/velmor/infoshop-bot/internal/contextkeys"
	"github.com/velmor/infoshop-bot/internal/entitlement"
	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/messages"
	"github.com/velmor/infoshop-bot/internal/referral"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

type Handlers struct {
	cfg          *config.Config
	catalog      *catalog.Catalog
	orchestrator *commerce.Orchestrator
	entitlements *entitlement.Service
	referrals    *referral.Service
	users        types.UserStore
	subs         types.SubscriptionStore
	state        types.StateStore
	withdrawals  types.WithdrawalStore
	promoStore   types.PromoStore
	// botUsername goes into the referral deep link
	botUsername string
	log         *slog.Logger
}

func NewHandlers(
	cfg *config.Config,
	cat *catalog.Catalog,
	orchestrator *commerce.Orchestrator,
	entitlements *entitlement.Service,
	referrals *referral.Service,
	users types.UserStore,
	subs types.SubscriptionStore,
	state types.StateStore,
	withdrawals types.WithdrawalStore,
	promoStore types.PromoStore,
	botUsername string,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		cfg:          cfg,
		catalog:      cat,
		orchestrator: orchestrator,
		entitlements: entitlements,
		referrals:    referrals,
		users:        users,
		subs:         subs,
		state:        state,
		withdrawals:  withdrawals,
		promoStore:   promoStore,
		botUsername:  botUsername,
		log:          log,
	}
}

func langFromCtx(ctx context.Context) i18n.Lang {
	if v, ok := contextkeys.GetLang(ctx); ok {
		return i18n.Parse(v)
	}
	return i18n.EN
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, _ := contextkeys.GetChatID(ctx)
	messageType, _ := contextkeys.GetMessageType(ctx)
	lang := langFromCtx(ctx)

	userID, ok := contextkeys.GetUserID(ctx)
	if !ok {
		bh.log.Error("user id not found in context")
		if chatID != 0 {
			bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		}
		return
	}

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, b, update, userID)
	case contextkeys.MessageTypeText:
		bh.HandleText(ctx, b, update, userID)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, b, update, userID)
	case contextkeys.MessageTypePreCheckout:
		bh.HandlePreCheckout(ctx, b, update, userID)
	case contextkeys.MessageTypePayment:
		bh.HandleSuccessfulPayment(ctx, b, update, userID)
	default:
		if chatID != 0 {
			bh.send(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
		}
	}
}

func (bh *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	if err != nil {
		bh.log.Error("sending message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}

func (bh *Handlers) sendWithKeyboard(ctx context.Context, b *bot.Bot, chatID int64, text string, kb models.InlineKeyboardMarkup) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: kb,
	})
	if err != nil {
		bh.log.Error("sending message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}
