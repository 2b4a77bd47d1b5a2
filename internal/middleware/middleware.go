package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/contextkeys"
	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/messages"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

type Middlewares struct {
	users types.UserStore
	log   *slog.Logger
}

func NewMessageAnalyzer(users types.UserStore, log *slog.Logger) *Middlewares {
	return &Middlewares{
		users: users,
		log:   log,
	}
}

// IdentifyUserMiddleware resolves the Telegram sender into a ledger user and
// puts the ledger id, chat id and language on the context. Updates without an
// identifiable sender are dropped here.
func (m *Middlewares) IdentifyUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		var (
			from   *models.User
			chatID int64
		)

		switch {
		case update.Message != nil && update.Message.From != nil:
			from = update.Message.From
			chatID = update.Message.Chat.ID
		case update.CallbackQuery != nil:
			from = &update.CallbackQuery.From
			chatID = getChatIDFromMaybeInaccessibleMessage(update.CallbackQuery.Message)
			if chatID == 0 {
				return
			}
		case update.PreCheckoutQuery != nil:
			from = update.PreCheckoutQuery.From
			// pre-checkout answers go back through the query id, not a chat
		default:
			return
		}

		if from == nil || from.ID == 0 {
			return
		}

		lang := i18n.FromLanguageCode(from.LanguageCode)

		user, _, err := m.users.GetOrCreateUser(ctx, from.ID, from.Username)
		if err != nil {
			m.log.Error("resolving user", slog.Int64("telegram_id", from.ID), sl.Err(err))
			if chatID != 0 {
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID:    chatID,
					Text:      messages.ErrorDefault(lang),
					ParseMode: messages.ParseModeHTML,
				})
			}
			return
		}

		ctx = contextkeys.WithUserID(ctx, user.ID)
		ctx = contextkeys.WithChatID(ctx, chatID)
		ctx = contextkeys.WithLang(ctx, string(lang))
		next(ctx, b, update)
	}
}

func getChatIDFromMaybeInaccessibleMessage(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

// AnalyzeMessageMiddleware classifies the update so the main handler can
// dispatch on a single message type.
func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		switch {
		case update.CallbackQuery != nil && update.CallbackQuery.Data != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
		case update.PreCheckoutQuery != nil:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypePreCheckout)
		case update.Message != nil && update.Message.SuccessfulPayment != nil:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypePayment)
		case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
		case update.Message != nil && update.Message.Text != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
		default:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
		}

		next(ctx, b, update)
	}
}
