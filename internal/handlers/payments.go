package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/messages"
	"github.com/velmor/infoshop-bot/internal/sl"
	"github.com/velmor/infoshop-bot/types"
)

// HandlePreCheckout answers Telegram's last-moment validation. The payload
// must name a plan that still exists in the catalog; everything else was
// already checked when the invoice went out.
func (bh *Handlers) HandlePreCheckout(ctx context.Context, b *bot.Bot, update *models.Update, userID int64) {
	if update == nil || update.PreCheckoutQuery == nil {
		return
	}
	lang := langFromCtx(ctx)

	_, _, ok := bh.planFromPayload(update.PreCheckoutQuery.InvoicePayload)
	_, _ = b.AnswerPreCheckoutQuery(ctx, &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: update.PreCheckoutQuery.ID,
		OK:                 ok,
		ErrorMessage: func() string {
			if ok {
				return ""
			}
			if lang == i18n.RU {
				return "Некорректный платеж"
			}
			return "Invalid payment"
		}(),
	})
}

// HandleSuccessfulPayment fulfills a confirmed purchase. Telegram may
// deliver the same update more than once; the orchestrator dedupes on the
// charge id and reports granted=false for a charge it already fulfilled.
func (bh *Handlers) HandleSuccessfulPayment(ctx context.Context, b *bot.Bot, update *models.Update, userID int64) {
	if update == nil || update.Message == nil || update.Message.SuccessfulPayment == nil {
		return
	}
	lang := langFromCtx(ctx)
	chatID := update.Message.Chat.ID
	p := update.Message.SuccessfulPayment

	product, plan, ok := bh.planFromPayload(p.InvoicePayload)
	if !ok {
		bh.log.Error("payment with unknown payload",
			slog.Int64("user_id", userID),
			slog.String("payload", p.InvoicePayload))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	payment := types.Payment{
		UserID:                userID,
		Product:               product,
		Plan:                  plan.Name,
		Provider:              providerFromCurrency(p.Currency),
		Currency:              strings.TrimSpace(p.Currency),
		TotalAmount:           int64(p.TotalAmount),
		InvoicePayload:        strings.TrimSpace(p.InvoicePayload),
		TelegramPaymentCharge: strings.TrimSpace(p.TelegramPaymentChargeID),
		ProviderPaymentCharge: strings.TrimSpace(p.ProviderPaymentChargeID),
		CreatedAt:             time.Now().UTC(),
	}

	sub, granted, err := bh.orchestrator.ConfirmPurchase(ctx, userID, payment, plan, time.Now().UTC())
	if err != nil {
		bh.log.Error("confirming purchase",
			slog.Int64("user_id", userID),
			slog.String("charge", payment.TelegramPaymentCharge),
			sl.Err(err))
		bh.send(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}
	if !granted {
		bh.send(ctx, b, chatID, messages.PaymentAlreadyProcessed(lang))
		return
	}

	var expires *time.Time
	if sub != nil {
		expires = sub.ExpiresAt
	}
	bh.send(ctx, b, chatID, messages.PaymentSucceeded(lang, product, expires))
}

func (bh *Handlers) planFromPayload(payload string) (string, catalog.Plan, bool) {
	product, planName, ok := strings.Cut(strings.TrimSpace(payload), ":")
	if !ok {
		return "", catalog.Plan{}, false
	}
	plan, found := bh.catalog.Find(product, planName)
	if !found {
		return "", catalog.Plan{}, false
	}
	return product, plan, true
}

func providerFromCurrency(currency string) string {
	if strings.EqualFold(strings.TrimSpace(currency), "XTR") {
		return "stars"
	}
	return "yookassa"
}
