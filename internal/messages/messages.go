// Package messages builds every outbound text. Builders take raw fragments
// and run user-controlled substrings through sanitize exactly once, here at
// the delivery boundary; nothing upstream pre-escapes.
package messages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/internal/sanitize"
	"github.com/velmor/infoshop-bot/types"
)

const ParseModeHTML = "HTML"

func esc(s string) string {
	return sanitize.Text(strings.TrimSpace(s), sanitize.HTML)
}

func money(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("02.01.2006")
}

func StartWelcome(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "👋 <b>Привет!</b>\nЗдесь можно купить доступ к материалам, активировать промокод и следить за подпиской.\n\nКоманды: /buy /redeem /myaccess /ref"
	}
	return "👋 <b>Hi!</b>\nHere you can buy access to materials, redeem a promo code and manage your subscription.\n\nCommands: /buy /redeem /myaccess /ref"
}

func ErrorDefault(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🚫 <b>Ошибка сервиса</b>\nПопробуйте ещё раз позже."
	}
	return "🚫 <b>Service error</b>\nPlease try again later."
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "❓ <b>Команда не найдена</b>"
	}
	return "❓ <b>Unknown command</b>"
}

// --- promo ---

func RedeemPrompt(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🎟️ <b>Введите промокод</b>"
	}
	return "🎟️ <b>Enter your promo code</b>"
}

func RedeemSuccessPlan(lang i18n.Lang, product string, expiresAt *time.Time) string {
	if lang == i18n.RU {
		msg := fmt.Sprintf("✅ <b>Промокод активирован</b>\n📦 Доступ: %s", esc(product))
		if expiresAt != nil {
			msg += fmt.Sprintf("\n📅 Действует до: <b>%s</b>", formatDate(*expiresAt))
		} else {
			msg += "\n♾️ Доступ бессрочный"
		}
		return msg
	}
	msg := fmt.Sprintf("✅ <b>Promo code activated</b>\n📦 Access: %s", esc(product))
	if expiresAt != nil {
		msg += fmt.Sprintf("\n📅 Valid until: <b>%s</b>", formatDate(*expiresAt))
	} else {
		msg += "\n♾️ Unlimited access"
	}
	return msg
}

func RedeemSuccessCredit(lang i18n.Lang, amount int64) string {
	if lang == i18n.RU {
		return fmt.Sprintf("✅ <b>Промокод активирован</b>\n💰 На баланс зачислено: %s", money(amount))
	}
	return fmt.Sprintf("✅ <b>Promo code activated</b>\n💰 Balance credited: %s", money(amount))
}

// RedeemRejected maps a redemption rejection to its user-facing reason.
func RedeemRejected(lang i18n.Lang, err error) string {
	ru := lang == i18n.RU
	switch {
	case errors.Is(err, types.ErrMalformedCode):
		if ru {
			return "🚫 <b>Неверный формат промокода</b>\nМинимум 3 символа: буквы, цифры, «-» и «_»."
		}
		return "🚫 <b>Invalid promo code format</b>\nAt least 3 characters: letters, digits, «-» and «_»."
	case errors.Is(err, types.ErrCodeNotFound):
		if ru {
			return "🚫 <b>Промокод не найден</b>"
		}
		return "🚫 <b>Promo code not found</b>"
	case errors.Is(err, types.ErrCodeExpired):
		if ru {
			return "⏰ <b>Срок действия промокода истёк</b>"
		}
		return "⏰ <b>This promo code has expired</b>"
	case errors.Is(err, types.ErrCodeExhausted):
		if ru {
			return "😔 <b>Промокод уже исчерпан</b>"
		}
		return "😔 <b>This promo code is used up</b>"
	case errors.Is(err, types.ErrAlreadyRedeemed):
		if ru {
			return "⚠️ <b>Вы уже активировали этот промокод</b>"
		}
		return "⚠️ <b>You have already redeemed this code</b>"
	default:
		return ErrorDefault(lang)
	}
}

// --- access ---

func AccessNone(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "📭 <b>Активных подписок нет</b>\nКупите доступ через /buy или активируйте промокод: /redeem"
	}
	return "📭 <b>No active subscriptions</b>\nBuy access with /buy or redeem a code: /redeem"
}

func AccessList(lang i18n.Lang, subs []*types.Subscription) string {
	var b strings.Builder
	if lang == i18n.RU {
		b.WriteString("🔑 <b>Ваши подписки</b>\n")
	} else {
		b.WriteString("🔑 <b>Your subscriptions</b>\n")
	}
	for _, sub := range subs {
		line := fmt.Sprintf("\n📦 %s — %s", esc(sub.Product), esc(sub.Plan))
		switch {
		case !sub.Active:
			if lang == i18n.RU {
				line += " (истекла)"
			} else {
				line += " (expired)"
			}
		case sub.ExpiresAt != nil:
			if lang == i18n.RU {
				line += fmt.Sprintf(" (до %s)", formatDate(*sub.ExpiresAt))
			} else {
				line += fmt.Sprintf(" (until %s)", formatDate(*sub.ExpiresAt))
			}
		default:
			if lang == i18n.RU {
				line += " (бессрочно)"
			} else {
				line += " (unlimited)"
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

// --- referral ---

func ReferralCabinet(lang i18n.Lang, link string, invited int, balance int64) string {
	if lang == i18n.RU {
		return fmt.Sprintf(
			"🤝 <b>Реферальная программа</b>\n\n🔗 Ваша ссылка:\n<code>%s</code>\n\n👤 Приглашено: <b>%d</b>\n💰 Баланс: <b>%s</b>",
			esc(link), invited, money(balance))
	}
	return fmt.Sprintf(
		"🤝 <b>Referral program</b>\n\n🔗 Your link:\n<code>%s</code>\n\n👤 Invited: <b>%d</b>\n💰 Balance: <b>%s</b>",
		esc(link), invited, money(balance))
}

// --- withdrawals ---

func WithdrawAmountPrompt(lang i18n.Lang, balance, minAmount int64) string {
	if lang == i18n.RU {
		return fmt.Sprintf("💸 <b>Вывод средств</b>\nБаланс: %s\nВведите сумму (минимум %s):", money(balance), money(minAmount))
	}
	return fmt.Sprintf("💸 <b>Withdrawal</b>\nBalance: %s\nEnter the amount (minimum %s):", money(balance), money(minAmount))
}

func WithdrawBelowMinimum(lang i18n.Lang, minAmount int64) string {
	if lang == i18n.RU {
		return fmt.Sprintf("⚠️ <b>Слишком маленькая сумма</b>\nМинимум для вывода: %s", money(minAmount))
	}
	return fmt.Sprintf("⚠️ <b>Amount too small</b>\nMinimum withdrawal: %s", money(minAmount))
}

func WithdrawInsufficient(lang i18n.Lang, balance int64) string {
	if lang == i18n.RU {
		return fmt.Sprintf("⚠️ <b>Недостаточно средств</b>\nВаш баланс: %s", money(balance))
	}
	return fmt.Sprintf("⚠️ <b>Insufficient balance</b>\nYour balance: %s", money(balance))
}

func WithdrawBadAmount(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "⚠️ <b>Не понял сумму</b>\nВведите число, например 150.50"
	}
	return "⚠️ <b>Could not parse the amount</b>\nEnter a number, e.g. 150.50"
}

func WithdrawPhonePrompt(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "📱 <b>Введите номер телефона для СБП</b>"
	}
	return "📱 <b>Enter the phone number for the transfer</b>"
}

func WithdrawBankPrompt(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🏦 <b>Введите название банка</b>"
	}
	return "🏦 <b>Enter the bank name</b>"
}

func WithdrawCreated(lang i18n.Lang, amount int64) string {
	if lang == i18n.RU {
		return fmt.Sprintf("✅ <b>Заявка на вывод создана</b>\nСумма: %s\nОжидайте обработки.", money(amount))
	}
	return fmt.Sprintf("✅ <b>Withdrawal request created</b>\nAmount: %s\nIt will be processed shortly.", money(amount))
}

func WithdrawHistoryEmpty(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "📭 <b>Заявок на вывод ещё не было</b>"
	}
	return "📭 <b>No withdrawal requests yet</b>"
}

func WithdrawHistory(lang i18n.Lang, requests []*types.WithdrawalRequest) string {
	var b strings.Builder
	if lang == i18n.RU {
		b.WriteString("💸 <b>Ваши заявки на вывод</b>")
	} else {
		b.WriteString("💸 <b>Your withdrawal requests</b>")
	}
	status := func(s types.WithdrawalStatus) string {
		if lang == i18n.RU {
			switch s {
			case types.WithdrawalApproved:
				return "✅ выполнена"
			case types.WithdrawalRejected:
				return "❌ отклонена"
			default:
				return "⏳ в обработке"
			}
		}
		switch s {
		case types.WithdrawalApproved:
			return "✅ approved"
		case types.WithdrawalRejected:
			return "❌ rejected"
		default:
			return "⏳ pending"
		}
	}
	for _, r := range requests {
		b.WriteString(fmt.Sprintf("\n• %s — %s — %s", formatDate(r.RequestedAt), money(r.Amount), status(r.Status)))
	}
	return b.String()
}

// --- payments ---

func PaymentSucceeded(lang i18n.Lang, product string, expiresAt *time.Time) string {
	if lang == i18n.RU {
		msg := fmt.Sprintf("🎉 <b>Оплата получена</b>\n📦 Доступ: %s", esc(product))
		if expiresAt != nil {
			msg += fmt.Sprintf("\n📅 Действует до: <b>%s</b>", formatDate(*expiresAt))
		} else {
			msg += "\n♾️ Доступ бессрочный"
		}
		return msg
	}
	msg := fmt.Sprintf("🎉 <b>Payment received</b>\n📦 Access: %s", esc(product))
	if expiresAt != nil {
		msg += fmt.Sprintf("\n📅 Valid until: <b>%s</b>", formatDate(*expiresAt))
	} else {
		msg += "\n♾️ Unlimited access"
	}
	return msg
}

func PaymentAlreadyProcessed(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "ℹ️ <b>Этот платёж уже обработан</b>"
	}
	return "ℹ️ <b>This payment was already processed</b>"
}

func PaymentNotConfigured(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🚫 Оплата временно недоступна"
	}
	return "🚫 Payments are temporarily unavailable"
}

// --- products ---

func ChooseProduct(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🛒 <b>Выберите продукт</b>"
	}
	return "🛒 <b>Choose a product</b>"
}

func ChoosePlan(lang i18n.Lang, product string) string {
	if lang == i18n.RU {
		return fmt.Sprintf("📦 <b>%s</b>\nВыберите тариф:", esc(product))
	}
	return fmt.Sprintf("📦 <b>%s</b>\nChoose a plan:", esc(product))
}

func PlanButton(plan string, days int, price int64) string {
	if days == 0 {
		return fmt.Sprintf("%s — %s (навсегда)", plan, money(price))
	}
	return fmt.Sprintf("%s — %s (%d дн.)", plan, money(price), days)
}

// --- menu buttons ---

func MenuBtnBuy(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🛒 Купить доступ"
	}
	return "🛒 Buy access"
}

func MenuBtnRedeem(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🎟 Промокод"
	}
	return "🎟 Promo code"
}

func MenuBtnAccess(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🔑 Мои доступы"
	}
	return "🔑 My access"
}

func MenuBtnReferral(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "🤝 Пригласить друга"
	}
	return "🤝 Invite a friend"
}

func MenuBtnWithdraw(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "💸 Вывести средства"
	}
	return "💸 Withdraw"
}

func MenuBtnHistory(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "📋 Мои заявки"
	}
	return "📋 My requests"
}

func MenuBtnBack(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "⬅️ Назад"
	}
	return "⬅️ Back"
}

// --- admin ---

func AdminGrantUsage(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "Использование: /grant <секрет> <продукт> <тариф> [telegram_id]"
	}
	return "Usage: /grant <secret> <product> <plan> [telegram_id]"
}

func AdminDenied(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "⛔ Доступ запрещён"
	}
	return "⛔ Access denied"
}

func AdminNewCodeUsage(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "Использование: /newcode <секрет> <код> <макс_использований> [продукт тариф]"
	}
	return "Usage: /newcode <secret> <code> <max_uses> [product plan]"
}

func AdminNewCodeDone(lang i18n.Lang, code string, maxUses int) string {
	if lang == i18n.RU {
		return fmt.Sprintf("✅ Промокод <code>%s</code> создан (использований: %d)", esc(code), maxUses)
	}
	return fmt.Sprintf("✅ Promo code <code>%s</code> created (uses: %d)", esc(code), maxUses)
}

func AdminDecideUsage(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "Использование: /decide <секрет> <id_заявки> approve|reject"
	}
	return "Usage: /decide <secret> <request_id> approve|reject"
}

func AdminDecideDone(lang i18n.Lang, requestID int64, status string) string {
	if lang == i18n.RU {
		return fmt.Sprintf("✅ Заявка %d: %s", requestID, esc(status))
	}
	return fmt.Sprintf("✅ Request %d: %s", requestID, esc(status))
}

func AdminGrantDone(lang i18n.Lang, product string, expiresAt *time.Time) string {
	if lang == i18n.RU {
		if expiresAt == nil {
			return fmt.Sprintf("✅ Выдан бессрочный доступ: %s", esc(product))
		}
		return fmt.Sprintf("✅ Выдан доступ: %s до %s", esc(product), formatDate(*expiresAt))
	}
	if expiresAt == nil {
		return fmt.Sprintf("✅ Granted unlimited access: %s", esc(product))
	}
	return fmt.Sprintf("✅ Granted access: %s until %s", esc(product), formatDate(*expiresAt))
}
