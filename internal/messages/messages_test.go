package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/velmor/infoshop-bot/internal/i18n"
	"github.com/velmor/infoshop-bot/types"
)

func TestRedeemSuccessPlan_EscapesProductName(t *testing.T) {
	msg := RedeemSuccessPlan(i18n.EN, "<script>alert(1)</script>", nil)
	assert.NotContains(t, msg, "<script>")
	assert.Contains(t, msg, "&lt;script&gt;")
}

func TestRedeemSuccessPlan_Expiry(t *testing.T) {
	until := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	msg := RedeemSuccessPlan(i18n.RU, "course", &until)
	assert.Contains(t, msg, "01.07.2025")

	msg = RedeemSuccessPlan(i18n.RU, "course", nil)
	assert.Contains(t, msg, "бессрочный")
}

func TestRedeemRejected_ReasonPerKind(t *testing.T) {
	seen := map[string]bool{}
	for _, err := range []error{
		types.ErrMalformedCode,
		types.ErrCodeNotFound,
		types.ErrCodeExpired,
		types.ErrCodeExhausted,
		types.ErrAlreadyRedeemed,
	} {
		msg := RedeemRejected(i18n.EN, err)
		assert.False(t, seen[msg], "duplicate reason for %v", err)
		seen[msg] = true
		assert.NotEqual(t, ErrorDefault(i18n.EN), msg)
	}
	// unknown errors fall back to the generic failure text, never raw error text
	assert.Equal(t, ErrorDefault(i18n.EN), RedeemRejected(i18n.EN, assert.AnError))
}

func TestReferralCabinet_EscapesLink(t *testing.T) {
	msg := ReferralCabinet(i18n.EN, "https://t.me/bot?start=r_1&x=<y>", 2, 150)
	assert.Contains(t, msg, "&amp;x=&lt;y&gt;")
	assert.Contains(t, msg, "1.50")
}

func TestAccessList(t *testing.T) {
	until := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	subs := []*types.Subscription{
		{Product: "course", Plan: "month", Active: true, ExpiresAt: &until},
		{Product: "club", Plan: "forever", Active: true},
		{Product: "old", Plan: "month", Active: false},
	}
	msg := AccessList(i18n.EN, subs)
	assert.Contains(t, msg, "until 01.07.2025")
	assert.Contains(t, msg, "unlimited")
	assert.Contains(t, msg, "expired")
	assert.Equal(t, 3, strings.Count(msg, "📦"))
}

func TestWithdrawHistory(t *testing.T) {
	reqs := []*types.WithdrawalRequest{
		{Amount: 15000, Status: types.WithdrawalPending, RequestedAt: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)},
		{Amount: 5000, Status: types.WithdrawalRejected, RequestedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	msg := WithdrawHistory(i18n.EN, reqs)
	assert.Contains(t, msg, "150.00")
	assert.Contains(t, msg, "pending")
	assert.Contains(t, msg, "rejected")
	assert.Equal(t, 2, strings.Count(msg, "•"))
}

func TestMoneyFormatting(t *testing.T) {
	assert.Contains(t, WithdrawCreated(i18n.EN, 10000), "100.00")
	assert.Contains(t, WithdrawCreated(i18n.EN, 10050), "100.50")
	assert.Contains(t, WithdrawCreated(i18n.EN, 5), "0.05")
}
