package commerce

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velmor/infoshop-bot/internal/catalog"
	"github.com/velmor/infoshop-bot/internal/promo"
	"github.com/velmor/infoshop-bot/internal/referral"
	"github.com/velmor/infoshop-bot/types"
)

type UsersMock struct{ mock.Mock }

func (m *UsersMock) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*types.User, bool, error) {
	args := m.Called(ctx, telegramID, username)
	u, _ := args.Get(0).(*types.User)
	return u, args.Bool(1), args.Error(2)
}

func (m *UsersMock) GetUser(ctx context.Context, id int64) (*types.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*types.User)
	return u, args.Error(1)
}

func (m *UsersMock) GetUserByTelegramID(ctx context.Context, telegramID int64) (*types.User, error) {
	args := m.Called(ctx, telegramID)
	u, _ := args.Get(0).(*types.User)
	return u, args.Error(1)
}

func (m *UsersMock) CreditBalance(ctx context.Context, userID int64, amount int64) error {
	return m.Called(ctx, userID, amount).Error(0)
}

type PaymentsMock struct{ mock.Mock }

func (m *PaymentsMock) RecordPayment(ctx context.Context, p types.Payment) (bool, bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *PaymentsMock) MarkPaymentFulfilled(ctx context.Context, telegramChargeID string) error {
	return m.Called(ctx, telegramChargeID).Error(0)
}

type RedeemerMock struct{ mock.Mock }

func (m *RedeemerMock) Redeem(ctx context.Context, code string, userID int64, now time.Time) (*promo.Result, error) {
	args := m.Called(ctx, code, userID, now)
	res, _ := args.Get(0).(*promo.Result)
	return res, args.Error(1)
}

type EntitlementsMock struct{ mock.Mock }

func (m *EntitlementsMock) HasAccess(ctx context.Context, userID int64, product string, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, product, now)
	return args.Bool(0), args.Error(1)
}

func (m *EntitlementsMock) Grant(ctx context.Context, userID int64, plan catalog.Plan, now time.Time) (*types.Subscription, error) {
	args := m.Called(ctx, userID, plan, now)
	sub, _ := args.Get(0).(*types.Subscription)
	return sub, args.Error(1)
}

type ReferralsMock struct{ mock.Mock }

func (m *ReferralsMock) Register(ctx context.Context, user *types.User, token string) (referral.Outcome, error) {
	args := m.Called(ctx, user, token)
	return args.Get(0).(referral.Outcome), args.Error(1)
}

func (m *ReferralsMock) CompleteQualifyingAction(ctx context.Context, userID int64, now time.Time) error {
	return m.Called(ctx, userID, now).Error(0)
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newOrchestrator(users *UsersMock, payments *PaymentsMock, red *RedeemerMock, ents *EntitlementsMock, refs *ReferralsMock) *Orchestrator {
	return New(users, payments, red, ents, refs, noopLogger())
}

func TestRegisterArrival(t *testing.T) {
	user := &types.User{ID: 10, TelegramID: 555}

	users := new(UsersMock)
	users.On("GetOrCreateUser", mock.Anything, int64(555), "alice").Return(user, true, nil).Once()

	refs := new(ReferralsMock)
	refs.On("Register", mock.Anything, user, "r_123").Return(referral.Linked, nil).Once()

	o := newOrchestrator(users, new(PaymentsMock), new(RedeemerMock), new(EntitlementsMock), refs)
	got, outcome, err := o.RegisterArrival(context.Background(), 555, "alice", "r_123")
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.Equal(t, referral.Linked, outcome)
}

func TestRegisterArrival_KnownUserNeverLinks(t *testing.T) {
	user := &types.User{ID: 10, TelegramID: 555}

	users := new(UsersMock)
	users.On("GetOrCreateUser", mock.Anything, int64(555), "alice").Return(user, false, nil).Once()

	// a token sent by an already registered user must not create an edge
	refs := new(ReferralsMock)

	o := newOrchestrator(users, new(PaymentsMock), new(RedeemerMock), new(EntitlementsMock), refs)
	got, outcome, err := o.RegisterArrival(context.Background(), 555, "alice", "r_999")
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.Equal(t, referral.NoReferral, outcome)
	refs.AssertExpectations(t)
}

func TestRegisterArrival_ReferralFaultDoesNotAbort(t *testing.T) {
	user := &types.User{ID: 10, TelegramID: 555}

	users := new(UsersMock)
	users.On("GetOrCreateUser", mock.Anything, int64(555), "alice").Return(user, true, nil).Once()

	refs := new(ReferralsMock)
	refs.On("Register", mock.Anything, user, "r_123").
		Return(referral.NoReferral, errors.New("store timeout")).Once()

	o := newOrchestrator(users, new(PaymentsMock), new(RedeemerMock), new(EntitlementsMock), refs)
	got, outcome, err := o.RegisterArrival(context.Background(), 555, "alice", "r_123")
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.Equal(t, referral.NoReferral, outcome)
}

func TestConfirmPurchase_GrantThenQualify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plan := catalog.Plan{Product: "course", Name: "month", Days: 30}
	payment := types.Payment{UserID: 10, Product: "course", Plan: "month", TelegramPaymentCharge: "ch_1"}
	sub := &types.Subscription{UserID: 10, Product: "course", Active: true}

	payments := new(PaymentsMock)
	payments.On("RecordPayment", mock.Anything, payment).Return(true, false, nil).Once()
	payments.On("MarkPaymentFulfilled", mock.Anything, "ch_1").Return(nil).Once()

	ents := new(EntitlementsMock)
	ents.On("Grant", mock.Anything, int64(10), plan, now).Return(sub, nil).Once()

	refs := new(ReferralsMock)
	refs.On("CompleteQualifyingAction", mock.Anything, int64(10), now).Return(nil).Once()

	o := newOrchestrator(new(UsersMock), payments, new(RedeemerMock), ents, refs)
	got, granted, err := o.ConfirmPurchase(context.Background(), 10, payment, plan, now)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, sub, got)
	payments.AssertExpectations(t)
	ents.AssertExpectations(t)
	refs.AssertExpectations(t)
}

func TestConfirmPurchase_DuplicateDelivery(t *testing.T) {
	now := time.Now()
	payment := types.Payment{UserID: 10, TelegramPaymentCharge: "ch_1"}

	payments := new(PaymentsMock)
	payments.On("RecordPayment", mock.Anything, payment).Return(false, true, nil).Once()

	// no Grant, no referral qualification on a fulfilled duplicate
	ents := new(EntitlementsMock)
	refs := new(ReferralsMock)

	o := newOrchestrator(new(UsersMock), payments, new(RedeemerMock), ents, refs)
	sub, granted, err := o.ConfirmPurchase(context.Background(), 10, payment, catalog.Plan{}, now)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Nil(t, sub)
	ents.AssertExpectations(t)
	refs.AssertExpectations(t)
}

func TestConfirmPurchase_NoQualifyWhenGrantFails(t *testing.T) {
	now := time.Now()
	payment := types.Payment{UserID: 10, TelegramPaymentCharge: "ch_1"}
	plan := catalog.Plan{Product: "course", Name: "month", Days: 30}

	payments := new(PaymentsMock)
	payments.On("RecordPayment", mock.Anything, payment).Return(true, false, nil).Once()

	ents := new(EntitlementsMock)
	ents.On("Grant", mock.Anything, int64(10), plan, now).
		Return(nil, errors.New("store down")).Once()

	refs := new(ReferralsMock) // must stay uncalled

	o := newOrchestrator(new(UsersMock), payments, new(RedeemerMock), ents, refs)
	_, _, err := o.ConfirmPurchase(context.Background(), 10, payment, plan, now)
	assert.Error(t, err)
	payments.AssertExpectations(t) // no MarkPaymentFulfilled without a grant
	refs.AssertExpectations(t)
}

// A charge recorded before the grant fails must still get its grant when
// Telegram redelivers the update: the redelivery finds a recorded but
// unfulfilled charge and retries instead of dismissing it as a duplicate.
func TestConfirmPurchase_RedeliveryRetriesUnfulfilledGrant(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plan := catalog.Plan{Product: "course", Name: "month", Days: 30}
	payment := types.Payment{UserID: 10, Product: "course", Plan: "month", TelegramPaymentCharge: "ch_1"}
	sub := &types.Subscription{UserID: 10, Product: "course", Active: true}

	payments := new(PaymentsMock)
	payments.On("RecordPayment", mock.Anything, payment).Return(true, false, nil).Once()
	payments.On("RecordPayment", mock.Anything, payment).Return(false, false, nil).Once()
	payments.On("MarkPaymentFulfilled", mock.Anything, "ch_1").Return(nil).Once()

	ents := new(EntitlementsMock)
	ents.On("Grant", mock.Anything, int64(10), plan, now).
		Return(nil, errors.New("store timeout")).Once()
	ents.On("Grant", mock.Anything, int64(10), plan, now).Return(sub, nil).Once()

	refs := new(ReferralsMock)
	refs.On("CompleteQualifyingAction", mock.Anything, int64(10), now).Return(nil).Once()

	o := newOrchestrator(new(UsersMock), payments, new(RedeemerMock), ents, refs)

	_, granted, err := o.ConfirmPurchase(context.Background(), 10, payment, plan, now)
	require.Error(t, err)
	assert.False(t, granted)

	got, granted, err := o.ConfirmPurchase(context.Background(), 10, payment, plan, now)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, sub, got)
	payments.AssertExpectations(t)
	ents.AssertExpectations(t)
	refs.AssertExpectations(t)
}

func TestRedeemPromoAndCheckAccess(t *testing.T) {
	now := time.Now()

	red := new(RedeemerMock)
	red.On("Redeem", mock.Anything, "WELCOME10", int64(10), now).
		Return(&promo.Result{Code: "WELCOME10"}, nil).Once()

	ents := new(EntitlementsMock)
	ents.On("HasAccess", mock.Anything, int64(10), "course", now).Return(true, nil).Once()

	o := newOrchestrator(new(UsersMock), new(PaymentsMock), red, ents, new(ReferralsMock))

	res, err := o.RedeemPromo(context.Background(), 10, "WELCOME10", now)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", res.Code)

	ok, err := o.CheckAccess(context.Background(), 10, "course", now)
	require.NoError(t, err)
	assert.True(t, ok)
}
