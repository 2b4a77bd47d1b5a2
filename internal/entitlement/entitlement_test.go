package entitlement

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
	"github.com/velmor/infoshop-bot/types"
)

type SubsMock struct{ mock.Mock }

func (m *SubsMock) GetSubscription(ctx context.Context, userID int64, product string) (*types.Subscription, error) {
	args := m.Called(ctx, userID, product)
	sub, _ := args.Get(0).(*types.Subscription)
	return sub, args.Error(1)
}

func (m *SubsMock) ListSubscriptions(ctx context.Context, userID int64) ([]*types.Subscription, error) {
	args := m.Called(ctx, userID)
	subs, _ := args.Get(0).([]*types.Subscription)
	return subs, args.Error(1)
}

func (m *SubsMock) ActivateOrExtend(ctx context.Context, userID int64, product, plan string, duration time.Duration, now time.Time) (*types.Subscription, error) {
	args := m.Called(ctx, userID, product, plan, duration, now)
	sub, _ := args.Get(0).(*types.Subscription)
	return sub, args.Error(1)
}

func (m *SubsMock) ActivateUnlimited(ctx context.Context, userID int64, product, plan string, now time.Time) (*types.Subscription, error) {
	args := m.Called(ctx, userID, product, plan, now)
	sub, _ := args.Get(0).(*types.Subscription)
	return sub, args.Error(1)
}

func (m *SubsMock) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestHasAccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Second)

	tests := []struct {
		name string
		sub  *types.Subscription
		err  error
		want bool
	}{
		{"no row", nil, types.ErrNotFound, false},
		{"active no expiry", &types.Subscription{Active: true}, nil, true},
		{"active future expiry", &types.Subscription{Active: true, ExpiresAt: &future}, nil, true},
		{"active past expiry", &types.Subscription{Active: true, ExpiresAt: &past}, nil, false},
		{"active expiry equals now", &types.Subscription{Active: true, ExpiresAt: &now}, nil, false},
		{"inactive", &types.Subscription{Active: false, ExpiresAt: &future}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := new(SubsMock)
			subs.On("GetSubscription", mock.Anything, int64(7), "course").Return(tt.sub, tt.err).Once()

			svc := New(subs, noopLogger())
			got, err := svc.HasAccess(context.Background(), 7, "course", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			subs.AssertExpectations(t)
		})
	}
}

func TestHasAccess_StoreError(t *testing.T) {
	subs := new(SubsMock)
	subs.On("GetSubscription", mock.Anything, int64(7), "course").
		Return(nil, errors.New("connection refused")).Once()

	svc := New(subs, noopLogger())
	_, err := svc.HasAccess(context.Background(), 7, "course", time.Now())
	assert.Error(t, err)
}

func TestGrant_TimedPlan(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plan := catalog.Plan{Product: "course", Name: "month", Days: 30}
	expires := now.Add(plan.Duration())
	want := &types.Subscription{UserID: 7, Product: "course", Plan: "month", Active: true, ExpiresAt: &expires}

	subs := new(SubsMock)
	subs.On("ActivateOrExtend", mock.Anything, int64(7), "course", "month", 30*24*time.Hour, now).
		Return(want, nil).Once()

	svc := New(subs, noopLogger())
	sub, err := svc.Grant(context.Background(), 7, plan, now)
	require.NoError(t, err)
	assert.Equal(t, want, sub)
	subs.AssertExpectations(t)
}

func TestGrant_UnlimitedPlan(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plan := catalog.Plan{Product: "course", Name: "forever", Days: 0}
	want := &types.Subscription{UserID: 7, Product: "course", Plan: "forever", Active: true}

	subs := new(SubsMock)
	subs.On("ActivateUnlimited", mock.Anything, int64(7), "course", "forever", now).
		Return(want, nil).Once()

	svc := New(subs, noopLogger())
	sub, err := svc.Grant(context.Background(), 7, plan, now)
	require.NoError(t, err)
	assert.Nil(t, sub.ExpiresAt)
	subs.AssertExpectations(t)
}

func TestExpireSweep(t *testing.T) {
	now := time.Now()

	subs := new(SubsMock)
	subs.On("ExpireDue", mock.Anything, now).Return(int64(3), nil).Once()
	subs.On("ExpireDue", mock.Anything, now.Add(time.Minute)).Return(int64(0), nil).Once()

	svc := New(subs, noopLogger())

	n, err := svc.ExpireSweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// second run finds nothing left to flip
	n, err = svc.ExpireSweep(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	subs.AssertExpectations(t)
}
