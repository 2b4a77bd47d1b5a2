package referral

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

	"github.com/velmor/infoshop-bot/types"
)

type EdgesMock struct{ mock.Mock }

func (m *EdgesMock) CreateReferralEdge(ctx context.Context, referrerUserID, referredUserID int64) (bool, error) {
	args := m.Called(ctx, referrerUserID, referredUserID)
	return args.Bool(0), args.Error(1)
}

func (m *EdgesMock) QualifyReferral(ctx context.Context, referredUserID int64, bonus int64, now time.Time) (int64, bool, error) {
	args := m.Called(ctx, referredUserID, bonus, now)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *EdgesMock) CountReferrals(ctx context.Context, referrerUserID int64) (int, error) {
	args := m.Called(ctx, referrerUserID)
	return args.Int(0), args.Error(1)
}

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

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		in     string
		wantID int64
		wantOK bool
	}{
		{"r_123", 123, true},
		{" r_42 ", 42, true},
		{"r_", 0, false},
		{"r_garbage", 0, false},
		{"r_-5", 0, false},
		{"r_0", 0, false},
		{"x_123", 0, false},
		{"", 0, false},
		{"123", 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseToken(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.wantID, id, tt.in)
	}
}

func TestRegister_Linked(t *testing.T) {
	newUser := &types.User{ID: 10, TelegramID: 555}
	referrer := &types.User{ID: 3, TelegramID: 123}

	users := new(UsersMock)
	users.On("GetUserByTelegramID", mock.Anything, int64(123)).Return(referrer, nil).Once()

	edges := new(EdgesMock)
	edges.On("CreateReferralEdge", mock.Anything, int64(3), int64(10)).Return(true, nil).Once()

	svc := New(edges, users, 50, noopLogger())
	out, err := svc.Register(context.Background(), newUser, "r_123")
	require.NoError(t, err)
	assert.Equal(t, Linked, out)
	edges.AssertExpectations(t)
}

func TestRegister_NoReferralPaths(t *testing.T) {
	newUser := &types.User{ID: 10, TelegramID: 555}

	tests := []struct {
		name  string
		token string
		setup func(users *UsersMock, edges *EdgesMock)
	}{
		{
			name:  "garbage token, nothing resolved",
			token: "r_garbage",
			setup: func(users *UsersMock, edges *EdgesMock) {},
		},
		{
			name:  "empty token",
			token: "",
			setup: func(users *UsersMock, edges *EdgesMock) {},
		},
		{
			name:  "unknown referrer",
			token: "r_999",
			setup: func(users *UsersMock, edges *EdgesMock) {
				users.On("GetUserByTelegramID", mock.Anything, int64(999)).
					Return(nil, types.ErrNotFound).Once()
			},
		},
		{
			name:  "self referral",
			token: "r_555",
			setup: func(users *UsersMock, edges *EdgesMock) {
				users.On("GetUserByTelegramID", mock.Anything, int64(555)).
					Return(&types.User{ID: 10, TelegramID: 555}, nil).Once()
			},
		},
		{
			name:  "already referred, first link wins",
			token: "r_123",
			setup: func(users *UsersMock, edges *EdgesMock) {
				users.On("GetUserByTelegramID", mock.Anything, int64(123)).
					Return(&types.User{ID: 3, TelegramID: 123}, nil).Once()
				edges.On("CreateReferralEdge", mock.Anything, int64(3), int64(10)).
					Return(false, nil).Once()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UsersMock)
			edges := new(EdgesMock)
			tt.setup(users, edges)

			svc := New(edges, users, 50, noopLogger())
			out, err := svc.Register(context.Background(), newUser, tt.token)
			require.NoError(t, err)
			assert.Equal(t, NoReferral, out)
			users.AssertExpectations(t)
			edges.AssertExpectations(t)
		})
	}
}

func TestRegister_StoreErrorPropagates(t *testing.T) {
	users := new(UsersMock)
	users.On("GetUserByTelegramID", mock.Anything, int64(123)).
		Return(nil, errors.New("timeout")).Once()

	svc := New(new(EdgesMock), users, 50, noopLogger())
	out, err := svc.Register(context.Background(), &types.User{ID: 10}, "r_123")
	assert.Error(t, err)
	assert.Equal(t, NoReferral, out)
}

func TestCompleteQualifyingAction(t *testing.T) {
	now := time.Now()

	edges := new(EdgesMock)
	edges.On("QualifyReferral", mock.Anything, int64(10), int64(50), now).
		Return(int64(3), true, nil).Once()
	// repeat call: nothing left to credit
	edges.On("QualifyReferral", mock.Anything, int64(10), int64(50), now).
		Return(int64(0), false, nil).Once()

	svc := New(edges, new(UsersMock), 50, noopLogger())
	require.NoError(t, svc.CompleteQualifyingAction(context.Background(), 10, now))
	require.NoError(t, svc.CompleteQualifyingAction(context.Background(), 10, now))
	edges.AssertExpectations(t)
}

func TestStats(t *testing.T) {
	user := &types.User{ID: 3, ReferralBalance: 150}

	edges := new(EdgesMock)
	edges.On("CountReferrals", mock.Anything, int64(3)).Return(4, nil).Once()

	svc := New(edges, new(UsersMock), 50, noopLogger())
	invited, balance, err := svc.Stats(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 4, invited)
	assert.Equal(t, int64(150), balance)
}
