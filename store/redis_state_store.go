package store

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/velmor/infoshop-bot/types"
)

// RedisStateStore keeps the per-user pending dialog state (waiting for a
// promo code, a withdrawal amount, ...). Rows expire on their own; a lost
// row only means the user has to restart the dialog.
type RedisStateStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisStateStore(client *RedisClient, ttlHours int) *RedisStateStore {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &RedisStateStore{
		client: client,
		ttl:    time.Duration(ttlHours) * time.Hour,
	}
}

func (s *RedisStateStore) pendingKey(userID int64) string {
	return s.client.generateKey("pending", strconv.FormatInt(userID, 10))
}

func (s *RedisStateStore) SetPending(userID int64, state types.PendingState) error {
	if state.ID == "" {
		state.ID = uuid.NewString()
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	state.UserID = userID
	return s.client.Set(s.pendingKey(userID), &state, s.ttl)
}

func (s *RedisStateStore) GetPending(userID int64) (*types.PendingState, error) {
	var state types.PendingState
	if err := s.client.Get(s.pendingKey(userID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStateStore) ClearPending(userID int64) error {
	return s.client.Del(s.pendingKey(userID))
}
