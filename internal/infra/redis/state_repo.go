package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

const defaultSessionTTL = 30 * time.Minute

// StateRepo keeps the per-user checkout session (open payment, pending
// referrer) as one JSON value. Every write restarts the TTL.
type StateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewStateRepo(client RedisClient, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &StateRepo{client: client, ttl: ttl}
}

func sessionKey(tgID int64) string {
	return fmt.Sprintf("session:%d", tgID)
}

// SetState replaces the session. A nil or empty state clears it.
func (s *StateRepo) SetState(ctx context.Context, tgID int64, state *repository.ConversationState) error {
	if state == nil || (state.Step == "" && len(state.Data) == 0) {
		return s.ClearState(ctx, tgID)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", tgID, err)
	}
	return s.client.Set(ctx, sessionKey(tgID), data, s.ttl)
}

// GetState returns nil without error when the user has no session. A value
// that no longer decodes is dropped and treated as absent.
func (s *StateRepo) GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error) {
	raw, err := s.client.Get(ctx, sessionKey(tgID))
	if IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state repository.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, s.ClearState(ctx, tgID)
	}
	if state.Data == nil {
		state.Data = map[string]string{}
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	return s.client.Del(ctx, sessionKey(tgID))
}
