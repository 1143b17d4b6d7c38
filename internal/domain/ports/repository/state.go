package repository

import (
	"context"
)

const StateReferrerID = "referrer_id"

// ConversationState holds short-lived per-user session data: the pending
// conversational step and values such as the referrer carried by a deep link.
type ConversationState struct {
	Step string            `json:"step"`
	Data map[string]string `json:"data"`
}

type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
