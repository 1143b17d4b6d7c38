package adapter

import (
	"context"
	"time"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// InviteLinkRequest describes a single-use link. Zero MemberLimit means unlimited,
// nil ExpireAt means no expiry.
type InviteLinkRequest struct {
	ChatID      int64
	Name        string
	MemberLimit int
	ExpireAt    *time.Time
}

type BotIdentity struct {
	ID       int64
	Username string
}

// ChannelManager controls membership of the paid channels.
type ChannelManager interface {
	CreateInviteLink(ctx context.Context, req InviteLinkRequest) (string, error)
	RevokeInviteLink(ctx context.Context, chatID int64, link string) error
	// RemoveMember bans then immediately unbans, so the user may rejoin later.
	RemoveMember(ctx context.Context, chatID, userID int64) error
	ListAdministrators(ctx context.Context, chatID int64) ([]int64, error)
	BotIdentity(ctx context.Context) (BotIdentity, error)
}

// Notifier delivers messages to users and to the admin log channel.
// A recipient that blocked the bot yields domain.ErrRecipientBlocked.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]InlineButton) error
}

// AuditLog records operator-facing events (payouts, expirations, reports).
type AuditLog interface {
	LogEvent(ctx context.Context, text string) error
}

// Translator renders a localized message; unknown keys render as the key.
type Translator interface {
	T(lang, key string, params map[string]any) string
}
