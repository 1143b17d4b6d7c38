package telegram

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/domain/ports/adapter"
)

var (
	_ adapter.ChannelManager = (*NoopClient)(nil)
	_ adapter.Notifier       = (*NoopClient)(nil)
	_ adapter.AuditLog       = (*NoopClient)(nil)
)

// NoopClient stands in for Client in local runs without a bot token.
// It logs instead of calling Telegram and reports itself as admin of every chat.
type NoopClient struct {
	self  adapter.BotIdentity
	links atomic.Int64
	log   *zerolog.Logger
}

func NewNoopClient(logger *zerolog.Logger) *NoopClient {
	l := logger.With().Str("component", "noop_telegram").Logger()
	return &NoopClient{self: adapter.BotIdentity{ID: 1, Username: "noop_bot"}, log: &l}
}

func (n *NoopClient) BotIdentity(ctx context.Context) (adapter.BotIdentity, error) {
	return n.self, nil
}

func (n *NoopClient) CreateInviteLink(ctx context.Context, req adapter.InviteLinkRequest) (string, error) {
	link := fmt.Sprintf("https://t.me/+noop%d", n.links.Add(1))
	n.log.Info().Int64("chat_id", req.ChatID).Str("link", link).Str("name", req.Name).Msg("invite link created")
	return link, nil
}

func (n *NoopClient) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	n.log.Info().Int64("chat_id", chatID).Str("link", link).Msg("invite link revoked")
	return nil
}

func (n *NoopClient) RemoveMember(ctx context.Context, chatID, userID int64) error {
	n.log.Info().Int64("chat_id", chatID).Int64("tg_id", userID).Msg("member removed")
	return nil
}

func (n *NoopClient) ListAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	return []int64{n.self.ID}, nil
}

func (n *NoopClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	n.log.Info().Int64("chat_id", chatID).Str("text", text).Msg("message")
	return nil
}

func (n *NoopClient) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	n.log.Info().Int64("chat_id", chatID).Str("text", text).Interface("buttons", rows).Msg("message")
	return nil
}

func (n *NoopClient) LogEvent(ctx context.Context, text string) error {
	n.log.Info().Str("event", text).Msg("audit")
	return nil
}
