package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/infra/metrics"
)

var (
	_ adapter.ChannelManager = (*Client)(nil)
	_ adapter.Notifier       = (*Client)(nil)
	_ adapter.AuditLog       = (*Client)(nil)
)

// BotAPI is the part of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client talks to the Bot API on behalf of the use cases: channel membership,
// user notifications and the admin log channel.
type Client struct {
	api          BotAPI
	self         adapter.BotIdentity
	logChannelID int64
	log          *zerolog.Logger
}

// NewClient logs in with token. A zero logChannelID keeps audit events in the
// application log only.
func NewClient(token string, logChannelID int64, logger *zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, domain.External("telegram login", err)
	}
	self := adapter.BotIdentity{ID: bot.Self.ID, Username: bot.Self.UserName}
	return NewClientWithAPI(bot, self, logChannelID, logger), nil
}

func NewClientWithAPI(api BotAPI, self adapter.BotIdentity, logChannelID int64, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "telegram").Logger()
	return &Client{api: api, self: self, logChannelID: logChannelID, log: &l}
}

// API exposes the underlying bot for the update router.
func (c *Client) API() BotAPI { return c.api }

func (c *Client) BotIdentity(ctx context.Context) (adapter.BotIdentity, error) {
	return c.self, nil
}

// DeepLinkUsername is the bot username used in t.me start links: override
// when set, else the logged-in identity. Without either, partner and channel
// links cannot be built.
func (c *Client) DeepLinkUsername(ctx context.Context, override string) (string, error) {
	if name := strings.TrimPrefix(strings.TrimSpace(override), "@"); name != "" {
		return name, nil
	}
	self, err := c.BotIdentity(ctx)
	if err != nil {
		return "", domain.External("bot identity", err)
	}
	if self.Username == "" {
		return "", errors.New("bot username unknown: set bot.username")
	}
	return self.Username, nil
}

func (c *Client) CreateInviteLink(ctx context.Context, req adapter.InviteLinkRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: req.ChatID},
		Name:        truncate(req.Name, 32),
		MemberLimit: req.MemberLimit,
	}
	if req.ExpireAt != nil {
		cfg.ExpireDate = int(req.ExpireAt.Unix())
	}
	resp, err := c.api.Request(cfg)
	if err != nil {
		return "", mapError("create invite link", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", domain.External("create invite link", err)
	}
	if link.InviteLink == "" {
		return "", domain.External("create invite link", errors.New("empty invite link"))
	}
	return link.InviteLink, nil
}

func (c *Client) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	if link == "" {
		return nil
	}
	_, err := c.api.Request(tgbotapi.RevokeChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		InviteLink: link,
	})
	return mapError("revoke invite link", err)
}

func (c *Client) RemoveMember(ctx context.Context, chatID, userID int64) error {
	member := tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}
	if _, err := c.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: member,
		UntilDate:        time.Now().Add(time.Minute).Unix(),
	}); err != nil {
		return mapError("ban member", err)
	}
	// Unban right away so the user can come back with a new link.
	_, err := c.api.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
	return mapError("unban member", err)
}

func (c *Client) ListAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	members, err := c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, mapError("list administrators", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := c.api.Send(msg)
	err = mapError("send message", err)
	metrics.IncNotification("message", outcome(err))
	return err
}

// SendButtons sends text with an inline keyboard.
// A button with URL opens the link, otherwise it sends Data as callback data.
func (c *Client) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if kb := keyboard(rows); len(kb) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kb...)
	}
	_, err := c.api.Send(msg)
	err = mapError("send buttons", err)
	metrics.IncNotification("buttons", outcome(err))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRecipientBlocked):
		return "blocked"
	default:
		return "error"
	}
}

// LogEvent posts text to the admin log channel.
func (c *Client) LogEvent(ctx context.Context, text string) error {
	if c.logChannelID == 0 {
		c.log.Info().Str("event", text).Msg("audit")
		return nil
	}
	return c.SendMessage(ctx, c.logChannelID, text)
}

func keyboard(rows [][]adapter.InlineButton) [][]tgbotapi.InlineKeyboardButton {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	return kbRows
}

// mapError turns Bot API failures into domain errors. A user who blocked the
// bot or deleted the account yields domain.ErrRecipientBlocked.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && isBlocked(apiErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrRecipientBlocked, err)
	}
	return domain.External(op, err)
}

func isBlocked(e *tgbotapi.Error) bool {
	if e.Code == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "blocked") || strings.Contains(msg, "user is deactivated") || strings.Contains(msg, "chat not found")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
