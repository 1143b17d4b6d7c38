package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/application"
	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/logging"
	"telegram-channel-paywall/internal/infra/metrics"
	red "telegram-channel-paywall/internal/infra/redis"
	"telegram-channel-paywall/internal/infra/worker"
	"telegram-channel-paywall/internal/usecase"
)

const (
	commandLimit  = 20
	callbackLimit = 30
	limitWindow   = time.Minute
)

// Translator is the i18n surface the bot needs.
type Translator interface {
	adapter.Translator
	Has(lang string) bool
}

// Checkout is satisfied by application.CheckoutFacade.
type Checkout interface {
	Open(ctx context.Context, tgID int64, kind usecase.QuoteKind, planID int64) (*usecase.Checkout, error)
	Complete(ctx context.Context, payer model.UserProfile) (*application.Completion, error)
}

// Deps are the use cases behind the bot commands.
type Deps struct {
	Users      repository.UserRepository
	State      repository.StateRepository
	Creators   usecase.CreatorUseCase
	Partners   usecase.PartnerUseCase
	Previews   usecase.PreviewUseCase
	Activation usecase.ActivationUseCase
	Payouts    usecase.PayoutUseCase
	Stats      usecase.StatsUseCase
	Checkout   Checkout
	// Limiter may be nil, which disables per-user rate limiting.
	Limiter    usecase.RateLimiter
	Translator Translator
}

// Bot polls updates and routes commands and button presses to the use cases.
type Bot struct {
	client   *Client
	deps     Deps
	adminIDs map[int64]struct{}
	workers  int
	log      *zerolog.Logger
}

func NewBot(client *Client, deps Deps, adminIDs []int64, workers int, logger *zerolog.Logger) (*Bot, error) {
	if client == nil {
		return nil, errors.New("telegram client is nil")
	}
	if deps.Users == nil || deps.Translator == nil || deps.Checkout == nil {
		return nil, errors.New("bot dependencies are incomplete")
	}
	if workers <= 0 {
		workers = 5
	}
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	l := logger.With().Str("component", "bot").Logger()
	return &Bot{client: client, deps: deps, adminIDs: admins, workers: workers, log: &l}, nil
}

// StartPolling blocks until ctx is cancelled.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.client.API().GetUpdatesChan(u)
	defer b.client.API().StopReceivingUpdates()

	pool := worker.NewPool(b.workers, b.log)
	pool.Start(ctx)
	defer pool.Stop()

	b.log.Info().Int("workers", b.workers).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if err := pool.Submit(ctx, updateKey(up), func(ctx context.Context) error { return b.HandleUpdate(ctx, up) }); err != nil {
				b.log.Warn().Err(err).Int("update_id", up.UpdateID).Msg("update dropped")
			}
		}
	}
}

// updateKey orders updates per sender.
func updateKey(up tgbotapi.Update) int64 {
	switch {
	case up.CallbackQuery != nil && up.CallbackQuery.From != nil:
		return up.CallbackQuery.From.ID
	case up.Message != nil && up.Message.From != nil:
		return up.Message.From.ID
	}
	return int64(up.UpdateID)
}

// request is one incoming command or button press.
type request struct {
	user    *model.User
	profile model.UserProfile
	chatID  int64
	// args holds the command arguments or the callback data.
	args string
}

func (r *request) lang() string { return r.user.Lang() }

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, up tgbotapi.Update) error {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	switch {
	case up.CallbackQuery != nil:
		return b.handleQuery(ctx, up.CallbackQuery)
	case up.Message != nil:
		return b.handleMessage(ctx, up.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() || !msg.IsCommand() {
		return nil
	}
	command := msg.Command()
	metrics.IncTelegramUpdate("command", command)

	req, err := b.newRequest(ctx, msg.From, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		return err
	}
	ctx = logging.WithTgID(ctx, req.profile.TelegramID)

	if !b.allow(ctx, req.profile.TelegramID, "/"+command, commandLimit) {
		return b.reply(ctx, req, "error.rate_limited", nil)
	}

	handler, ok := b.commandRoutes()[command]
	if !ok {
		return b.reply(ctx, req, "help.text", nil)
	}
	return handler(ctx, req)
}

func (b *Bot) handleQuery(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return errors.New("invalid callback query")
	}
	// stop the client spinner
	defer func() { _, _ = b.client.API().Request(tgbotapi.NewCallback(q.ID, "")) }()

	chatID := q.From.ID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	data := strings.TrimSpace(q.Data)

	req, err := b.newRequest(ctx, q.From, chatID, data)
	if err != nil {
		return err
	}
	ctx = logging.WithTgID(ctx, req.profile.TelegramID)

	if fn, ok := b.cbRoutes()[data]; ok {
		metrics.IncTelegramUpdate("callback", data)
		if !b.allow(ctx, req.profile.TelegramID, "cb:"+data, callbackLimit) {
			return b.reply(ctx, req, "error.rate_limited", nil)
		}
		return fn(ctx, req)
	}
	for _, pr := range b.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			metrics.IncTelegramUpdate("callback", pr.Prefix)
			if !b.allow(ctx, req.profile.TelegramID, "cb:"+pr.Prefix, callbackLimit) {
				return b.reply(ctx, req, "error.rate_limited", nil)
			}
			req.args = strings.TrimPrefix(data, pr.Prefix)
			return pr.Fn(ctx, req)
		}
	}
	metrics.IncTelegramUpdate("callback", "unknown")
	return fmt.Errorf("unknown callback data %q", data)
}

// newRequest refreshes the sender's profile and loads the stored user.
func (b *Bot) newRequest(ctx context.Context, from *tgbotapi.User, chatID int64, args string) (*request, error) {
	p := model.UserProfile{
		TelegramID: from.ID,
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	}
	u, err := b.deps.Users.Upsert(ctx, repository.NoTX, p)
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", from.ID, err)
	}
	return &request{user: u, profile: p, chatID: chatID, args: args}, nil
}

// allow applies the per-user limit. Limiter failures let the request through.
func (b *Bot) allow(ctx context.Context, tgID int64, action string, limit int) bool {
	if b.deps.Limiter == nil {
		return true
	}
	ok, err := b.deps.Limiter.Allow(ctx, red.ActionKey(tgID, action), limit, limitWindow)
	if err != nil {
		b.log.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimited(action)
	}
	return ok
}

func (b *Bot) isAdmin(tgID int64) bool {
	_, ok := b.adminIDs[tgID]
	return ok
}

func (b *Bot) t(req *request, key string, params map[string]any) string {
	return b.deps.Translator.T(req.lang(), key, params)
}

func (b *Bot) reply(ctx context.Context, req *request, key string, params map[string]any) error {
	return b.client.SendMessage(ctx, req.chatID, b.t(req, key, params))
}

func (b *Bot) replyButtons(ctx context.Context, req *request, text string, rows [][]adapter.InlineButton) error {
	return b.client.SendButtons(ctx, req.chatID, text, rows)
}

func (b *Bot) usage(ctx context.Context, req *request, usage string) error {
	return b.reply(ctx, req, "error.usage", map[string]any{"usage": usage})
}

// replyError renders a use-case failure. Unexpected errors are logged and
// answered with a generic message.
func (b *Bot) replyError(ctx context.Context, req *request, err error) error {
	var cooldown *domain.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return b.reply(ctx, req, "preview.cooldown", map[string]any{"days": cooldown.RemainingDays})
	case errors.Is(err, application.ErrNoPendingCheckout):
		return b.reply(ctx, req, "payment.no_pending", nil)
	case errors.Is(err, domain.ErrRateLimited):
		return b.reply(ctx, req, "error.rate_limited", nil)
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		return b.reply(ctx, req, "payment.not_confirmed", nil)
	case errors.Is(err, domain.ErrCreatorNotFound):
		return b.reply(ctx, req, "creator.not_creator", nil)
	case errors.Is(err, domain.ErrNotChannelOwner):
		return b.reply(ctx, req, "creator.not_owner", nil)
	case errors.Is(err, domain.ErrBotNotAdmin):
		return b.reply(ctx, req, "creator.not_admin", nil)
	case errors.Is(err, domain.ErrChannelTaken):
		return b.reply(ctx, req, "creator.channel_taken", nil)
	case errors.Is(err, domain.ErrAlreadySubscribed):
		return b.reply(ctx, req, "subscription.already_active", nil)
	case errors.Is(err, domain.ErrPreviewDisabled):
		return b.reply(ctx, req, "preview.disabled", nil)
	case errors.Is(err, domain.ErrInsufficientBalance):
		return b.reply(ctx, req, "payout.insufficient", nil)
	case errors.Is(err, domain.ErrBelowMinWithdrawal):
		return b.reply(ctx, req, "payout.min_withdrawal", map[string]any{"min": model.MinWithdrawal})
	case errors.Is(err, domain.ErrInvalidCard):
		return b.reply(ctx, req, "payout.invalid_card", nil)
	case errors.Is(err, domain.ErrInvalidAmount):
		return b.reply(ctx, req, "payout.invalid_amount", nil)
	case errors.Is(err, domain.ErrPriceTooLow):
		return b.reply(ctx, req, "payment.price_too_low", nil)
	case errors.Is(err, domain.ErrNotFound):
		return b.reply(ctx, req, "error.not_found", nil)
	case errors.Is(err, domain.ErrValidation):
		return b.reply(ctx, req, "error.invalid", nil)
	}
	logging.With(ctx, b.log).Error().Err(err).Str("args", req.args).Msg("request failed")
	return b.reply(ctx, req, "error.generic", nil)
}
