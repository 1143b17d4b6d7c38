//go:build !integration

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-channel-paywall/internal/application"
	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- fake Bot API ----

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	admins   map[int64][]int64

	SendFunc    func(c tgbotapi.Chattable) error
	RequestFunc func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.mu.Unlock()
	if f.SendFunc != nil {
		return tgbotapi.Message{}, f.SendFunc(c)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	if f.RequestFunc != nil {
		return f.RequestFunc(c)
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(`true`)}, nil
}

func (f *fakeAPI) GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	ids, ok := f.admins[cfg.ChatID]
	if !ok {
		return nil, &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}
	members := make([]tgbotapi.ChatMember, 0, len(ids))
	for _, id := range ids {
		members = append(members, tgbotapi.ChatMember{User: &tgbotapi.User{ID: id}, Status: "administrator"})
	}
	return members, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

// texts returns the text of every sent message in order.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

// lastButtons returns the callback data and URLs of the last keyboard sent.
func (f *fakeAPI) lastButtons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		m, ok := f.sent[i].(tgbotapi.MessageConfig)
		if !ok {
			continue
		}
		kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			continue
		}
		var out []string
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				switch {
				case btn.CallbackData != nil:
					out = append(out, *btn.CallbackData)
				case btn.URL != nil:
					out = append(out, *btn.URL)
				}
			}
		}
		return out
	}
	return nil
}

// ---- translator that renders lang:key ----

type keyTranslator struct{}

func (keyTranslator) T(lang, key string, params map[string]any) string {
	if len(params) == 0 {
		return lang + ":" + key
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return lang + ":" + key + "{" + strings.Join(parts, ",") + "}"
}

func (keyTranslator) Has(lang string) bool {
	return lang == "en" || lang == "ru" || lang == "uz"
}

// ---- stores ----

type memUsers struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[int64]*model.User{}} }

func (m *memUsers) Upsert(ctx context.Context, tx repository.Tx, p model.UserProfile) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[p.TelegramID]
	if !ok {
		u = &model.User{ID: int64(len(m.users) + 1), TelegramID: p.TelegramID}
		m.users[p.TelegramID] = u
	}
	u.Username, u.FirstName, u.LastName = p.Username, p.FirstName, p.LastName
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[tgID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) SetLanguage(ctx context.Context, tx repository.Tx, tgID int64, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[tgID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Language = lang
	return nil
}

type memState map[int64]*repository.ConversationState

func (m memState) SetState(ctx context.Context, tgID int64, st *repository.ConversationState) error {
	m[tgID] = st
	return nil
}

func (m memState) GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error) {
	return m[tgID], nil
}

func (m memState) ClearState(ctx context.Context, tgID int64) error {
	delete(m, tgID)
	return nil
}

// ---- use cases ----

// stubCreators overrides the calls a test needs; the embedded interface
// panics on anything else.
type stubCreators struct {
	usecase.CreatorUseCase
	ChannelOfferFunc  func(ctx context.Context, channelID int64) (*usecase.ChannelOffer, error)
	SetCommissionFunc func(ctx context.Context, channelID int64, rate *float64) (*model.Channel, error)
}

func (s *stubCreators) ChannelOffer(ctx context.Context, channelID int64) (*usecase.ChannelOffer, error) {
	return s.ChannelOfferFunc(ctx, channelID)
}

func (s *stubCreators) SetCommission(ctx context.Context, channelID int64, rate *float64) (*model.Channel, error) {
	return s.SetCommissionFunc(ctx, channelID, rate)
}

type stubCheckout struct {
	OpenFunc     func(ctx context.Context, tgID int64, kind usecase.QuoteKind, planID int64) (*usecase.Checkout, error)
	CompleteFunc func(ctx context.Context, payer model.UserProfile) (*application.Completion, error)
}

func (s *stubCheckout) Open(ctx context.Context, tgID int64, kind usecase.QuoteKind, planID int64) (*usecase.Checkout, error) {
	return s.OpenFunc(ctx, tgID, kind, planID)
}

func (s *stubCheckout) Complete(ctx context.Context, payer model.UserProfile) (*application.Completion, error) {
	return s.CompleteFunc(ctx, payer)
}

type stubLimiter struct {
	keys  []string
	allow bool
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, nil
}

// ---- bot harness ----

type botEnv struct {
	api      *fakeAPI
	users    *memUsers
	state    memState
	creators *stubCreators
	checkout *stubCheckout
	limiter  *stubLimiter
	bot      *Bot
}

func newBotEnv(t *testing.T, adminIDs ...int64) *botEnv {
	t.Helper()
	e := &botEnv{
		api:      &fakeAPI{},
		users:    newMemUsers(),
		state:    memState{},
		creators: &stubCreators{},
		checkout: &stubCheckout{},
		limiter:  &stubLimiter{allow: true},
	}
	client := NewClientWithAPI(e.api, adapter.BotIdentity{ID: 1, Username: "paywall_bot"}, 0, newTestLogger())
	bot, err := NewBot(client, Deps{
		Users:      e.users,
		State:      e.state,
		Creators:   e.creators,
		Checkout:   e.checkout,
		Limiter:    e.limiter,
		Translator: keyTranslator{},
	}, adminIDs, 1, newTestLogger())
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	e.bot = bot
	return e
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from, FirstName: "Ann"},
		Chat:     &tgbotapi.Chat{ID: from, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: from, FirstName: "Ann"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: from, Type: "private"}},
		Data:    data,
	}}
}
