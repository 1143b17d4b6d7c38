//go:build !integration

package telegram

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-channel-paywall/internal/application"
	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/usecase"
)

func premiumOffer(ctx context.Context, channelID int64) (*usecase.ChannelOffer, error) {
	if channelID != 5 {
		return nil, domain.ErrChannelNotFound
	}
	return &usecase.ChannelOffer{
		Channel: &model.Channel{ID: 5, Title: "Premium", PreviewEnabled: true, PreviewDurationMin: 5},
		Plans:   []*model.SubscriptionPlan{{ID: 11, Name: "Monthly", Price: 50000, Duration: model.Days(30)}},
	}, nil
}

func TestIsAdmin(t *testing.T) {
	e := newBotEnv(t, 1111, 2222)
	if !e.bot.isAdmin(1111) {
		t.Fatalf("expected 1111 to be admin")
	}
	if e.bot.isAdmin(3333) {
		t.Fatalf("expected 3333 to NOT be admin")
	}
}

func TestBot_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("should store the referrer and show the channel offer", func(t *testing.T) {
		e := newBotEnv(t)
		e.creators.ChannelOfferFunc = premiumOffer

		require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/start c_5_ref_300")))

		st := e.state[200]
		require.NotNil(t, st)
		assert.Equal(t, "300", st.Data[repository.StateReferrerID])
		assert.Equal(t, []string{"en:channel.offer{title=Premium}"}, e.api.texts())
		assert.Equal(t, []string{"plan:11", "preview:5", "partner:apply:5"}, e.api.lastButtons())
		assert.Len(t, e.limiter.keys, 1)
	})

	t.Run("should ignore a self referral", func(t *testing.T) {
		e := newBotEnv(t)
		require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/start ref_200")))
		assert.Empty(t, e.state)
		assert.Equal(t, []string{"en:start.welcome"}, e.api.texts())
	})

	t.Run("should report an unknown channel", func(t *testing.T) {
		e := newBotEnv(t)
		e.creators.ChannelOfferFunc = premiumOffer
		require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/start c_9")))
		assert.Equal(t, []string{"en:error.not_found"}, e.api.texts())
	})
}

func TestBot_RateLimit(t *testing.T) {
	e := newBotEnv(t)
	e.limiter.allow = false
	e.creators.ChannelOfferFunc = func(ctx context.Context, channelID int64) (*usecase.ChannelOffer, error) {
		t.Fatal("expected the handler not to run")
		return nil, nil
	}

	require.NoError(t, e.bot.HandleUpdate(context.Background(), callbackUpdate(200, "channel:5")))
	assert.Equal(t, []string{"en:error.rate_limited"}, e.api.texts())
}

func TestBot_AdminOnly(t *testing.T) {
	ctx := context.Background()
	e := newBotEnv(t, 900)
	var gotRate *float64
	e.creators.SetCommissionFunc = func(ctx context.Context, channelID int64, rate *float64) (*model.Channel, error) {
		gotRate = rate
		return &model.Channel{ID: channelID, Title: "Premium", CommissionRate: rate}, nil
	}

	require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/commission 5 0.1")))
	assert.Nil(t, gotRate)

	require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(900, "/commission 5 10%")))
	require.NotNil(t, gotRate)
	assert.InDelta(t, 0.1, *gotRate, 1e-9)

	assert.Equal(t, []string{
		"en:error.unauthorized",
		"en:commission.updated{channel=Premium,rate=10%}",
	}, e.api.texts())
}

func TestBot_Checkout(t *testing.T) {
	ctx := context.Background()

	t.Run("should open a payment with pay and paid buttons", func(t *testing.T) {
		e := newBotEnv(t)
		e.checkout.OpenFunc = func(ctx context.Context, tgID int64, kind usecase.QuoteKind, planID int64) (*usecase.Checkout, error) {
			assert.Equal(t, usecase.QuotePlan, kind)
			assert.Equal(t, int64(11), planID)
			return &usecase.Checkout{
				Quote:      usecase.Quote{Kind: kind, PlanID: planID, Name: "Monthly", Title: "Premium", Price: 50000},
				PaymentID:  "cheque-1",
				PaymentURL: "https://pay.example/cheque-1",
			}, nil
		}

		require.NoError(t, e.bot.HandleUpdate(ctx, callbackUpdate(200, "plan:11")))
		assert.Equal(t, []string{"en:payment.open{amount=50000,name=Premium - Monthly}"}, e.api.texts())
		assert.Equal(t, []string{"https://pay.example/cheque-1", "paid"}, e.api.lastButtons())
	})

	t.Run("should send the invite link once paid", func(t *testing.T) {
		e := newBotEnv(t)
		e.checkout.CompleteFunc = func(ctx context.Context, payer model.UserProfile) (*application.Completion, error) {
			assert.Equal(t, int64(200), payer.TelegramID)
			return &application.Completion{
				Kind:         usecase.QuotePlan,
				Title:        "Premium",
				Subscription: &model.Subscription{ID: 1, InviteLink: "https://t.me/+abc"},
			}, nil
		}

		require.NoError(t, e.bot.HandleUpdate(ctx, callbackUpdate(200, "paid")))
		assert.Equal(t, []string{"en:payment.confirmed{channel=Premium,link=https://t.me/+abc}"}, e.api.texts())
	})

	t.Run("should list bundle links and flag failures", func(t *testing.T) {
		e := newBotEnv(t)
		e.checkout.CompleteFunc = func(ctx context.Context, payer model.UserProfile) (*application.Completion, error) {
			return &application.Completion{
				Kind:       usecase.QuoteBundlePlan,
				Title:      "All access",
				FolderLink: "https://t.me/addlist/abc",
				Bundle: &model.BundleSubscription{ID: 2, Links: []model.BundleInviteLink{
					{ChannelID: 5, Title: "Premium", InviteLink: "https://t.me/+a"},
					{ChannelID: 6, Title: "Extra", Error: "bot is not admin"},
				}},
			}, nil
		}

		require.NoError(t, e.bot.HandleUpdate(ctx, callbackUpdate(200, "paid")))
		assert.Equal(t, []string{
			"en:payment.bundle_confirmed{links=Premium: https://t.me/+a}\n\n" +
				"en:bundle.folder{link=https://t.me/addlist/abc}\n\n" +
				"en:bundle.link_failed",
		}, e.api.texts())
	})

	t.Run("should keep waiting for an unconfirmed payment and answer the button", func(t *testing.T) {
		e := newBotEnv(t)
		e.checkout.CompleteFunc = func(ctx context.Context, payer model.UserProfile) (*application.Completion, error) {
			return nil, domain.ErrPaymentNotConfirmed
		}

		require.NoError(t, e.bot.HandleUpdate(ctx, callbackUpdate(200, "paid")))
		assert.Equal(t, []string{"en:payment.not_confirmed"}, e.api.texts())

		var answered bool
		for _, r := range e.api.requests {
			if cb, ok := r.(tgbotapi.CallbackConfig); ok && cb.CallbackQueryID == "cb-1" {
				answered = true
			}
		}
		assert.True(t, answered, "expected the callback to be answered")
	})
}

func TestBot_Lang(t *testing.T) {
	ctx := context.Background()
	e := newBotEnv(t)

	require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/lang de")))
	require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/lang RU")))
	require.NoError(t, e.bot.HandleUpdate(ctx, commandUpdate(200, "/help")))

	assert.Equal(t, []string{"en:lang.unknown", "ru:lang.changed", "ru:help.text"}, e.api.texts())
	u, err := e.users.FindByTelegramID(ctx, nil, 200)
	require.NoError(t, err)
	assert.Equal(t, "ru", u.Language)
}

func TestBot_IgnoresGroupsAndPlainText(t *testing.T) {
	ctx := context.Background()
	e := newBotEnv(t)

	group := commandUpdate(200, "/help")
	group.Message.Chat = &tgbotapi.Chat{ID: -300, Type: "group"}
	require.NoError(t, e.bot.HandleUpdate(ctx, group))

	plain := commandUpdate(200, "hello")
	plain.Message.Entities = nil
	require.NoError(t, e.bot.HandleUpdate(ctx, plain))

	assert.Empty(t, e.api.texts())
	assert.Error(t, e.bot.HandleUpdate(ctx, callbackUpdate(200, "nope")))
}
