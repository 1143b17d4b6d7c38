//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"telegram-channel-paywall/internal/domain/model"
)

type fixture struct {
	owner   *model.User
	creator *model.Creator
	channel *model.Channel
	plan    *model.SubscriptionPlan
	buyer   *model.User
}

// seed creates an owner with one channel and one 30-day plan, and a buyer.
func seed(t *testing.T) *fixture {
	t.Helper()
	cleanup(t)
	ctx := context.Background()

	owner, err := NewUserRepo(testPool).Upsert(ctx, nil, model.UserProfile{TelegramID: 1001, Username: "owner"})
	if err != nil {
		t.Fatalf("failed to save owner: %v", err)
	}
	creator, err := NewCreatorRepo(testPool).EnsureForUser(ctx, nil, owner.ID)
	if err != nil {
		t.Fatalf("failed to save creator: %v", err)
	}
	ch, _ := model.NewChannel(creator.ID, -100123, "Premium Channel")
	if err := NewChannelRepo(testPool).Create(ctx, nil, ch); err != nil {
		t.Fatalf("failed to save channel: %v", err)
	}
	plan, _ := model.NewSubscriptionPlan(ch.ID, "Monthly", 50000, model.Days(30))
	if err := NewPlanRepo(testPool).Create(ctx, nil, plan); err != nil {
		t.Fatalf("failed to save plan: %v", err)
	}
	buyer, err := NewUserRepo(testPool).Upsert(ctx, nil, model.UserProfile{TelegramID: 2002, FirstName: "Buyer"})
	if err != nil {
		t.Fatalf("failed to save buyer: %v", err)
	}
	return &fixture{owner: owner, creator: creator, channel: ch, plan: plan, buyer: buyer}
}

func (f *fixture) subscription(t *testing.T, paymentID string, status model.SubscriptionStatus, end time.Time) *model.Subscription {
	t.Helper()
	s := &model.Subscription{
		UserID:     f.buyer.ID,
		PlanID:     f.plan.ID,
		PaymentID:  paymentID,
		Status:     status,
		StartDate:  end.Add(-30 * 24 * time.Hour),
		EndDate:    end,
		InviteLink: "https://t.me/+" + paymentID,
		CreatedAt:  time.Now(),
	}
	if err := NewSubscriptionRepo(testPool).Create(context.Background(), nil, s); err != nil {
		t.Fatalf("failed to save subscription: %v", err)
	}
	return s
}
