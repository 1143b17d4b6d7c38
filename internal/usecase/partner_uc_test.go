//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/usecase"
)

func newPartnerUC(e *testEnv) usecase.PartnerUseCase {
	return usecase.NewPartnerUseCase(e.users, e.creators, e.channels, e.partners, e.stats, e.notifier, newTestTranslator(), 0.4, "paywall_bot", newTestLogger())
}

func TestPartnerUseCase_Request(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending request and notify the owner once", func(t *testing.T) {
		e := newTestEnv()
		s := e.seed()
		uc := newPartnerUC(e)

		p, created, err := uc.Request(ctx, model.UserProfile{TelegramID: 300, FirstName: "Ann"}, s.channel.ID)
		if err != nil || !created {
			t.Fatalf("expected a new request, but got: %v (created=%v)", err, created)
		}
		if p.Status != model.PartnerStatusPending {
			t.Fatalf("expected PENDING, but got: %s", p.Status)
		}
		again, created, err := uc.Request(ctx, model.UserProfile{TelegramID: 300, FirstName: "Ann"}, s.channel.ID)
		if err != nil || created || again.ID != p.ID {
			t.Fatalf("expected the existing request, but got: %+v (created=%v, %v)", again, created, err)
		}
		msgs := e.notifier.To(ownerTgID)
		if len(msgs) != 1 || msgs[0].Text != "request Ann Premium" {
			t.Fatalf("unexpected owner notifications: %+v", msgs)
		}
	})

	t.Run("should refuse the channel owner", func(t *testing.T) {
		e := newTestEnv()
		s := e.seed()
		_, _, err := newPartnerUC(e).Request(ctx, model.UserProfile{TelegramID: ownerTgID, FirstName: "Owner"}, s.channel.ID)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, but got: %v", err)
		}
	})

	t.Run("should fail for an unknown channel", func(t *testing.T) {
		e := newTestEnv()
		_, _, err := newPartnerUC(e).Request(ctx, model.UserProfile{TelegramID: 300}, 404)
		if !errors.Is(err, domain.ErrChannelNotFound) {
			t.Fatalf("expected ErrChannelNotFound, but got: %v", err)
		}
	})
}

func TestPartnerUseCase_Decide(t *testing.T) {
	ctx := context.Background()

	setup := func() (*testEnv, seeded, *model.Partner) {
		e := newTestEnv()
		s := e.seed()
		p := e.addPartner(e.addUser(300), s.channel.ID, model.PartnerStatusPending, 0)
		return e, s, p
	}

	t.Run("should approve with the default rate and send the referral link", func(t *testing.T) {
		e, s, p := setup()

		got, err := newPartnerUC(e).Approve(ctx, ownerTgID, p.ID, nil)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Status != model.PartnerStatusApproved || got.CommissionRate != 0.4 {
			t.Fatalf("unexpected partner: %+v", got)
		}
		if stored := e.store.partners[p.ID]; !stored.IsApproved() || stored.DecidedAt == nil {
			t.Fatalf("expected the decision to be stored, but got: %+v", stored)
		}
		want := fmt.Sprintf("approved Premium 40%% https://t.me/paywall_bot?start=c_%d_ref_300", s.channel.ID)
		if msgs := e.notifier.To(300); len(msgs) != 1 || msgs[0].Text != want {
			t.Fatalf("expected %q, but got: %+v", want, msgs)
		}
	})

	t.Run("should use an explicit rate and bound it", func(t *testing.T) {
		e, _, p := setup()
		uc := newPartnerUC(e)

		if _, err := uc.Approve(ctx, ownerTgID, p.ID, ptr(1.2)); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, but got: %v", err)
		}
		got, err := uc.Approve(ctx, ownerTgID, p.ID, ptr(0.25))
		if err != nil || got.CommissionRate != 0.25 {
			t.Fatalf("expected a 25%% partner, but got: %+v (%v)", got, err)
		}
	})

	t.Run("should reject and notify the applicant", func(t *testing.T) {
		e, _, p := setup()

		got, err := newPartnerUC(e).Reject(ctx, ownerTgID, p.ID)
		if err != nil || got.Status != model.PartnerStatusRejected {
			t.Fatalf("expected REJECTED, but got: %+v (%v)", got, err)
		}
		if msgs := e.notifier.To(300); len(msgs) != 1 || msgs[0].Text != "rejected Premium" {
			t.Fatalf("unexpected notifications: %+v", msgs)
		}
	})

	t.Run("should refuse a creator who does not own the channel", func(t *testing.T) {
		e, _, p := setup()
		other := e.addUser(600)
		_, _ = e.creators.EnsureForUser(ctx, nil, other.ID)

		if _, err := newPartnerUC(e).Approve(ctx, 600, p.ID, nil); !errors.Is(err, domain.ErrNotChannelOwner) {
			t.Fatalf("expected ErrNotChannelOwner, but got: %v", err)
		}
		if e.store.partners[p.ID].Status != model.PartnerStatusPending {
			t.Fatalf("expected the request to stay PENDING")
		}
	})

	t.Run("should fail for a user without a creator role", func(t *testing.T) {
		e, _, p := setup()
		if _, err := newPartnerUC(e).Reject(ctx, 777, p.ID); !errors.Is(err, domain.ErrCreatorNotFound) {
			t.Fatalf("expected ErrCreatorNotFound, but got: %v", err)
		}
	})
}

func TestPartnerUseCase_ListPendingAndSummary(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv()
	s := e.seed()
	e.addPartner(e.addUser(300), s.channel.ID, model.PartnerStatusPending, 0)
	e.addPartner(e.addUser(301), s.channel.ID, model.PartnerStatusApproved, 0.4)
	uc := newPartnerUC(e)

	t.Run("should list pending requests only", func(t *testing.T) {
		list, err := uc.ListPending(ctx, ownerTgID)
		if err != nil || len(list) != 1 || list[0].User.TelegramID != 300 {
			t.Fatalf("unexpected pending list: %+v (%v)", list, err)
		}
	})

	t.Run("should summarize from the start of the day", func(t *testing.T) {
		var gotUser int64
		var gotDay time.Time
		e.stats.PartnerSummaryFunc = func(ctx context.Context, userID int64, dayStart time.Time) (*model.PartnerSummary, error) {
			gotUser, gotDay = userID, dayStart
			return &model.PartnerSummary{Earnings: 18000, Conversions: 1}, nil
		}
		sum, err := uc.Summary(ctx, 301)
		if err != nil || sum.Earnings != 18000 {
			t.Fatalf("unexpected summary: %+v (%v)", sum, err)
		}
		if gotUser == 0 || gotDay.Hour() != 0 || gotDay.Minute() != 0 || gotDay.After(time.Now()) {
			t.Fatalf("unexpected query: user=%d day=%v", gotUser, gotDay)
		}
	})
}
