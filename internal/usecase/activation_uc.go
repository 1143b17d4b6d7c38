package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ ActivationUseCase = (*activationUC)(nil)

// ActivationRequest describes a confirmed payment for a channel plan.
type ActivationRequest struct {
	PlanID    int64
	PaymentID string
	Payer     model.UserProfile
	// ReferrerTelegramID is the partner carried by the deep link, if any.
	ReferrerTelegramID *int64
}

type BundleActivationRequest struct {
	BundlePlanID int64
	PaymentID    string
	Payer        model.UserProfile
}

// ActivationUseCase turns a confirmed payment into channel access. The ledger
// entry is booked separately with LedgerUseCase.
type ActivationUseCase interface {
	Activate(ctx context.Context, req ActivationRequest) (*model.Subscription, error)
	ActivateBundle(ctx context.Context, req BundleActivationRequest) (*model.BundleSubscription, error)
	// JoinFree grants the free membership of a free channel; no ledger entry follows.
	JoinFree(ctx context.Context, payer model.UserProfile, channelID int64) (*model.Subscription, error)
}

type activationUC struct {
	tm         repository.TransactionManager
	users      repository.UserRepository
	plans      repository.PlanRepository
	channels   repository.ChannelRepository
	subs       repository.SubscriptionRepository
	partners   repository.PartnerRepository
	previews   repository.PreviewRepository
	bundles    repository.BundleRepository
	bundleSubs repository.BundleSubscriptionRepository
	chans      adapter.ChannelManager
	log        *zerolog.Logger
}

// ActivationStores groups the repositories the activation protocol touches.
type ActivationStores struct {
	Users      repository.UserRepository
	Plans      repository.PlanRepository
	Channels   repository.ChannelRepository
	Subs       repository.SubscriptionRepository
	Partners   repository.PartnerRepository
	Previews   repository.PreviewRepository
	Bundles    repository.BundleRepository
	BundleSubs repository.BundleSubscriptionRepository
}

func NewActivationUseCase(tm repository.TransactionManager, st ActivationStores, chans adapter.ChannelManager, logger *zerolog.Logger) *activationUC {
	return &activationUC{
		tm:         tm,
		users:      st.Users,
		plans:      st.Plans,
		channels:   st.Channels,
		subs:       st.Subs,
		partners:   st.Partners,
		previews:   st.Previews,
		bundles:    st.Bundles,
		bundleSubs: st.BundleSubs,
		chans:      chans,
		log:        logger,
	}
}

func (u *activationUC) Activate(ctx context.Context, req ActivationRequest) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "ActivationUC.Activate")()

	if req.PaymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := req.Payer.Validate(); err != nil {
		return nil, err
	}

	if existing, err := u.subs.FindByPaymentID(ctx, repository.NoTX, req.PaymentID); err == nil {
		u.log.Info().Str("payment_id", req.PaymentID).Int64("subscription_id", existing.ID).Msg("payment already activated")
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	plan, err := u.plans.FindByID(ctx, repository.NoTX, req.PlanID)
	if err != nil {
		return nil, err
	}
	channel, err := u.channels.FindByID(ctx, repository.NoTX, plan.ChannelID)
	if err != nil {
		return nil, err
	}

	link, err := u.chans.CreateInviteLink(ctx, adapter.InviteLinkRequest{
		ChatID:      channel.TelegramChannelID,
		Name:        fmt.Sprintf("Sub for User %d", req.Payer.TelegramID),
		MemberLimit: 1,
	})
	if err != nil {
		return nil, domain.External("create invite link", err)
	}

	now := time.Now()
	sub := &model.Subscription{
		PlanID:     plan.ID,
		PaymentID:  req.PaymentID,
		Status:     model.SubscriptionStatusActive,
		StartDate:  now,
		EndDate:    plan.Duration.AddTo(now),
		InviteLink: link,
		CreatedAt:  now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		user, err := u.users.Upsert(ctx, tx, req.Payer)
		if err != nil {
			return err
		}
		sub.UserID = user.ID
		sub.PartnerID = u.attribute(ctx, tx, req, channel.ID)

		if err := u.subs.Create(ctx, tx, sub); err != nil {
			return err
		}
		_, err = u.previews.MarkConverted(ctx, tx, user.ID, channel.ID)
		return err
	})
	if err != nil {
		// the link was never handed out
		domain.Done("revoke_unused_link", u.chans.RevokeInviteLink(ctx, channel.TelegramChannelID, link)).Log(u.log)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return u.subs.FindByPaymentID(ctx, repository.NoTX, req.PaymentID)
		}
		u.log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("activation failed")
		return nil, err
	}

	l := u.log.Info().
		Int64("subscription_id", sub.ID).
		Int64("channel_id", channel.ID).
		Int64("tg_id", req.Payer.TelegramID).
		Time("end_date", sub.EndDate)
	if sub.PartnerID != nil {
		l = l.Int64("partner_id", *sub.PartnerID)
	}
	l.Msg("subscription activated")
	return sub, nil
}

// attribute resolves the approved partner of the referrer for channelID. Any
// failure leaves the subscription unattributed.
func (u *activationUC) attribute(ctx context.Context, tx repository.Tx, req ActivationRequest, channelID int64) *int64 {
	if req.ReferrerTelegramID == nil || *req.ReferrerTelegramID == req.Payer.TelegramID {
		return nil
	}
	ref, err := u.users.FindByTelegramID(ctx, tx, *req.ReferrerTelegramID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Err(err).Int64("referrer_tg_id", *req.ReferrerTelegramID).Msg("referrer lookup failed")
		}
		return nil
	}
	p, err := u.partners.FindByUserChannel(ctx, tx, ref.ID, channelID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Err(err).Int64("referrer_id", ref.ID).Msg("partner lookup failed")
		}
		return nil
	}
	if !p.IsApproved() {
		return nil
	}
	id := p.ID
	return &id
}

func (u *activationUC) ActivateBundle(ctx context.Context, req BundleActivationRequest) (*model.BundleSubscription, error) {
	defer logging.TraceDuration(u.log, "ActivationUC.ActivateBundle")()

	if req.PaymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := req.Payer.Validate(); err != nil {
		return nil, err
	}

	if existing, err := u.bundleSubs.FindByPaymentID(ctx, repository.NoTX, req.PaymentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	plan, err := u.bundles.FindPlanByID(ctx, repository.NoTX, req.BundlePlanID)
	if err != nil {
		return nil, err
	}
	bundle, err := u.bundles.FindByID(ctx, repository.NoTX, plan.BundleID)
	if err != nil {
		return nil, err
	}
	if len(bundle.ChannelIDs) == 0 {
		return nil, fmt.Errorf("bundle %d has no channels: %w", bundle.ID, domain.ErrInvalidArgument)
	}

	links := make([]model.BundleInviteLink, 0, len(bundle.ChannelIDs))
	var lastErr error
	for _, chID := range bundle.ChannelIDs {
		bl := model.BundleInviteLink{ChannelID: chID}
		ch, err := u.channels.FindByID(ctx, repository.NoTX, chID)
		if err != nil {
			bl.Error = err.Error()
			lastErr = err
			links = append(links, bl)
			continue
		}
		bl.TelegramChannelID = ch.TelegramChannelID
		bl.Title = ch.Title
		link, err := u.chans.CreateInviteLink(ctx, adapter.InviteLinkRequest{
			ChatID:      ch.TelegramChannelID,
			Name:        fmt.Sprintf("Bundle for User %d", req.Payer.TelegramID),
			MemberLimit: 1,
		})
		if err != nil {
			bl.Error = err.Error()
			lastErr = err
			u.log.Warn().Err(err).Int64("channel_id", chID).Int64("bundle_id", bundle.ID).Msg("bundle invite link failed")
		} else {
			bl.InviteLink = link
		}
		links = append(links, bl)
	}

	now := time.Now()
	bs := &model.BundleSubscription{
		BundlePlanID: plan.ID,
		PaymentID:    req.PaymentID,
		Status:       model.SubscriptionStatusActive,
		StartDate:    now,
		EndDate:      plan.Duration.AddTo(now),
		Links:        links,
		CreatedAt:    now,
	}
	if bs.Failed() == len(links) {
		return nil, domain.External("create bundle invite links", lastErr)
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		user, err := u.users.Upsert(ctx, tx, req.Payer)
		if err != nil {
			return err
		}
		bs.UserID = user.ID
		if err := u.bundleSubs.Create(ctx, tx, bs); err != nil {
			return err
		}
		for _, l := range links {
			if !l.OK() {
				continue
			}
			if _, err := u.previews.MarkConverted(ctx, tx, user.ID, l.ChannelID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, l := range links {
			if l.OK() {
				domain.Done("revoke_unused_link", u.chans.RevokeInviteLink(ctx, l.TelegramChannelID, l.InviteLink)).Log(u.log)
			}
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			return u.bundleSubs.FindByPaymentID(ctx, repository.NoTX, req.PaymentID)
		}
		return nil, err
	}

	u.log.Info().
		Int64("bundle_subscription_id", bs.ID).
		Int64("bundle_id", bundle.ID).
		Int("channels", len(links)).
		Int("failed", bs.Failed()).
		Msg("bundle subscription activated")
	return bs, nil
}

func (u *activationUC) JoinFree(ctx context.Context, payer model.UserProfile, channelID int64) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "ActivationUC.JoinFree")()

	ch, err := u.channels.FindByID(ctx, repository.NoTX, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.IsFree || ch.FreePlanID == nil {
		return nil, fmt.Errorf("channel %d is not free: %w", ch.ID, domain.ErrInvalidArgument)
	}

	now := time.Now()
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, payer.TelegramID)
	switch {
	case err == nil:
		active, err := u.subs.HasActive(ctx, repository.NoTX, user.ID, ch.ID, now)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, domain.ErrAlreadySubscribed
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	return u.Activate(ctx, ActivationRequest{
		PlanID:    *ch.FreePlanID,
		PaymentID: fmt.Sprintf("free:%d:%d:%d", ch.ID, payer.TelegramID, now.UnixNano()),
		Payer:     payer,
	})
}
