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

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PreviewUseCase = (*previewUC)(nil)

// PreviewReport summarizes one preview expiration pass.
type PreviewReport struct {
	Checked   int
	Expired   int
	Converted int
	Errors    int
}

// PreviewUseCase grants short free looks into paid channels.
type PreviewUseCase interface {
	// StartPreview returns the running preview of the pair when there is one.
	// It fails with ErrPreviewDisabled, ErrAlreadySubscribed or a *domain.CooldownError.
	StartPreview(ctx context.Context, payer model.UserProfile, channelID int64) (*model.PreviewAccess, error)
	EnforcePreviewExpirations(ctx context.Context, now time.Time) (PreviewReport, error)
}

type previewUC struct {
	users    repository.UserRepository
	channels repository.ChannelRepository
	subs     repository.SubscriptionRepository
	previews repository.PreviewRepository
	chans    adapter.ChannelManager
	notifier adapter.Notifier
	tr       adapter.Translator
	log      *zerolog.Logger
}

func NewPreviewUseCase(
	users repository.UserRepository,
	channels repository.ChannelRepository,
	subs repository.SubscriptionRepository,
	previews repository.PreviewRepository,
	chans adapter.ChannelManager,
	notifier adapter.Notifier,
	tr adapter.Translator,
	logger *zerolog.Logger,
) *previewUC {
	return &previewUC{
		users:    users,
		channels: channels,
		subs:     subs,
		previews: previews,
		chans:    chans,
		notifier: notifier,
		tr:       tr,
		log:      logger,
	}
}

func (u *previewUC) StartPreview(ctx context.Context, payer model.UserProfile, channelID int64) (*model.PreviewAccess, error) {
	defer logging.TraceDuration(u.log, "PreviewUC.StartPreview")()

	if err := payer.Validate(); err != nil {
		return nil, err
	}
	channel, err := u.channels.FindByID(ctx, repository.NoTX, channelID)
	if err != nil {
		return nil, err
	}
	minutes := channel.PreviewMinutes()
	if minutes == 0 {
		return nil, domain.ErrPreviewDisabled
	}

	user, err := u.users.Upsert(ctx, repository.NoTX, payer)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	active, err := u.subs.HasActive(ctx, repository.NoTX, user.ID, channel.ID, now)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrAlreadySubscribed
	}

	if running, err := u.previews.FindActive(ctx, repository.NoTX, user.ID, channel.ID, now); err == nil {
		return running, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	latest, err := u.previews.FindLatest(ctx, repository.NoTX, user.ID, channel.ID)
	switch {
	case err == nil:
		if days := latest.CooldownRemaining(now); days > 0 {
			return nil, &domain.CooldownError{RemainingDays: days}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	end := now.Add(time.Duration(minutes) * time.Minute)
	link, err := u.chans.CreateInviteLink(ctx, adapter.InviteLinkRequest{
		ChatID:      channel.TelegramChannelID,
		Name:        fmt.Sprintf("Preview for User %d", payer.TelegramID),
		MemberLimit: 1,
		ExpireAt:    &end,
	})
	if err != nil {
		return nil, domain.External("create preview link", err)
	}

	p := &model.PreviewAccess{
		UserID:     user.ID,
		ChannelID:  channel.ID,
		Status:     model.PreviewStatusActive,
		StartDate:  now,
		EndDate:    end,
		InviteLink: link,
		CreatedAt:  now,
	}
	if err := u.previews.Create(ctx, repository.NoTX, p); err != nil {
		domain.Done("revoke_unused_link", u.chans.RevokeInviteLink(ctx, channel.TelegramChannelID, link)).Log(u.log)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return u.previews.FindActive(ctx, repository.NoTX, user.ID, channel.ID, now)
		}
		return nil, err
	}

	u.log.Info().Int64("preview_id", p.ID).Int64("channel_id", channel.ID).Int("minutes", minutes).Msg("preview started")
	return p, nil
}

func (u *previewUC) EnforcePreviewExpirations(ctx context.Context, now time.Time) (PreviewReport, error) {
	defer logging.TraceDuration(u.log, "PreviewUC.EnforcePreviewExpirations")()

	var rep PreviewReport
	items, err := u.previews.FindExpiredActive(ctx, repository.NoTX, now)
	if err != nil {
		return rep, err
	}
	rep.Checked = len(items)

	for _, p := range items {
		converted, err := u.expire(ctx, p, now)
		if err != nil {
			rep.Errors++
			u.log.Error().Err(err).Int64("preview_id", p.ID).Msg("preview expiration failed")
			continue
		}
		if converted {
			rep.Converted++
		} else {
			rep.Expired++
		}
	}
	return rep, nil
}

// expire ends one preview. A paying user keeps the membership and the
// preview is recorded as converted.
func (u *previewUC) expire(ctx context.Context, p *model.PreviewDetail, now time.Time) (converted bool, err error) {
	paid, err := u.subs.HasActive(ctx, repository.NoTX, p.UserID, p.ChannelID, now)
	if err != nil {
		return false, err
	}
	if paid {
		if _, err := u.previews.UpdateStatus(ctx, repository.NoTX, p.ID, model.PreviewStatusActive, model.PreviewStatusConverted); err != nil {
			return false, err
		}
		return true, nil
	}

	if p.InviteLink != "" {
		domain.Done("revoke_preview_link", u.chans.RevokeInviteLink(ctx, p.Channel.TelegramChannelID, p.InviteLink)).Log(u.log)
	}
	if err := u.chans.RemoveMember(ctx, p.Channel.TelegramChannelID, p.User.TelegramID); err != nil {
		return false, domain.External("remove preview member", err)
	}
	ok, err := u.previews.UpdateStatus(ctx, repository.NoTX, p.ID, model.PreviewStatusActive, model.PreviewStatusExpired)
	if err != nil {
		return false, err
	}
	if ok {
		notifyUser(ctx, u.notifier, u.tr, &p.User, "preview.expired", map[string]any{"channel": p.Channel.Title}).Log(u.log)
	}
	return false, nil
}
