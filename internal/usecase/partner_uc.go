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
var _ PartnerUseCase = (*partnerUC)(nil)

// PartnerUseCase runs the referral program: users apply per channel and
// the channel's creator approves or rejects them.
type PartnerUseCase interface {
	// Request applies for partnership; repeated requests return the existing row.
	Request(ctx context.Context, applicant model.UserProfile, channelID int64) (p *model.Partner, created bool, err error)
	ListPending(ctx context.Context, ownerTgID int64) ([]*model.PartnerDetail, error)
	// Approve uses model.DefaultPartnerRate when rate is nil.
	Approve(ctx context.Context, ownerTgID, partnerID int64, rate *float64) (*model.Partner, error)
	Reject(ctx context.Context, ownerTgID, partnerID int64) (*model.Partner, error)
	Summary(ctx context.Context, partnerTgID int64) (*model.PartnerSummary, error)
	// ReferralLink is the deep link a partner shares for channelID.
	ReferralLink(channelID, partnerTgID int64) string
}

type partnerUC struct {
	users       repository.UserRepository
	creators    repository.CreatorRepository
	channels    repository.ChannelRepository
	partners    repository.PartnerRepository
	stats       repository.StatsRepository
	notifier    adapter.Notifier
	tr          adapter.Translator
	defaultRate float64
	botUsername string
	log         *zerolog.Logger
}

func NewPartnerUseCase(
	users repository.UserRepository,
	creators repository.CreatorRepository,
	channels repository.ChannelRepository,
	partners repository.PartnerRepository,
	stats repository.StatsRepository,
	notifier adapter.Notifier,
	tr adapter.Translator,
	defaultRate float64,
	botUsername string,
	logger *zerolog.Logger,
) *partnerUC {
	if defaultRate <= 0 || defaultRate > 1 {
		defaultRate = model.DefaultPartnerRate
	}
	return &partnerUC{
		users:       users,
		creators:    creators,
		channels:    channels,
		partners:    partners,
		stats:       stats,
		notifier:    notifier,
		tr:          tr,
		defaultRate: defaultRate,
		botUsername: botUsername,
		log:         logger,
	}
}

func (u *partnerUC) Request(ctx context.Context, applicant model.UserProfile, channelID int64) (*model.Partner, bool, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.Request")()

	if err := applicant.Validate(); err != nil {
		return nil, false, err
	}
	ch, err := u.channels.FindByID(ctx, repository.NoTX, channelID)
	if err != nil {
		return nil, false, err
	}
	user, err := u.users.Upsert(ctx, repository.NoTX, applicant)
	if err != nil {
		return nil, false, err
	}
	if owner, err := u.creators.FindByID(ctx, repository.NoTX, ch.CreatorID); err == nil && owner.UserID == user.ID {
		// creators already earn the full creator share
		return nil, false, domain.ErrInvalidArgument
	}

	p, created, err := u.partners.Request(ctx, repository.NoTX, user.ID, ch.ID)
	if err != nil {
		return nil, false, err
	}
	if created {
		u.log.Info().Int64("partner_id", p.ID).Int64("channel_id", ch.ID).Msg("partner requested")
		u.notifyOwner(ctx, ch, user)
	}
	return p, created, nil
}

func (u *partnerUC) notifyOwner(ctx context.Context, ch *model.Channel, applicant *model.User) {
	creator, err := u.creators.FindByID(ctx, repository.NoTX, ch.CreatorID)
	if err != nil {
		return
	}
	owner, err := u.users.FindByID(ctx, repository.NoTX, creator.UserID)
	if err != nil {
		return
	}
	notifyUser(ctx, u.notifier, u.tr, owner, "partner.requested", map[string]any{
		"user":    applicant.DisplayName(),
		"channel": ch.Title,
	}).Log(u.log)
}

func (u *partnerUC) ListPending(ctx context.Context, ownerTgID int64) ([]*model.PartnerDetail, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.ListPending")()
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, err
	}
	return u.partners.ListByCreator(ctx, repository.NoTX, creator.ID, model.PartnerStatusPending)
}

func (u *partnerUC) Approve(ctx context.Context, ownerTgID, partnerID int64, rate *float64) (*model.Partner, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.Approve")()

	r := u.defaultRate
	if rate != nil {
		if *rate < 0 || *rate > 1 {
			return nil, domain.ErrInvalidArgument
		}
		r = *rate
	}
	p, ch, err := u.decide(ctx, ownerTgID, partnerID, model.PartnerStatusApproved, r)
	if err != nil {
		return nil, err
	}
	if user, err := u.users.FindByID(ctx, repository.NoTX, p.UserID); err == nil {
		notifyUser(ctx, u.notifier, u.tr, user, "partner.approved", map[string]any{
			"channel": ch.Title,
			"rate":    fmt.Sprintf("%.0f%%", r*100),
			"link":    u.ReferralLink(ch.ID, user.TelegramID),
		}).Log(u.log)
	}
	return p, nil
}

func (u *partnerUC) Reject(ctx context.Context, ownerTgID, partnerID int64) (*model.Partner, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.Reject")()

	p, ch, err := u.decide(ctx, ownerTgID, partnerID, model.PartnerStatusRejected, 0)
	if err != nil {
		return nil, err
	}
	if user, err := u.users.FindByID(ctx, repository.NoTX, p.UserID); err == nil {
		notifyUser(ctx, u.notifier, u.tr, user, "partner.rejected", map[string]any{"channel": ch.Title}).Log(u.log)
	}
	return p, nil
}

// decide checks that the partner belongs to one of the owner's channels and
// records the decision.
func (u *partnerUC) decide(ctx context.Context, ownerTgID, partnerID int64, status model.PartnerStatus, rate float64) (*model.Partner, *model.Channel, error) {
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, nil, err
	}
	p, err := u.partners.FindByID(ctx, repository.NoTX, partnerID)
	if err != nil {
		return nil, nil, err
	}
	ch, err := u.channels.FindByID(ctx, repository.NoTX, p.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	if ch.CreatorID != creator.ID {
		return nil, nil, domain.ErrNotChannelOwner
	}

	now := time.Now()
	if err := u.partners.Decide(ctx, repository.NoTX, p.ID, status, rate, now); err != nil {
		return nil, nil, err
	}
	p.Status = status
	if status == model.PartnerStatusApproved {
		p.CommissionRate = rate
	}
	p.DecidedAt = &now
	u.log.Info().Int64("partner_id", p.ID).Str("status", string(status)).Msg("partner decided")
	return p, ch, nil
}

func (u *partnerUC) Summary(ctx context.Context, partnerTgID int64) (*model.PartnerSummary, error) {
	defer logging.TraceDuration(u.log, "PartnerUC.Summary")()
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, partnerTgID)
	if err != nil {
		return nil, err
	}
	return u.stats.PartnerSummary(ctx, repository.NoTX, user.ID, startOfDay(time.Now()))
}

func (u *partnerUC) ReferralLink(channelID, partnerTgID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=c_%d_ref_%d", u.botUsername, channelID, partnerTgID)
}

func (u *partnerUC) creatorOf(ctx context.Context, tgID int64) (*model.Creator, error) {
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCreatorNotFound
		}
		return nil, err
	}
	return u.creators.FindByUserID(ctx, repository.NoTX, user.ID)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
