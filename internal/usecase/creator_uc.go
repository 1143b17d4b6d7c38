package usecase

import (
	"context"
	"errors"
	"strings"
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
var _ CreatorUseCase = (*creatorUC)(nil)

// ChannelOffer is what a subscriber sees when opening a channel link.
type ChannelOffer struct {
	Channel *model.Channel
	Plans   []*model.SubscriptionPlan
}

type BundleOffer struct {
	Bundle *model.Bundle
	Plans  []*model.BundlePlan
}

// CreatorUseCase manages creators, their channels, plans and bundles.
type CreatorUseCase interface {
	// RegisterChannel registers (or returns) a channel the bot administers.
	RegisterChannel(ctx context.Context, owner model.UserProfile, tgChannelID int64, title string) (*model.Channel, error)
	ListChannels(ctx context.Context, ownerTgID int64) ([]*model.Channel, error)
	CreatePlan(ctx context.Context, ownerTgID, channelID int64, name string, price int64, d model.Duration) (*model.SubscriptionPlan, error)
	SetPlanActive(ctx context.Context, ownerTgID, planID int64, active bool) error
	// SetPreview sets the preview length in minutes; 0 disables previews.
	SetPreview(ctx context.Context, ownerTgID, channelID int64, minutes int) (*model.Channel, error)
	// SetFreeChannel makes planID the free membership of the channel; nil turns it off.
	SetFreeChannel(ctx context.Context, ownerTgID, channelID int64, planID *int64) (*model.Channel, error)
	// SetCommission overrides the platform percent of a channel (admin only).
	SetCommission(ctx context.Context, channelID int64, rate *float64) (*model.Channel, error)

	CreateBundle(ctx context.Context, ownerTgID int64, title string, channelIDs []int64) (*model.Bundle, error)
	SetBundleFolderLink(ctx context.Context, ownerTgID, bundleID int64, link string) error
	CreateBundlePlan(ctx context.Context, ownerTgID, bundleID int64, name string, price int64, d model.Duration) (*model.BundlePlan, error)
	ListBundles(ctx context.Context, ownerTgID int64) ([]*model.Bundle, error)

	ChannelOffer(ctx context.Context, channelID int64) (*ChannelOffer, error)
	BundleOffer(ctx context.Context, bundleID int64) (*BundleOffer, error)
}

type creatorUC struct {
	tm       repository.TransactionManager
	users    repository.UserRepository
	creators repository.CreatorRepository
	channels repository.ChannelRepository
	plans    repository.PlanRepository
	bundles  repository.BundleRepository
	chans    adapter.ChannelManager
	log      *zerolog.Logger
}

func NewCreatorUseCase(
	tm repository.TransactionManager,
	users repository.UserRepository,
	creators repository.CreatorRepository,
	channels repository.ChannelRepository,
	plans repository.PlanRepository,
	bundles repository.BundleRepository,
	chans adapter.ChannelManager,
	logger *zerolog.Logger,
) *creatorUC {
	return &creatorUC{
		tm:       tm,
		users:    users,
		creators: creators,
		channels: channels,
		plans:    plans,
		bundles:  bundles,
		chans:    chans,
		log:      logger,
	}
}

func (u *creatorUC) RegisterChannel(ctx context.Context, owner model.UserProfile, tgChannelID int64, title string) (*model.Channel, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.RegisterChannel")()

	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := u.ensureBotAdmin(ctx, tgChannelID); err != nil {
		return nil, err
	}

	var out *model.Channel
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		user, err := u.users.Upsert(ctx, tx, owner)
		if err != nil {
			return err
		}
		creator, err := u.creators.EnsureForUser(ctx, tx, user.ID)
		if err != nil {
			return err
		}

		existing, err := u.channels.FindByTelegramID(ctx, tx, tgChannelID)
		switch {
		case err == nil:
			if existing.CreatorID != creator.ID {
				return domain.ErrChannelTaken
			}
			out = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		ch, err := model.NewChannel(creator.ID, tgChannelID, title)
		if err != nil {
			return err
		}
		if err := u.channels.Create(ctx, tx, ch); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return domain.ErrChannelTaken
			}
			return err
		}
		out = ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Int64("channel_id", out.ID).Int64("tg_channel_id", tgChannelID).Msg("channel registered")
	return out, nil
}

func (u *creatorUC) ensureBotAdmin(ctx context.Context, tgChannelID int64) error {
	me, err := u.chans.BotIdentity(ctx)
	if err != nil {
		return domain.External("bot identity", err)
	}
	admins, err := u.chans.ListAdministrators(ctx, tgChannelID)
	if err != nil {
		// the bot is not even a member of the channel
		u.log.Warn().Err(err).Int64("tg_channel_id", tgChannelID).Msg("list administrators failed")
		return domain.ErrBotNotAdmin
	}
	for _, id := range admins {
		if id == me.ID {
			return nil
		}
	}
	return domain.ErrBotNotAdmin
}

func (u *creatorUC) ListChannels(ctx context.Context, ownerTgID int64) ([]*model.Channel, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.ListChannels")()
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, err
	}
	return u.channels.ListByCreator(ctx, repository.NoTX, creator.ID)
}

func (u *creatorUC) CreatePlan(ctx context.Context, ownerTgID, channelID int64, name string, price int64, d model.Duration) (*model.SubscriptionPlan, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.CreatePlan")()

	if _, err := u.ownedChannel(ctx, ownerTgID, channelID); err != nil {
		return nil, err
	}
	p, err := model.NewSubscriptionPlan(channelID, name, price, d)
	if err != nil {
		return nil, err
	}
	if err := u.plans.Create(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Int64("plan_id", p.ID).Int64("channel_id", channelID).Int64("price", price).Str("duration", d.String()).Msg("plan created")
	return p, nil
}

func (u *creatorUC) SetPlanActive(ctx context.Context, ownerTgID, planID int64, active bool) error {
	defer logging.TraceDuration(u.log, "CreatorUC.SetPlanActive")()

	p, err := u.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return err
	}
	if _, err := u.ownedChannel(ctx, ownerTgID, p.ChannelID); err != nil {
		return err
	}
	p.IsActive = active
	return u.plans.Update(ctx, repository.NoTX, p)
}

func (u *creatorUC) SetPreview(ctx context.Context, ownerTgID, channelID int64, minutes int) (*model.Channel, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.SetPreview")()

	if minutes < 0 || minutes > model.MaxPreviewMinutes {
		return nil, domain.ErrInvalidArgument
	}
	ch, err := u.ownedChannel(ctx, ownerTgID, channelID)
	if err != nil {
		return nil, err
	}
	ch.PreviewEnabled = minutes > 0
	ch.PreviewDurationMin = minutes
	if err := u.channels.Update(ctx, repository.NoTX, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (u *creatorUC) SetFreeChannel(ctx context.Context, ownerTgID, channelID int64, planID *int64) (*model.Channel, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.SetFreeChannel")()

	ch, err := u.ownedChannel(ctx, ownerTgID, channelID)
	if err != nil {
		return nil, err
	}
	if planID != nil {
		p, err := u.plans.FindByID(ctx, repository.NoTX, *planID)
		if err != nil {
			return nil, err
		}
		if p.ChannelID != ch.ID {
			return nil, domain.ErrInvalidArgument
		}
	}
	ch.IsFree = planID != nil
	ch.FreePlanID = planID
	if err := u.channels.Update(ctx, repository.NoTX, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (u *creatorUC) SetCommission(ctx context.Context, channelID int64, rate *float64) (*model.Channel, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.SetCommission")()

	if rate != nil && (*rate < 0 || *rate > 1) {
		return nil, domain.ErrInvalidArgument
	}
	ch, err := u.channels.FindByID(ctx, repository.NoTX, channelID)
	if err != nil {
		return nil, err
	}
	ch.CommissionRate = rate
	if err := u.channels.Update(ctx, repository.NoTX, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (u *creatorUC) CreateBundle(ctx context.Context, ownerTgID int64, title string, channelIDs []int64) (*model.Bundle, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.CreateBundle")()

	title = strings.TrimSpace(title)
	if title == "" || len(title) > 255 {
		return nil, domain.ErrInvalidArgument
	}
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, err
	}
	for _, id := range channelIDs {
		ch, err := u.channels.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			return nil, err
		}
		if ch.CreatorID != creator.ID {
			return nil, domain.ErrNotChannelOwner
		}
	}

	b := &model.Bundle{CreatorID: creator.ID, Title: title, CreatedAt: time.Now()}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.bundles.Create(ctx, tx, b); err != nil {
			return err
		}
		for _, id := range channelIDs {
			if b.Has(id) {
				continue
			}
			if err := u.bundles.AddChannel(ctx, tx, b.ID, id); err != nil {
				return err
			}
			b.ChannelIDs = append(b.ChannelIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Int64("bundle_id", b.ID).Int("channels", len(b.ChannelIDs)).Msg("bundle created")
	return b, nil
}

func (u *creatorUC) SetBundleFolderLink(ctx context.Context, ownerTgID, bundleID int64, link string) error {
	defer logging.TraceDuration(u.log, "CreatorUC.SetBundleFolderLink")()

	link = strings.TrimSpace(link)
	if link != "" && !strings.HasPrefix(link, "https://t.me/addlist/") {
		return domain.ErrInvalidArgument
	}
	if _, err := u.ownedBundle(ctx, ownerTgID, bundleID); err != nil {
		return err
	}
	return u.bundles.SetFolderLink(ctx, repository.NoTX, bundleID, link)
}

func (u *creatorUC) CreateBundlePlan(ctx context.Context, ownerTgID, bundleID int64, name string, price int64, d model.Duration) (*model.BundlePlan, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.CreateBundlePlan")()

	if _, err := u.ownedBundle(ctx, ownerTgID, bundleID); err != nil {
		return nil, err
	}
	p, err := model.NewBundlePlan(bundleID, name, price, d)
	if err != nil {
		return nil, err
	}
	if err := u.bundles.CreatePlan(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (u *creatorUC) ListBundles(ctx context.Context, ownerTgID int64) ([]*model.Bundle, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.ListBundles")()
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, err
	}
	return u.bundles.ListByCreator(ctx, repository.NoTX, creator.ID)
}

func (u *creatorUC) ChannelOffer(ctx context.Context, channelID int64) (*ChannelOffer, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.ChannelOffer")()
	ch, err := u.channels.FindByID(ctx, repository.NoTX, channelID)
	if err != nil {
		return nil, err
	}
	plans, err := u.plans.ListByChannel(ctx, repository.NoTX, channelID, true)
	if err != nil {
		return nil, err
	}
	return &ChannelOffer{Channel: ch, Plans: plans}, nil
}

func (u *creatorUC) BundleOffer(ctx context.Context, bundleID int64) (*BundleOffer, error) {
	defer logging.TraceDuration(u.log, "CreatorUC.BundleOffer")()
	b, err := u.bundles.FindByID(ctx, repository.NoTX, bundleID)
	if err != nil {
		return nil, err
	}
	plans, err := u.bundles.ListPlans(ctx, repository.NoTX, bundleID, true)
	if err != nil {
		return nil, err
	}
	return &BundleOffer{Bundle: b, Plans: plans}, nil
}

func (u *creatorUC) creatorOf(ctx context.Context, tgID int64) (*model.Creator, error) {
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCreatorNotFound
		}
		return nil, err
	}
	return u.creators.FindByUserID(ctx, repository.NoTX, user.ID)
}

func (u *creatorUC) ownedChannel(ctx context.Context, ownerTgID, channelID int64) (*model.Channel, error) {
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, err
	}
	ch, err := u.channels.FindByID(ctx, repository.NoTX, channelID)
	if err != nil {
		return nil, err
	}
	if ch.CreatorID != creator.ID {
		return nil, domain.ErrNotChannelOwner
	}
	return ch, nil
}

func (u *creatorUC) ownedBundle(ctx context.Context, ownerTgID, bundleID int64) (*model.Bundle, error) {
	creator, err := u.creatorOf(ctx, ownerTgID)
	if err != nil {
		return nil, err
	}
	b, err := u.bundles.FindByID(ctx, repository.NoTX, bundleID)
	if err != nil {
		return nil, err
	}
	if b.CreatorID != creator.ID {
		return nil, domain.ErrNotChannelOwner
	}
	return b, nil
}
