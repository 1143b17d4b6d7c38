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

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ SweepUseCase = (*sweepUC)(nil)

type ReminderReport struct {
	Sent    int
	Blocked int
	Failed  int
}

// SweepReport is the outcome of one sweep run.
type SweepReport struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Previews       PreviewReport
	Expired        int
	ExpiredBundles int
	ExpireErrors   int
	Reminders3d    ReminderReport
	Reminders1d    ReminderReport
}

// SweepUseCase revokes lapsed access and sends expiry reminders. Every step
// is safe to repeat: terminal transitions are conditional and reminder flags
// are set once.
type SweepUseCase interface {
	Run(ctx context.Context) (SweepReport, error)
	RunAt(ctx context.Context, now time.Time) (SweepReport, error)
}

type sweepUC struct {
	subs       repository.SubscriptionRepository
	bundleSubs repository.BundleSubscriptionRepository
	previews   PreviewUseCase
	chans      adapter.ChannelManager
	notifier   adapter.Notifier
	audit      adapter.AuditLog
	tr         adapter.Translator
	log        *zerolog.Logger
}

func NewSweepUseCase(
	subs repository.SubscriptionRepository,
	bundleSubs repository.BundleSubscriptionRepository,
	previews PreviewUseCase,
	chans adapter.ChannelManager,
	notifier adapter.Notifier,
	auditLog adapter.AuditLog,
	tr adapter.Translator,
	logger *zerolog.Logger,
) *sweepUC {
	return &sweepUC{
		subs:       subs,
		bundleSubs: bundleSubs,
		previews:   previews,
		chans:      chans,
		notifier:   notifier,
		audit:      auditLog,
		tr:         tr,
		log:        logger,
	}
}

func (u *sweepUC) Run(ctx context.Context) (SweepReport, error) {
	return u.RunAt(ctx, time.Now())
}

// RunAt performs the previews, expiration and reminder passes as of now. A
// failing pass is reported and the remaining passes still run.
func (u *sweepUC) RunAt(ctx context.Context, now time.Time) (SweepReport, error) {
	rep := SweepReport{RunID: ulid.Make().String(), StartedAt: time.Now()}
	ctx = logging.WithTraceID(ctx, rep.RunID)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SweepUC.Run")()

	var errs []error

	prev, err := u.previews.EnforcePreviewExpirations(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("previews: %w", err))
	}
	rep.Previews = prev

	if n, failed, err := u.expireSubscriptions(ctx, log, now); err != nil {
		errs = append(errs, fmt.Errorf("subscriptions: %w", err))
	} else {
		rep.Expired, rep.ExpireErrors = n, failed
	}
	if n, failed, err := u.expireBundles(ctx, log, now); err != nil {
		errs = append(errs, fmt.Errorf("bundle subscriptions: %w", err))
	} else {
		rep.ExpiredBundles = n
		rep.ExpireErrors += failed
	}

	if r, err := u.remind(ctx, log, model.Reminder3d, now); err != nil {
		errs = append(errs, fmt.Errorf("reminders 3d: %w", err))
	} else {
		rep.Reminders3d = r
	}
	if r, err := u.remind(ctx, log, model.Reminder1d, now); err != nil {
		errs = append(errs, fmt.Errorf("reminders 1d: %w", err))
	} else {
		rep.Reminders1d = r
	}

	rep.Duration = time.Since(rep.StartedAt)
	log.Info().
		Int("previews_expired", rep.Previews.Expired).
		Int("previews_converted", rep.Previews.Converted).
		Int("expired", rep.Expired).
		Int("expired_bundles", rep.ExpiredBundles).
		Int("expire_errors", rep.ExpireErrors).
		Int("reminded_3d", rep.Reminders3d.Sent+rep.Reminders3d.Blocked).
		Int("reminded_1d", rep.Reminders1d.Sent+rep.Reminders1d.Blocked).
		Dur("took", rep.Duration).
		Msg("sweep finished")
	return rep, errors.Join(errs...)
}

func (u *sweepUC) expireSubscriptions(ctx context.Context, log *zerolog.Logger, now time.Time) (expired, failed int, err error) {
	items, err := u.subs.FindExpired(ctx, repository.NoTX, now)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range items {
		done, err := u.expireSubscription(ctx, log, s)
		if err != nil {
			failed++
			log.Error().Err(err).Int64("subscription_id", s.ID).Msg("subscription expiration failed")
			continue
		}
		if done {
			expired++
		}
	}
	return expired, failed, nil
}

func (u *sweepUC) expireSubscription(ctx context.Context, log *zerolog.Logger, s *model.SubscriptionDetail) (bool, error) {
	chatID := s.Channel.TelegramChannelID
	if s.InviteLink != "" {
		domain.Done("revoke_invite_link", u.chans.RevokeInviteLink(ctx, chatID, s.InviteLink)).Log(log)
	}
	if err := u.chans.RemoveMember(ctx, chatID, s.User.TelegramID); err != nil {
		return false, domain.External("remove member", err)
	}
	ok, err := u.subs.MarkExpired(ctx, repository.NoTX, s.ID)
	if err != nil || !ok {
		return false, err
	}

	renew := [][]adapter.InlineButton{{{
		Text: u.tr.T(s.User.Lang(), "button.renew", nil),
		Data: fmt.Sprintf("channel:%d", s.Channel.ID),
	}}}
	notifyUser(ctx, u.notifier, u.tr, &s.User, "subscription.expired", map[string]any{"channel": s.Channel.Title}, renew...).Log(log)
	audit(ctx, u.audit, "audit_expired", fmt.Sprintf(
		"Subscription #%d expired: user %d (%s), channel %q, plan %q",
		s.ID, s.User.TelegramID, s.User.DisplayName(), s.Channel.Title, s.Plan.Name,
	)).Log(log)
	return true, nil
}

func (u *sweepUC) expireBundles(ctx context.Context, log *zerolog.Logger, now time.Time) (expired, failed int, err error) {
	items, err := u.bundleSubs.FindExpired(ctx, repository.NoTX, now)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range items {
		done, err := u.expireBundle(ctx, log, b)
		if err != nil {
			failed++
			log.Error().Err(err).Int64("bundle_subscription_id", b.ID).Msg("bundle expiration failed")
			continue
		}
		if done {
			expired++
		}
	}
	return expired, failed, nil
}

// expireBundle removes the member from every channel that got a link. The
// row stays ACTIVE while any removal fails so the next run retries it.
func (u *sweepUC) expireBundle(ctx context.Context, log *zerolog.Logger, b *model.BundleSubscriptionDetail) (bool, error) {
	var errs []error
	for _, l := range b.Links {
		if !l.OK() {
			continue
		}
		domain.Done("revoke_invite_link", u.chans.RevokeInviteLink(ctx, l.TelegramChannelID, l.InviteLink)).Log(log)
		if err := u.chans.RemoveMember(ctx, l.TelegramChannelID, b.User.TelegramID); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", l.ChannelID, err))
		}
	}
	if len(errs) > 0 {
		return false, domain.External("remove bundle member", errors.Join(errs...))
	}
	ok, err := u.bundleSubs.MarkExpired(ctx, repository.NoTX, b.ID)
	if err != nil || !ok {
		return false, err
	}
	notifyUser(ctx, u.notifier, u.tr, &b.User, "bundle.expired", map[string]any{"bundle": b.Bundle.Title}).Log(log)
	audit(ctx, u.audit, "audit_bundle_expired", fmt.Sprintf(
		"Bundle subscription #%d expired: user %d, bundle %q", b.ID, b.User.TelegramID, b.Bundle.Title,
	)).Log(log)
	return true, nil
}

// remind sends the horizon's reminder once per subscription. A blocked
// recipient counts as delivered; other failures leave the flag unset.
func (u *sweepUC) remind(ctx context.Context, log *zerolog.Logger, h model.ReminderHorizon, now time.Time) (ReminderReport, error) {
	var rep ReminderReport
	items, err := u.subs.FindForReminder(ctx, repository.NoTX, h, now)
	if err != nil {
		return rep, err
	}
	for _, s := range items {
		renew := [][]adapter.InlineButton{{{
			Text: u.tr.T(s.User.Lang(), "button.renew", nil),
			Data: fmt.Sprintf("channel:%d", s.Channel.ID),
		}}}
		eff := notifyUser(ctx, u.notifier, u.tr, &s.User, "subscription."+h.Key(), map[string]any{
			"channel":  s.Channel.Title,
			"end_date": s.EndDate.Format("2006-01-02 15:04"),
		}, renew...)

		switch {
		case eff.OK():
			rep.Sent++
		case errors.Is(eff.Err, domain.ErrRecipientBlocked):
			rep.Blocked++
		default:
			rep.Failed++
			eff.Log(log)
			continue
		}
		if err := u.subs.MarkReminded(ctx, repository.NoTX, s.ID, h); err != nil {
			log.Error().Err(err).Int64("subscription_id", s.ID).Str("horizon", h.Key()).Msg("mark reminded failed")
		}
	}
	return rep, nil
}
