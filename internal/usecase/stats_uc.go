package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	CreatorAnalytics(ctx context.Context, ownerTgID int64) (*model.CreatorAnalytics, error)
	PlatformSnapshot(ctx context.Context, since, now time.Time) (*model.PlatformStats, error)
	// PublishReport sends the platform snapshot for (since, now] to the audit log.
	PublishReport(ctx context.Context, since, now time.Time) error
}

type statsUC struct {
	users    repository.UserRepository
	creators repository.CreatorRepository
	stats    repository.StatsRepository
	audit    adapter.AuditLog
	log      *zerolog.Logger
}

func NewStatsUseCase(
	users repository.UserRepository,
	creators repository.CreatorRepository,
	stats repository.StatsRepository,
	auditLog adapter.AuditLog,
	logger *zerolog.Logger,
) *statsUC {
	return &statsUC{users: users, creators: creators, stats: stats, audit: auditLog, log: logger}
}

func (u *statsUC) CreatorAnalytics(ctx context.Context, ownerTgID int64) (*model.CreatorAnalytics, error) {
	defer logging.TraceDuration(u.log, "StatsUC.CreatorAnalytics")()
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, ownerTgID)
	if err != nil {
		return nil, err
	}
	creator, err := u.creators.FindByUserID(ctx, repository.NoTX, user.ID)
	if err != nil {
		return nil, err
	}
	return u.stats.CreatorAnalytics(ctx, repository.NoTX, creator.ID, startOfDay(time.Now()))
}

func (u *statsUC) PlatformSnapshot(ctx context.Context, since, now time.Time) (*model.PlatformStats, error) {
	defer logging.TraceDuration(u.log, "StatsUC.PlatformSnapshot")()
	return u.stats.PlatformSnapshot(ctx, repository.NoTX, since, now)
}

func (u *statsUC) PublishReport(ctx context.Context, since, now time.Time) error {
	defer logging.TraceDuration(u.log, "StatsUC.PublishReport")()

	s, err := u.stats.PlatformSnapshot(ctx, repository.NoTX, since, now)
	if err != nil {
		return err
	}
	if u.audit == nil {
		return nil
	}
	return u.audit.LogEvent(ctx, FormatReport(s, now))
}

// FormatReport renders the snapshot as the plain-text admin report.
func FormatReport(s *model.PlatformStats, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platform report %s\n", now.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Since %s\n\n", s.Since.In(now.Location()).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Users: %d (+%d)\n", s.Users, s.NewUsers)
	fmt.Fprintf(&b, "Creators: %d, channels: %d\n", s.Creators, s.Channels)
	fmt.Fprintf(&b, "Active subscriptions: %d (+%d new, %d expired)\n", s.ActiveSubscriptions, s.NewSubscriptions, s.ExpiredSince)
	fmt.Fprintf(&b, "Active previews: %d\n", s.ActivePreviews)
	fmt.Fprintf(&b, "Gross: %d, platform fees: %d\n", s.GrossSince, s.PlatformFeesSince)
	fmt.Fprintf(&b, "Open payouts: %d (%d)", s.PendingPayouts, s.PendingPayoutAmount)
	return b.String()
}
