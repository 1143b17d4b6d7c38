package repository

import (
	"context"
	"time"

	"telegram-channel-paywall/internal/domain/model"
)

// -----------------------------
// Users & creators
// -----------------------------

type UserRepository interface {
	// Upsert inserts the user or refreshes its profile fields. An empty
	// Language keeps the stored one.
	Upsert(ctx context.Context, tx Tx, p model.UserProfile) (*model.User, error)
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
	SetLanguage(ctx context.Context, tx Tx, tgID int64, lang string) error
}

type CreatorRepository interface {
	// EnsureForUser returns the creator of userID, creating it on first use.
	EnsureForUser(ctx context.Context, tx Tx, userID int64) (*model.Creator, error)
	FindByUserID(ctx context.Context, tx Tx, userID int64) (*model.Creator, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Creator, error)
}

// -----------------------------
// Channels, plans, bundles
// -----------------------------

type ChannelRepository interface {
	// Create returns domain.ErrAlreadyExists when the Telegram channel id is taken.
	Create(ctx context.Context, tx Tx, c *model.Channel) error
	Update(ctx context.Context, tx Tx, c *model.Channel) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Channel, error)
	FindByTelegramID(ctx context.Context, tx Tx, tgChannelID int64) (*model.Channel, error)
	ListByCreator(ctx context.Context, tx Tx, creatorID int64) ([]*model.Channel, error)
}

type PlanRepository interface {
	Create(ctx context.Context, tx Tx, p *model.SubscriptionPlan) error
	Update(ctx context.Context, tx Tx, p *model.SubscriptionPlan) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.SubscriptionPlan, error)
	ListByChannel(ctx context.Context, tx Tx, channelID int64, activeOnly bool) ([]*model.SubscriptionPlan, error)
}

type BundleRepository interface {
	Create(ctx context.Context, tx Tx, b *model.Bundle) error
	AddChannel(ctx context.Context, tx Tx, bundleID, channelID int64) error
	SetFolderLink(ctx context.Context, tx Tx, bundleID int64, link string) error
	// FindByID loads the bundle with its channel ids.
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Bundle, error)
	ListByCreator(ctx context.Context, tx Tx, creatorID int64) ([]*model.Bundle, error)

	CreatePlan(ctx context.Context, tx Tx, p *model.BundlePlan) error
	FindPlanByID(ctx context.Context, tx Tx, id int64) (*model.BundlePlan, error)
	ListPlans(ctx context.Context, tx Tx, bundleID int64, activeOnly bool) ([]*model.BundlePlan, error)
}

// -----------------------------
// Entitlements
// -----------------------------

type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Subscription, error)
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Subscription, error)
	// FindDetail loads the subscription with user, plan, channel and partner.
	FindDetail(ctx context.Context, tx Tx, id int64) (*model.SubscriptionDetail, error)
	// HasActive reports an ACTIVE subscription of userID to channelID ending after now.
	HasActive(ctx context.Context, tx Tx, userID, channelID int64, now time.Time) (bool, error)
	// FindExpired selects status=ACTIVE AND end_date < now.
	FindExpired(ctx context.Context, tx Tx, now time.Time) ([]*model.SubscriptionDetail, error)
	// FindForReminder selects ACTIVE subscriptions inside the horizon window
	// whose reminder flag for that horizon is still false.
	FindForReminder(ctx context.Context, tx Tx, h model.ReminderHorizon, now time.Time) ([]*model.SubscriptionDetail, error)
	MarkReminded(ctx context.Context, tx Tx, id int64, h model.ReminderHorizon) error
	// MarkExpired moves an ACTIVE subscription to EXPIRED; false when it was not ACTIVE.
	MarkExpired(ctx context.Context, tx Tx, id int64) (bool, error)
}

type BundleSubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.BundleSubscription) error
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.BundleSubscription, error)
	FindDetail(ctx context.Context, tx Tx, id int64) (*model.BundleSubscriptionDetail, error)
	FindExpired(ctx context.Context, tx Tx, now time.Time) ([]*model.BundleSubscriptionDetail, error)
	MarkExpired(ctx context.Context, tx Tx, id int64) (bool, error)
}

type PartnerRepository interface {
	// Request returns the existing row for (user, channel) or creates a PENDING one.
	Request(ctx context.Context, tx Tx, userID, channelID int64) (p *model.Partner, created bool, err error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Partner, error)
	FindByUserChannel(ctx context.Context, tx Tx, userID, channelID int64) (*model.Partner, error)
	Decide(ctx context.Context, tx Tx, id int64, status model.PartnerStatus, rate float64, at time.Time) error
	ListByCreator(ctx context.Context, tx Tx, creatorID int64, status model.PartnerStatus) ([]*model.PartnerDetail, error)
	ListByUser(ctx context.Context, tx Tx, userID int64, status model.PartnerStatus) ([]*model.PartnerDetail, error)
}

type PreviewRepository interface {
	Create(ctx context.Context, tx Tx, p *model.PreviewAccess) error
	// FindActive returns the ACTIVE preview of the pair ending after now.
	FindActive(ctx context.Context, tx Tx, userID, channelID int64, now time.Time) (*model.PreviewAccess, error)
	// FindLatest returns the most recently created preview of the pair, any status.
	FindLatest(ctx context.Context, tx Tx, userID, channelID int64) (*model.PreviewAccess, error)
	FindExpiredActive(ctx context.Context, tx Tx, now time.Time) ([]*model.PreviewDetail, error)
	// UpdateStatus performs from -> to; false when the row was not in from.
	UpdateStatus(ctx context.Context, tx Tx, id int64, from, to model.PreviewStatus) (bool, error)
	// MarkConverted turns every ACTIVE preview of the pair into CONVERTED.
	MarkConverted(ctx context.Context, tx Tx, userID, channelID int64) (int, error)
}

// -----------------------------
// Ledger & payouts
// -----------------------------

type LedgerRepository interface {
	InsertTransaction(ctx context.Context, tx Tx, t *model.Transaction) error
	FindTransactionBySubscription(ctx context.Context, tx Tx, subscriptionID int64) (*model.Transaction, error)
	InsertBundleTransaction(ctx context.Context, tx Tx, t *model.BundleTransaction) error
	FindBundleTransaction(ctx context.Context, tx Tx, bundleSubscriptionID int64) (*model.BundleTransaction, error)

	// IncrementBalance upserts the creator's balance row and adds amount.
	IncrementBalance(ctx context.Context, tx Tx, creatorID, amount int64) error
	// DecrementBalance subtracts amount; domain.ErrInsufficientBalance when it would go negative.
	DecrementBalance(ctx context.Context, tx Tx, creatorID, amount int64) error
	// GetBalance returns 0 for creators without a balance row. Inside a
	// transaction the row is locked until commit.
	GetBalance(ctx context.Context, tx Tx, creatorID int64) (int64, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Payout) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Payout, error)
	// UpdateStatus performs from -> to; false when the payout was not in from.
	UpdateStatus(ctx context.Context, tx Tx, id int64, from, to model.PayoutStatus, note string, at time.Time) (bool, error)
	ListByCreator(ctx context.Context, tx Tx, creatorID int64, since time.Time, limit int) ([]*model.Payout, error)
	ListByStatus(ctx context.Context, tx Tx, status model.PayoutStatus, limit int) ([]*model.Payout, error)
	SumByCreator(ctx context.Context, tx Tx, creatorID int64, statuses []model.PayoutStatus, excludeID int64) (int64, error)
}

// StatsRepository runs the aggregate queries behind analytics and reports.
type StatsRepository interface {
	CreatorAnalytics(ctx context.Context, tx Tx, creatorID int64, dayStart time.Time) (*model.CreatorAnalytics, error)
	PartnerSummary(ctx context.Context, tx Tx, userID int64, dayStart time.Time) (*model.PartnerSummary, error)
	PlatformSnapshot(ctx context.Context, tx Tx, since, now time.Time) (*model.PlatformStats, error)
}
