package usecase

import (
	"context"
	"time"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/adapter"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/logging"
	red "telegram-channel-paywall/internal/infra/redis"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type QuoteKind string

const (
	QuotePlan       QuoteKind = "plan"
	QuoteBundlePlan QuoteKind = "bundle_plan"
)

// Quote is the priced offer behind a checkout.
type Quote struct {
	Kind   QuoteKind
	PlanID int64
	Name   string
	// Title is the channel or bundle title.
	Title     string
	Price     int64
	CreatorID int64
	// FolderLink is the bundle's shared folder link, if any.
	FolderLink string
	// PlatformPercent is the channel override, 0 for the platform default.
	PlatformPercent float64
}

// Checkout is a payment opened at the provider.
type Checkout struct {
	Quote
	PaymentID  string
	PaymentURL string
}

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type PaymentUseCase interface {
	QuotePlan(ctx context.Context, planID int64) (*Quote, error)
	QuoteBundlePlan(ctx context.Context, bundlePlanID int64) (*Quote, error)
	// Open creates the provider transaction for q.
	Open(ctx context.Context, q *Quote, comment string) (*Checkout, error)
	// Confirm checks the provider for paymentID on behalf of tgID. It fails with
	// ErrRateLimited when the user checks too often and ErrPaymentNotConfirmed
	// when the payment is not (fully) paid.
	Confirm(ctx context.Context, tgID int64, paymentID string, expected int64) (adapter.PaymentStatus, error)
}

type paymentUC struct {
	plans       repository.PlanRepository
	channels    repository.ChannelRepository
	bundles     repository.BundleRepository
	gateway     adapter.PaymentGateway
	limiter     RateLimiter
	checkLimit  int
	checkWindow time.Duration
	redirectURL string
	log         *zerolog.Logger
}

func NewPaymentUseCase(
	plans repository.PlanRepository,
	channels repository.ChannelRepository,
	bundles repository.BundleRepository,
	gateway adapter.PaymentGateway,
	limiter RateLimiter,
	checkLimit int,
	checkWindow time.Duration,
	redirectURL string,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		plans:       plans,
		channels:    channels,
		bundles:     bundles,
		gateway:     gateway,
		limiter:     limiter,
		checkLimit:  checkLimit,
		checkWindow: checkWindow,
		redirectURL: redirectURL,
		log:         logger,
	}
}

func (u *paymentUC) QuotePlan(ctx context.Context, planID int64) (*Quote, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.QuotePlan")()

	p, err := u.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return nil, err
	}
	ch, err := u.channels.FindByID(ctx, repository.NoTX, p.ChannelID)
	if err != nil {
		return nil, err
	}
	q := &Quote{Kind: QuotePlan, PlanID: p.ID, Name: p.Name, Title: ch.Title, Price: p.Price, CreatorID: ch.CreatorID}
	if ch.CommissionRate != nil {
		q.PlatformPercent = *ch.CommissionRate
	}
	return q, nil
}

func (u *paymentUC) QuoteBundlePlan(ctx context.Context, bundlePlanID int64) (*Quote, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.QuoteBundlePlan")()

	p, err := u.bundles.FindPlanByID(ctx, repository.NoTX, bundlePlanID)
	if err != nil {
		return nil, err
	}
	b, err := u.bundles.FindByID(ctx, repository.NoTX, p.BundleID)
	if err != nil {
		return nil, err
	}
	return &Quote{Kind: QuoteBundlePlan, PlanID: p.ID, Name: p.Name, Title: b.Title, Price: p.Price, CreatorID: b.CreatorID, FolderLink: b.FolderLink}, nil
}

func (u *paymentUC) Open(ctx context.Context, q *Quote, comment string) (*Checkout, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Open")()

	if q.Price < model.MinPlanPrice {
		return nil, domain.ErrPriceTooLow
	}
	tx, err := u.gateway.CreateTransaction(ctx, q.Price, u.redirectURL, comment)
	if err != nil {
		u.log.Error().Err(err).Str("provider", u.gateway.Name()).Int64("amount", q.Price).Msg("create payment failed")
		return nil, domain.External("create payment", err)
	}
	u.log.Info().Str("provider", u.gateway.Name()).Str("payment_id", tx.ID).Int64("amount", q.Price).Msg("payment opened")
	return &Checkout{Quote: *q, PaymentID: tx.ID, PaymentURL: tx.PaymentURL}, nil
}

func (u *paymentUC) Confirm(ctx context.Context, tgID int64, paymentID string, expected int64) (adapter.PaymentStatus, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Confirm")()

	if paymentID == "" {
		return adapter.PaymentStatus{}, domain.ErrInvalidArgument
	}
	if u.limiter != nil && u.checkLimit > 0 {
		ok, err := u.limiter.Allow(ctx, red.PaymentCheckKey(tgID), u.checkLimit, u.checkWindow)
		if err != nil {
			// fail open: a Redis outage must not block paying users
			u.log.Warn().Err(err).Int64("tg_id", tgID).Msg("payment check limiter failed")
		} else if !ok {
			return adapter.PaymentStatus{}, domain.ErrRateLimited
		}
	}

	st, err := u.gateway.CheckTransaction(ctx, paymentID)
	if err != nil {
		return st, domain.External("check payment", err)
	}
	if !st.Paid {
		return st, domain.ErrPaymentNotConfirmed
	}
	if st.Amount > 0 && expected > 0 && st.Amount < expected {
		u.log.Warn().Str("payment_id", paymentID).Int64("paid", st.Amount).Int64("expected", expected).Msg("underpaid transaction")
		return st, domain.ErrPaymentNotConfirmed
	}
	return st, nil
}
