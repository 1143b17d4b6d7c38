package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
	"telegram-channel-paywall/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase books the fee split of confirmed payments and keeps creator
// balances.
type LedgerUseCase interface {
	// RecordTransaction stores the split of a subscription payment and credits
	// the creator and, for an approved partner, the partner. Recording the same
	// subscription twice returns the first transaction and moves no balance.
	RecordTransaction(ctx context.Context, subscriptionID, gross, creatorID int64) (*model.Transaction, error)
	// RecordBundleTransaction is the bundle variant; bundles carry no partner share.
	RecordBundleTransaction(ctx context.Context, bundleSubscriptionID, gross, creatorID int64, platformPercent float64) (*model.BundleTransaction, error)
	GetBalance(ctx context.Context, creatorID int64) (int64, error)
}

type ledgerUC struct {
	tm       repository.TransactionManager
	subs     repository.SubscriptionRepository
	creators repository.CreatorRepository
	ledger   repository.LedgerRepository
	// platformPercent applies to channels without a commission override.
	platformPercent float64
	log             *zerolog.Logger
}

func NewLedgerUseCase(
	tm repository.TransactionManager,
	subs repository.SubscriptionRepository,
	creators repository.CreatorRepository,
	ledger repository.LedgerRepository,
	platformPercent float64,
	logger *zerolog.Logger,
) *ledgerUC {
	if platformPercent <= 0 {
		platformPercent = model.DefaultPlatformPercent
	}
	return &ledgerUC{
		tm:              tm,
		subs:            subs,
		creators:        creators,
		ledger:          ledger,
		platformPercent: platformPercent,
		log:             logger,
	}
}

// errLedgerReplay aborts the transaction when the entry already exists.
var errLedgerReplay = errors.New("ledger entry already recorded")

func (u *ledgerUC) RecordTransaction(ctx context.Context, subscriptionID, gross, creatorID int64) (*model.Transaction, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.RecordTransaction")()

	if gross < 0 {
		return nil, domain.ErrInvalidAmount
	}

	var out *model.Transaction
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.ledger.FindTransactionBySubscription(ctx, tx, subscriptionID)
		switch {
		case err == nil:
			out = existing
			return errLedgerReplay
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		detail, err := u.subs.FindDetail(ctx, tx, subscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription %d: %w", subscriptionID, err)
		}
		if creatorID == 0 {
			creatorID = detail.Channel.CreatorID
		}

		var (
			partnerPercent float64
			partnerID      *int64
		)
		if detail.Partner.IsApproved() {
			partnerPercent = detail.Partner.CommissionRate
			id := detail.Partner.ID
			partnerID = &id
		}

		split := model.ComputeSplit(gross, detail.Channel.PlatformPercent(u.platformPercent), partnerPercent)
		t := &model.Transaction{
			SubscriptionID: subscriptionID,
			FeeSplit:       split,
			PartnerID:      partnerID,
			Status:         model.TransactionStatusCompleted,
			CreatedAt:      time.Now(),
		}
		if err := u.ledger.InsertTransaction(ctx, tx, t); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return errLedgerReplay
			}
			return err
		}
		if err := u.ledger.IncrementBalance(ctx, tx, creatorID, split.CreatorShare); err != nil {
			return err
		}
		if split.PartnerShare > 0 {
			pc, err := u.creators.EnsureForUser(ctx, tx, detail.Partner.UserID)
			if err != nil {
				return err
			}
			if err := u.ledger.IncrementBalance(ctx, tx, pc.ID, split.PartnerShare); err != nil {
				return err
			}
		}
		out = t
		return nil
	})

	if errors.Is(err, errLedgerReplay) {
		if out == nil {
			// lost an insert race; the winner's row is committed by now
			out, err = u.ledger.FindTransactionBySubscription(ctx, repository.NoTX, subscriptionID)
			if err != nil {
				return nil, err
			}
		}
		u.log.Info().Int64("subscription_id", subscriptionID).Msg("ledger entry already recorded")
		return out, nil
	}
	if err != nil {
		u.log.Error().Err(err).Int64("subscription_id", subscriptionID).Msg("record transaction failed")
		return nil, err
	}

	u.log.Info().
		Int64("subscription_id", subscriptionID).
		Int64("gross", out.Gross).
		Int64("creator_share", out.CreatorShare).
		Int64("partner_share", out.PartnerShare).
		Msg("ledger entry recorded")
	return out, nil
}

func (u *ledgerUC) RecordBundleTransaction(ctx context.Context, bundleSubscriptionID, gross, creatorID int64, platformPercent float64) (*model.BundleTransaction, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.RecordBundleTransaction")()

	if gross < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if creatorID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if platformPercent <= 0 {
		platformPercent = u.platformPercent
	}

	var out *model.BundleTransaction
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.ledger.FindBundleTransaction(ctx, tx, bundleSubscriptionID)
		switch {
		case err == nil:
			out = existing
			return errLedgerReplay
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		split := model.ComputeSplit(gross, platformPercent, 0)
		t := &model.BundleTransaction{
			BundleSubscriptionID: bundleSubscriptionID,
			FeeSplit:             split,
			Status:               model.TransactionStatusCompleted,
			CreatedAt:            time.Now(),
		}
		if err := u.ledger.InsertBundleTransaction(ctx, tx, t); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return errLedgerReplay
			}
			return err
		}
		if err := u.ledger.IncrementBalance(ctx, tx, creatorID, split.CreatorShare); err != nil {
			return err
		}
		out = t
		return nil
	})

	if errors.Is(err, errLedgerReplay) {
		if out == nil {
			out, err = u.ledger.FindBundleTransaction(ctx, repository.NoTX, bundleSubscriptionID)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err != nil {
		u.log.Error().Err(err).Int64("bundle_subscription_id", bundleSubscriptionID).Msg("record bundle transaction failed")
		return nil, err
	}
	return out, nil
}

func (u *ledgerUC) GetBalance(ctx context.Context, creatorID int64) (int64, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.GetBalance")()
	return u.ledger.GetBalance(ctx, repository.NoTX, creatorID)
}
