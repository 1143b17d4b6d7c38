package usecase

import (
	"context"
	"fmt"
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
var _ PayoutUseCase = (*payoutUC)(nil)

const (
	recentPayoutsWindow = 7 * 24 * time.Hour
	recentPayoutsLimit  = 10
	payoutHistoryLimit  = 50
)

type PayoutUseCase interface {
	// RequestPayout reserves amount from the creator's balance and opens a
	// REQUESTED payout.
	RequestPayout(ctx context.Context, creatorTgID, amount int64, card string) (*model.Payout, error)
	// ProcessPayout applies an admin decision. Rejected payouts are credited back.
	ProcessPayout(ctx context.Context, payoutID int64, status model.PayoutStatus, note string) (*model.Payout, error)
	RecentPayouts(ctx context.Context, creatorTgID int64) ([]*model.Payout, error)
	PayoutHistory(ctx context.Context, creatorTgID int64) ([]*model.Payout, error)
	ListByStatus(ctx context.Context, status model.PayoutStatus, limit int) ([]*model.Payout, error)
	// Balance is the creator's withdrawable balance.
	Balance(ctx context.Context, creatorTgID int64) (int64, error)
}

type payoutUC struct {
	tm       repository.TransactionManager
	users    repository.UserRepository
	creators repository.CreatorRepository
	ledger   repository.LedgerRepository
	payouts  repository.PayoutRepository
	notifier adapter.Notifier
	audit    adapter.AuditLog
	tr       adapter.Translator
	log      *zerolog.Logger
}

func NewPayoutUseCase(
	tm repository.TransactionManager,
	users repository.UserRepository,
	creators repository.CreatorRepository,
	ledger repository.LedgerRepository,
	payouts repository.PayoutRepository,
	notifier adapter.Notifier,
	auditLog adapter.AuditLog,
	tr adapter.Translator,
	logger *zerolog.Logger,
) *payoutUC {
	return &payoutUC{
		tm:       tm,
		users:    users,
		creators: creators,
		ledger:   ledger,
		payouts:  payouts,
		notifier: notifier,
		audit:    auditLog,
		tr:       tr,
		log:      logger,
	}
}

func (u *payoutUC) RequestPayout(ctx context.Context, creatorTgID, amount int64, card string) (*model.Payout, error) {
	defer logging.TraceDuration(u.log, "PayoutUC.RequestPayout")()

	card = strings.ReplaceAll(strings.TrimSpace(card), " ", "")
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if err := model.ValidateCardNumber(card); err != nil {
		return nil, err
	}
	if amount < model.MinWithdrawal {
		return nil, domain.ErrBelowMinWithdrawal
	}

	user, creator, err := u.creatorOf(ctx, creatorTgID)
	if err != nil {
		return nil, err
	}

	p := &model.Payout{
		CreatorID:   creator.ID,
		Amount:      amount,
		CardNumber:  card,
		Status:      model.PayoutStatusRequested,
		RequestedAt: time.Now(),
	}
	var balance int64
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		balance, err = u.ledger.GetBalance(ctx, tx, creator.ID)
		if err != nil {
			return err
		}
		if amount > balance {
			return domain.ErrInsufficientBalance
		}
		if err := u.payouts.Create(ctx, tx, p); err != nil {
			return err
		}
		return u.ledger.DecrementBalance(ctx, tx, creator.ID, amount)
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Int64("payout_id", p.ID).Int64("creator_id", creator.ID).Int64("amount", amount).
		Str("card", logging.MaskCard(card)).Msg("payout requested")

	prior, err := u.payouts.SumByCreator(ctx, repository.NoTX, creator.ID,
		[]model.PayoutStatus{model.PayoutStatusRequested, model.PayoutStatusProcessing, model.PayoutStatusPaid}, p.ID)
	if err != nil {
		u.log.Warn().Err(err).Int64("creator_id", creator.ID).Msg("payout sum failed")
	}
	audit(ctx, u.audit, "audit_payout_requested", fmt.Sprintf(
		"Payout #%d requested by %s (tg %d): amount %d, card %s, balance after %d, prior payouts %d",
		p.ID, user.DisplayName(), user.TelegramID, amount, p.MaskedCard(), balance-amount, prior,
	)).Log(u.log)
	return p, nil
}

func (u *payoutUC) ProcessPayout(ctx context.Context, payoutID int64, status model.PayoutStatus, note string) (*model.Payout, error) {
	defer logging.TraceDuration(u.log, "PayoutUC.ProcessPayout")()

	var p *model.Payout
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		p, err = u.payouts.FindByID(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if !p.Status.CanTransition(status) {
			return domain.ErrInvalidTransition
		}
		now := time.Now()
		ok, err := u.payouts.UpdateStatus(ctx, tx, p.ID, p.Status, status, note, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		if status == model.PayoutStatusRejected {
			if err := u.ledger.IncrementBalance(ctx, tx, p.CreatorID, p.Amount); err != nil {
				return err
			}
		}
		p.Status = status
		p.AdminNote = note
		p.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Int64("payout_id", p.ID).Str("status", string(status)).Msg("payout processed")
	u.notifyCreator(ctx, p)
	audit(ctx, u.audit, "audit_payout_processed", fmt.Sprintf(
		"Payout #%d -> %s: amount %d, card %s, note %q", p.ID, status, p.Amount, p.MaskedCard(), note,
	)).Log(u.log)
	return p, nil
}

func (u *payoutUC) notifyCreator(ctx context.Context, p *model.Payout) {
	creator, err := u.creators.FindByID(ctx, repository.NoTX, p.CreatorID)
	if err != nil {
		u.log.Warn().Err(err).Int64("creator_id", p.CreatorID).Msg("payout owner lookup failed")
		return
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, creator.UserID)
	if err != nil {
		u.log.Warn().Err(err).Int64("user_id", creator.UserID).Msg("payout owner lookup failed")
		return
	}
	notifyUser(ctx, u.notifier, u.tr, user, "payout.status."+strings.ToLower(string(p.Status)), map[string]any{
		"id":     p.ID,
		"amount": p.Amount,
		"note":   p.AdminNote,
	}).Log(u.log)
}

func (u *payoutUC) RecentPayouts(ctx context.Context, creatorTgID int64) ([]*model.Payout, error) {
	defer logging.TraceDuration(u.log, "PayoutUC.RecentPayouts")()
	_, creator, err := u.creatorOf(ctx, creatorTgID)
	if err != nil {
		return nil, err
	}
	return u.payouts.ListByCreator(ctx, repository.NoTX, creator.ID, time.Now().Add(-recentPayoutsWindow), recentPayoutsLimit)
}

func (u *payoutUC) PayoutHistory(ctx context.Context, creatorTgID int64) ([]*model.Payout, error) {
	defer logging.TraceDuration(u.log, "PayoutUC.PayoutHistory")()
	_, creator, err := u.creatorOf(ctx, creatorTgID)
	if err != nil {
		return nil, err
	}
	return u.payouts.ListByCreator(ctx, repository.NoTX, creator.ID, time.Time{}, payoutHistoryLimit)
}

func (u *payoutUC) ListByStatus(ctx context.Context, status model.PayoutStatus, limit int) ([]*model.Payout, error) {
	defer logging.TraceDuration(u.log, "PayoutUC.ListByStatus")()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.payouts.ListByStatus(ctx, repository.NoTX, status, limit)
}

func (u *payoutUC) Balance(ctx context.Context, creatorTgID int64) (int64, error) {
	_, creator, err := u.creatorOf(ctx, creatorTgID)
	if err != nil {
		return 0, err
	}
	return u.ledger.GetBalance(ctx, repository.NoTX, creator.ID)
}

func (u *payoutUC) creatorOf(ctx context.Context, tgID int64) (*model.User, *model.Creator, error) {
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, nil, err
	}
	creator, err := u.creators.FindByUserID(ctx, repository.NoTX, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, creator, nil
}
