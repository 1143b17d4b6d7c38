package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-channel-paywall/internal/domain"
	"telegram-channel-paywall/internal/domain/model"
	"telegram-channel-paywall/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

type ledgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

func (r *ledgerRepo) InsertTransaction(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (subscription_id, gross_amount, provider_fee, platform_fee, partner_share, creator_share,
                          partner_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, t.SubscriptionID, t.Gross, t.ProviderFee, t.PlatformFee, t.PartnerShare,
		t.CreatorShare, t.PartnerID, string(t.Status), t.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&t.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *ledgerRepo) FindTransactionBySubscription(ctx context.Context, tx repository.Tx, subscriptionID int64) (*model.Transaction, error) {
	const q = `
SELECT id, subscription_id, gross_amount, provider_fee, platform_fee, partner_share, creator_share, partner_id, status, created_at
  FROM transactions WHERE subscription_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, err
	}
	var (
		t      model.Transaction
		status string
	)
	if err := row.Scan(&t.ID, &t.SubscriptionID, &t.Gross, &t.ProviderFee, &t.PlatformFee, &t.PartnerShare,
		&t.CreatorShare, &t.PartnerID, &status, &t.CreatedAt); err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	t.Status = model.TransactionStatus(status)
	return &t, nil
}

func (r *ledgerRepo) InsertBundleTransaction(ctx context.Context, tx repository.Tx, t *model.BundleTransaction) error {
	const q = `
INSERT INTO bundle_transactions (bundle_subscription_id, gross_amount, provider_fee, platform_fee, creator_share, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, t.BundleSubscriptionID, t.Gross, t.ProviderFee, t.PlatformFee,
		t.CreatorShare, string(t.Status), t.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&t.ID); err != nil {
		return scanErr(err, domain.ErrOperationFailed)
	}
	return nil
}

func (r *ledgerRepo) FindBundleTransaction(ctx context.Context, tx repository.Tx, bundleSubscriptionID int64) (*model.BundleTransaction, error) {
	const q = `
SELECT id, bundle_subscription_id, gross_amount, provider_fee, platform_fee, creator_share, status, created_at
  FROM bundle_transactions WHERE bundle_subscription_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, bundleSubscriptionID)
	if err != nil {
		return nil, err
	}
	var (
		t      model.BundleTransaction
		status string
	)
	if err := row.Scan(&t.ID, &t.BundleSubscriptionID, &t.Gross, &t.ProviderFee, &t.PlatformFee,
		&t.CreatorShare, &status, &t.CreatedAt); err != nil {
		return nil, scanErr(err, domain.ErrNotFound)
	}
	t.Status = model.TransactionStatus(status)
	return &t, nil
}

func (r *ledgerRepo) IncrementBalance(ctx context.Context, tx repository.Tx, creatorID, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	const q = `
INSERT INTO creator_balances (creator_id, available_balance, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (creator_id) DO UPDATE SET
  available_balance = creator_balances.available_balance + EXCLUDED.available_balance,
  updated_at = NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, creatorID, amount)
	return err
}

// DecrementBalance is guarded in SQL so the balance can never go negative,
// even without a prior locked read.
func (r *ledgerRepo) DecrementBalance(ctx context.Context, tx repository.Tx, creatorID, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	const q = `
UPDATE creator_balances
   SET available_balance = available_balance - $2, updated_at = NOW()
 WHERE creator_id=$1 AND available_balance >= $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, creatorID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (r *ledgerRepo) GetBalance(ctx context.Context, tx repository.Tx, creatorID int64) (int64, error) {
	q := `SELECT available_balance FROM creator_balances WHERE creator_id=$1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	row, err := pickRow(ctx, r.pool, tx, q+`;`, creatorID)
	if err != nil {
		return 0, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, scanErr(err, domain.ErrReadDatabaseRow)
	}
	return balance, nil
}
